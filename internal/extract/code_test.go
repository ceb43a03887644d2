package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loupelabs/loupe/pkg/types"
)

func codeExtract(t *testing.T, filename, content string) []types.Entity {
	t.Helper()
	adapter := NewCodeAdapter(nil)
	return adapter.Extract(content, types.FileMetadataFor(filename, int64(len(content))))
}

func TestCodeAdapterFunctionDeclaration(t *testing.T) {
	entities := codeExtract(t, "math.ts",
		"function add(a: number, b: number): number { return a + b; }")

	fn := findByName(entities, types.EntityKindFunction, "add")
	require.NotNil(t, fn, "expected a function entity named add")
	assert.Equal(t, []string{"a: number", "b: number"}, fn.Metadata["parameters"])
	assert.Equal(t, "number", fn.Metadata["returnType"])
	assert.Equal(t, false, fn.Metadata["async"])
	assert.Equal(t, false, fn.Metadata["exported"])
	assert.Equal(t, 1, fn.Metadata["startLine"])

	// Fallback baseline still present underneath.
	require.Len(t, entitiesOfKind(entities, types.EntityKindDocument), 1)
}

func TestCodeAdapterFunctionVariants(t *testing.T) {
	src := strings.Join([]string{
		"export async function fetchUser(id: string): Promise<User> {",
		"  return api.get(id);",
		"}",
		"",
		"function* walk(root: Node) {",
		"  yield root;",
		"}",
		"",
		"export default function main() {}",
	}, "\n")
	entities := codeExtract(t, "api.ts", src)

	fetch := findByName(entities, types.EntityKindFunction, "fetchUser")
	require.NotNil(t, fetch)
	assert.Equal(t, true, fetch.Metadata["async"])
	assert.Equal(t, true, fetch.Metadata["exported"])
	assert.Equal(t, "Promise<User>", fetch.Metadata["returnType"])
	assert.Equal(t, 1, fetch.Metadata["startLine"])
	assert.Equal(t, 3, fetch.Metadata["endLine"])

	walk := findByName(entities, types.EntityKindFunction, "walk")
	require.NotNil(t, walk)
	assert.Equal(t, []string{"root: Node"}, walk.Metadata["parameters"])

	main := findByName(entities, types.EntityKindFunction, "main")
	require.NotNil(t, main)
	assert.Equal(t, true, main.Metadata["default"])
	assert.Equal(t, []string{}, main.Metadata["parameters"])
	assert.Equal(t, "", main.Metadata["returnType"])
}

func TestCodeAdapterArrowFunctions(t *testing.T) {
	src := strings.Join([]string{
		"export const greet = async (name: string): Promise<string> => {",
		"  return `hi ${name}`;",
		"};",
		"const double = n => n * 2;",
		"const handler = function (event: Event) { dispatch(event); };",
		"const answer = 42;",
		"const label = 'plain';",
	}, "\n")
	entities := codeExtract(t, "arrows.ts", src)

	greet := findByName(entities, types.EntityKindFunction, "greet")
	require.NotNil(t, greet)
	assert.Equal(t, true, greet.Metadata["arrow"])
	assert.Equal(t, true, greet.Metadata["async"])
	assert.Equal(t, true, greet.Metadata["exported"])
	assert.Equal(t, []string{"name: string"}, greet.Metadata["parameters"])
	assert.Equal(t, "Promise<string>", greet.Metadata["returnType"])

	double := findByName(entities, types.EntityKindFunction, "double")
	require.NotNil(t, double)
	assert.Equal(t, true, double.Metadata["arrow"])
	assert.Equal(t, []string{"n"}, double.Metadata["parameters"])

	handler := findByName(entities, types.EntityKindFunction, "handler")
	require.NotNil(t, handler)
	assert.Nil(t, handler.Metadata["arrow"])
	assert.Equal(t, []string{"event: Event"}, handler.Metadata["parameters"])

	assert.Nil(t, findByName(entities, types.EntityKindFunction, "answer"))
	assert.Nil(t, findByName(entities, types.EntityKindFunction, "label"))
}

func TestCodeAdapterClass(t *testing.T) {
	src := strings.Join([]string{
		"export abstract class UserService extends BaseService implements Disposable, Loggable {",
		"  private cache: Map<string, User>;",
		"  static instances = 0;",
		"  readonly name: string;",
		"",
		"  constructor(name: string) {",
		"    super();",
		"    this.name = name;",
		"  }",
		"",
		"  public async load(id: string): Promise<User> {",
		"    return this.cache.get(id);",
		"  }",
		"",
		"  protected static reset() {}",
		"}",
	}, "\n")
	entities := codeExtract(t, "service.ts", src)

	cls := findByName(entities, types.EntityKindClass, "UserService")
	require.NotNil(t, cls)
	assert.Equal(t, true, cls.Metadata["abstract"])
	assert.Equal(t, true, cls.Metadata["exported"])
	assert.Equal(t, "BaseService", cls.Metadata["extends"])
	assert.Equal(t, []string{"Disposable", "Loggable"}, cls.Metadata["implements"])

	methods, ok := cls.Metadata["methods"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, methods, 3)

	byName := map[string]map[string]interface{}{}
	for _, m := range methods {
		byName[m["name"].(string)] = m
	}
	require.Contains(t, byName, "constructor")
	assert.Equal(t, true, byName["constructor"]["constructor"])
	assert.Equal(t, "public", byName["constructor"]["visibility"])

	require.Contains(t, byName, "load")
	assert.Equal(t, "public", byName["load"]["visibility"])
	assert.Equal(t, false, byName["load"]["static"])
	assert.Equal(t, true, byName["load"]["async"])

	require.Contains(t, byName, "reset")
	assert.Equal(t, "protected", byName["reset"]["visibility"])
	assert.Equal(t, true, byName["reset"]["static"])

	properties, ok := cls.Metadata["properties"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, properties, 3)

	propByName := map[string]map[string]interface{}{}
	for _, p := range properties {
		propByName[p["name"].(string)] = p
	}
	assert.Equal(t, "private", propByName["cache"]["visibility"])
	assert.Equal(t, "Map<string, User>", propByName["cache"]["type"])
	assert.Equal(t, true, propByName["instances"]["static"])
	assert.Equal(t, true, propByName["name"]["readonly"])
}

func TestCodeAdapterInterface(t *testing.T) {
	src := strings.Join([]string{
		"export interface Repository<T> extends Readable, Writable {",
		"  find(id: string): T | undefined;",
		"  save(item: T): void;",
		"  readonly size: number;",
		"}",
	}, "\n")
	entities := codeExtract(t, "repo.ts", src)

	iface := findByName(entities, types.EntityKindInterface, "Repository")
	require.NotNil(t, iface)
	assert.Equal(t, true, iface.Metadata["exported"])
	assert.Equal(t, []string{"Readable", "Writable"}, iface.Metadata["extends"])
	assert.Equal(t, []string{"T"}, iface.Metadata["genericTypes"])

	methods, ok := iface.Metadata["methods"].([]string)
	require.True(t, ok)
	assert.Equal(t, []string{"find(id: string): T | undefined", "save(item: T): void"}, methods)

	properties, ok := iface.Metadata["properties"].([]string)
	require.True(t, ok)
	assert.Equal(t, []string{"readonly size: number"}, properties)
}

func TestCodeAdapterTypeAliasEnumNamespace(t *testing.T) {
	src := strings.Join([]string{
		"export type UserID = string;",
		"type Handler<E> = (event: E) => void;",
		"type Point = {",
		"  x: number;",
		"  y: number;",
		"};",
		"",
		"export enum Color {",
		"  Red = 'red',",
		"  Green = 'green',",
		"  Blue,",
		"}",
		"",
		"namespace Geometry {",
		"  export function area(p: Point): number { return p.x * p.y; }",
		"}",
	}, "\n")
	entities := codeExtract(t, "defs.ts", src)

	userID := findByName(entities, types.EntityKindTypeAlias, "UserID")
	require.NotNil(t, userID)
	assert.Equal(t, "string", userID.Metadata["aliasedType"])
	assert.Equal(t, true, userID.Metadata["exported"])

	handler := findByName(entities, types.EntityKindTypeAlias, "Handler")
	require.NotNil(t, handler)
	assert.Equal(t, []string{"E"}, handler.Metadata["genericTypes"])

	point := findByName(entities, types.EntityKindTypeAlias, "Point")
	require.NotNil(t, point)
	aliased, _ := point.Metadata["aliasedType"].(string)
	assert.True(t, strings.HasPrefix(aliased, "{"), "object alias should keep its braces: %q", aliased)
	assert.Contains(t, aliased, "x: number")

	color := findByName(entities, types.EntityKindEnum, "Color")
	require.NotNil(t, color)
	assert.Equal(t, []string{"Red", "Green", "Blue"}, color.Metadata["values"])
	assert.Equal(t, true, color.Metadata["exported"])

	ns := findByName(entities, types.EntityKindNamespace, "Geometry")
	require.NotNil(t, ns)
	assert.Contains(t, ns.Content, "function area")

	// The namespaced function is still extracted as a function entity.
	assert.NotNil(t, findByName(entities, types.EntityKindFunction, "area"))
}

func TestCodeAdapterImports(t *testing.T) {
	src := strings.Join([]string{
		`import React from 'react';`,
		`import { useState, useEffect as effect } from 'react';`,
		`import * as path from 'path';`,
		`import type { Config } from './config';`,
		`import './styles.css';`,
		`const fs = require('fs');`,
		`const { join, resolve } = require('path');`,
	}, "\n")
	entities := codeExtract(t, "app.tsx", src)

	imports := entitiesOfKind(entities, types.EntityKindImport)
	require.Len(t, imports, 7)

	bySource := map[string][]types.Entity{}
	for _, e := range imports {
		source := e.Metadata["source"].(string)
		bySource[source] = append(bySource[source], e)
	}

	require.Len(t, bySource["react"], 2)
	assert.Equal(t, "default", bySource["react"][0].Metadata["importKind"])
	assert.Equal(t, "React", bySource["react"][0].Metadata["defaultImport"])
	assert.Equal(t, "named", bySource["react"][1].Metadata["importKind"])
	assert.Equal(t, []string{"useState", "useEffect"}, bySource["react"][1].Metadata["imports"])
	assert.Equal(t, false, bySource["react"][0].Metadata["isLocal"])

	require.Len(t, bySource["path"], 2)
	assert.Equal(t, "namespace", bySource["path"][0].Metadata["importKind"])
	assert.Equal(t, "path", bySource["path"][0].Metadata["namespace"])
	assert.Equal(t, "commonjs", bySource["path"][1].Metadata["importKind"])
	assert.Equal(t, []string{"join", "resolve"}, bySource["path"][1].Metadata["imports"])

	config := bySource["./config"][0]
	assert.Equal(t, true, config.Metadata["typeOnly"])
	assert.Equal(t, true, config.Metadata["isLocal"])
	assert.Equal(t, []string{"Config"}, config.Metadata["imports"])

	styles := bySource["./styles.css"][0]
	assert.Equal(t, true, styles.Metadata["sideEffect"])

	fs := bySource["fs"][0]
	assert.Equal(t, "commonjs", fs.Metadata["importKind"])
	assert.Equal(t, "fs", fs.Metadata["defaultImport"])
}

func TestCodeAdapterExports(t *testing.T) {
	src := strings.Join([]string{
		`export { parse, render as draw };`,
		`export { Config } from './config';`,
		`export * from './util';`,
		`export * as helpers from './helpers';`,
		`const App = () => null;`,
		`export default App;`,
	}, "\n")
	entities := codeExtract(t, "index.ts", src)

	exports := entitiesOfKind(entities, types.EntityKindExport)
	require.Len(t, exports, 5)

	kinds := map[string]int{}
	for _, e := range exports {
		kinds[e.Metadata["exportKind"].(string)]++
	}
	assert.Equal(t, map[string]int{"named": 2, "star": 2, "default": 1}, kinds)

	named := exports[0]
	assert.Equal(t, []string{"parse", "render"}, named.Metadata["names"])
	assert.Nil(t, named.Metadata["source"])

	reexport := exports[1]
	assert.Equal(t, "./config", reexport.Metadata["source"])

	var def *types.Entity
	for i := range exports {
		if exports[i].Metadata["exportKind"] == "default" {
			def = &exports[i]
		}
	}
	require.NotNil(t, def)
	assert.Equal(t, "App", def.Name)
}

func TestCodeAdapterJSDoc(t *testing.T) {
	src := strings.Join([]string{
		"/**",
		" * Adds two numbers.",
		" *",
		" * @param {number} a - first operand",
		" * @param {number} b second operand",
		" * @returns {number} the sum",
		" */",
		"function add(a: number, b: number): number {",
		"  return a + b;",
		"}",
		"",
		"function undocumented() {}",
	}, "\n")
	entities := codeExtract(t, "doc.ts", src)

	add := findByName(entities, types.EntityKindFunction, "add")
	require.NotNil(t, add)
	doc, ok := add.Metadata["jsDoc"].(map[string]interface{})
	require.True(t, ok, "expected jsDoc metadata")
	assert.Equal(t, "Adds two numbers.", doc["description"])
	assert.Equal(t, "the sum", doc["returns"])

	params, ok := doc["params"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, params, 2)
	assert.Equal(t, "a", params[0]["name"])
	assert.Equal(t, "number", params[0]["type"])
	assert.Equal(t, "first operand", params[0]["description"])
	assert.Equal(t, "b", params[1]["name"])
	assert.Equal(t, "second operand", params[1]["description"])

	undoc := findByName(entities, types.EntityKindFunction, "undocumented")
	require.NotNil(t, undoc)
	assert.Nil(t, undoc.Metadata["jsDoc"])
}

func TestCodeAdapterBrokenSyntaxDiagnostics(t *testing.T) {
	src := strings.Join([]string{
		"function good(x: number): number { return x; }",
		"function broken(a: number {",
		"  return a",
	}, "\n")

	var entities []types.Entity
	require.NotPanics(t, func() {
		entities = codeExtract(t, "broken.ts", src)
	})

	// The well-formed declaration still comes through.
	assert.NotNil(t, findByName(entities, types.EntityKindFunction, "good"))

	diags := entitiesOfKind(entities, types.EntityKindDiagnostic)
	require.NotEmpty(t, diags, "broken syntax should yield a diagnostic entity")
	assert.Equal(t, "unbalanced-delimiters", diags[0].Name)
}

func TestCodeAdapterEmptyAndNonCode(t *testing.T) {
	for _, content := range []string{"", "just prose, no code at all", "{{{{"} {
		entities := codeExtract(t, "odd.ts", content)
		require.NotEmpty(t, entities)
		assert.Len(t, entitiesOfKind(entities, types.EntityKindDocument), 1)
	}
}

func TestCodeAdapterDeterministic(t *testing.T) {
	src := strings.Join([]string{
		`import { helper } from './helper';`,
		"export function first() { helper(); }",
		"export function second() { first(); }",
	}, "\n")
	adapter := NewCodeAdapter(nil)
	meta := types.FileMetadataFor("det.ts", int64(len(src)))

	a := adapter.Extract(src, meta)
	b := adapter.Extract(src, meta)
	require.Equal(t, a, b)

	ra := adapter.DetectRelationships(a)
	rb := adapter.DetectRelationships(b)
	require.Equal(t, ra, rb)
}

func TestCodeDetectRelationshipsHeritage(t *testing.T) {
	src := strings.Join([]string{
		"interface Named { name: string; }",
		"interface Aged extends Named { age: number; }",
		"class Base {}",
		"class Child extends Base implements Named {}",
		"class Orphan extends External {}",
	}, "\n")
	adapter := NewCodeAdapter(nil)
	entities := adapter.Extract(src, types.FileMetadataFor("heritage.ts", int64(len(src))))
	rels := adapter.DetectRelationships(entities)

	base := findByName(entities, types.EntityKindClass, "Base")
	child := findByName(entities, types.EntityKindClass, "Child")
	named := findByName(entities, types.EntityKindInterface, "Named")
	aged := findByName(entities, types.EntityKindInterface, "Aged")
	orphan := findByName(entities, types.EntityKindClass, "Orphan")
	require.NotNil(t, base)
	require.NotNil(t, child)
	require.NotNil(t, named)
	require.NotNil(t, aged)
	require.NotNil(t, orphan)

	var extends, implements []types.Relationship
	for _, r := range rels {
		switch r.Kind {
		case types.RelExtends:
			extends = append(extends, r)
		case types.RelImplements:
			implements = append(implements, r)
		}
	}
	require.Len(t, extends, 3)
	require.Len(t, implements, 1)

	targets := map[string]string{}
	for _, r := range extends {
		targets[r.Source] = r.Target
	}
	assert.Equal(t, base.ID, targets[child.ID])
	assert.Equal(t, named.ID, targets[aged.ID])
	assert.Equal(t, "External", targets[orphan.ID], "unresolved parent keeps the raw name")

	assert.Equal(t, child.ID, implements[0].Source)
	assert.Equal(t, named.ID, implements[0].Target)
}

func TestCodeDetectRelationshipsCalls(t *testing.T) {
	src := strings.Join([]string{
		"function log(msg: string) {}",
		"function helper() { log('x'); log('y'); }",
		"function main() {",
		"  helper();",
		"  console.log('not a local call');",
		"  const s = 'log(fake)';",
		"  // log(comment)",
		"}",
		"function lonely() {}",
	}, "\n")
	adapter := NewCodeAdapter(nil)
	entities := adapter.Extract(src, types.FileMetadataFor("calls.ts", int64(len(src))))
	rels := adapter.DetectRelationships(entities)

	log := findByName(entities, types.EntityKindFunction, "log")
	helper := findByName(entities, types.EntityKindFunction, "helper")
	main := findByName(entities, types.EntityKindFunction, "main")

	calls := map[string][]string{}
	for _, r := range rels {
		if r.Kind == types.RelCalls {
			calls[r.Source] = append(calls[r.Source], r.Target)
		}
	}

	assert.Equal(t, []string{log.ID}, calls[helper.ID], "duplicate calls collapse to one edge")
	assert.Equal(t, []string{helper.ID}, calls[main.ID],
		"strings, comments, and member accesses do not count as calls")
	assert.Empty(t, calls[log.ID])
}

func TestCodeDetectRelationshipsImports(t *testing.T) {
	src := strings.Join([]string{
		`import { parse } from './parser';`,
		`import axios from 'axios';`,
		`import './register';`,
		"function parse(input: string) {}",
	}, "\n")
	adapter := NewCodeAdapter(nil)
	entities := adapter.Extract(src, types.FileMetadataFor("deps.ts", int64(len(src))))
	rels := adapter.DetectRelationships(entities)

	parse := findByName(entities, types.EntityKindFunction, "parse")
	require.NotNil(t, parse)

	var deps []types.Relationship
	for _, r := range rels {
		if r.Kind == types.RelDependsOn {
			deps = append(deps, r)
		}
	}
	require.Len(t, deps, 2, "only local imports produce depends-on edges")

	// Named import resolves to the extracted entity with the same name.
	assert.Equal(t, parse.ID, deps[0].Target)
	assert.Equal(t, "./parser", deps[0].Metadata["source"])

	// Side-effect import depends on the module path itself.
	assert.Equal(t, "./register", deps[1].Target)
}

package lens

import (
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/loupelabs/loupe/pkg/types"
)

// Event names emitted by the registry.
const (
	EventActivation       = "activation"
	EventLensError        = "lens_error"
	EventLensRegistered   = "lens_registered"
	EventLensUnregistered = "lens_unregistered"
)

// Pipeline stages reported in lens_error events.
const (
	StageActivation     = "activation"
	StageTransformQuery = "transform_query"
	StageProcessResults = "process_results"
)

// Event is one registry notification, delivered synchronously to the
// listeners subscribed to its type.
type Event struct {
	Type      string    `json:"type"`
	LensID    string    `json:"lensId,omitempty"`
	ActiveIDs []string  `json:"activeIds,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ListenerFunc receives registry events.
type ListenerFunc func(Event)

const activationCacheSize = 128

// Registry owns the registered lenses and everything layered over the
// per-lens contract: activation resolution with caching, manual override,
// conflict detection with optional auto-resolution, event delivery, and the
// sequential query/result pipelines. Mutations (Register, Unregister,
// Configure, Clear) invalidate the activation cache; reads are safe to run
// concurrently against an unchanging lens set.
type Registry struct {
	mu     sync.RWMutex
	lenses map[string]Lens
	// order holds lens ids in registration order, the deterministic
	// tie-break for equal priorities.
	order []string
	// effective is the auto-resolve priority overlay, keyed by lens id.
	// Declared priorities are immutable; perturbations live here.
	effective   map[string]int
	autoResolve bool
	override    string
	current     *types.ActivationContext

	// cache maps a context fingerprint to the resolved active lens ids.
	cache *lru.Cache[string, []string]

	listenersMu sync.RWMutex
	listeners   map[string][]ListenerFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return NewRegistryWithCacheSize(activationCacheSize)
}

// NewRegistryWithCacheSize returns an empty registry whose activation cache
// holds up to size resolved contexts. Sizes below 1 fall back to the
// default.
func NewRegistryWithCacheSize(size int) *Registry {
	if size < 1 {
		size = activationCacheSize
	}
	cache, _ := lru.New[string, []string](size)
	return &Registry{
		lenses:    make(map[string]Lens),
		effective: make(map[string]int),
		cache:     cache,
		listeners: make(map[string][]ListenerFunc),
	}
}

// DefaultRegistry returns a registry with the built-in lenses registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(NewDebuggingLens())
	_ = r.Register(NewDocumentationLens())
	return r
}

// Register adds l to the registry. Lens ids are unique: registering an id a
// second time fails and leaves the first registration in place.
func (r *Registry) Register(l Lens) error {
	if l == nil {
		return fmt.Errorf("cannot register a nil lens")
	}
	id := l.ID()
	if id == "" {
		return fmt.Errorf("cannot register a lens with an empty id")
	}

	r.mu.Lock()
	if _, exists := r.lenses[id]; exists {
		r.mu.Unlock()
		return fmt.Errorf("lens '%s' is already registered", id)
	}
	r.lenses[id] = l
	r.order = append(r.order, id)
	r.rebuildEffectiveLocked()
	r.cache.Purge()
	r.mu.Unlock()

	r.emit(Event{Type: EventLensRegistered, LensID: id, Timestamp: time.Now()})
	return nil
}

// Unregister removes the lens with the given id. Unknown ids are ignored.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	if _, exists := r.lenses[id]; !exists {
		r.mu.Unlock()
		return
	}
	delete(r.lenses, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	r.rebuildEffectiveLocked()
	r.cache.Purge()
	r.mu.Unlock()

	r.emit(Event{Type: EventLensUnregistered, LensID: id, Timestamp: time.Now()})
}

// IsRegistered reports whether a lens with the given id is registered.
func (r *Registry) IsRegistered(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.lenses[id]
	return ok
}

// GetLens returns the registered lens with the given id.
func (r *Registry) GetLens(id string) (Lens, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.lenses[id]
	return l, ok
}

// RegisteredLenses returns all lenses in registration order.
func (r *Registry) RegisteredLenses() []Lens {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Lens, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.lenses[id])
	}
	return out
}

// Configure validates and applies cfg to the lens with the given id, then
// drops cached activation decisions since enablement or rules may have
// changed.
func (r *Registry) Configure(id string, cfg types.LensConfig) error {
	r.mu.RLock()
	l, ok := r.lenses[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("lens '%s' is not registered", id)
	}
	if err := l.Configure(cfg); err != nil {
		return err
	}

	r.mu.Lock()
	r.rebuildEffectiveLocked()
	r.cache.Purge()
	r.mu.Unlock()
	return nil
}

// SetManualOverride forces the active set to at most the lens with the given
// id, bypassing activation heuristics until cleared. The id does not have to
// be registered; an unknown id simply yields no active lenses.
func (r *Registry) SetManualOverride(id string) {
	r.mu.Lock()
	r.override = id
	r.mu.Unlock()
}

// ClearManualOverride restores heuristic activation.
func (r *Registry) ClearManualOverride() {
	r.mu.Lock()
	r.override = ""
	r.mu.Unlock()
}

// ManualOverride returns the current override id, or "" when none is set.
func (r *Registry) ManualOverride() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.override
}

// ActiveLenses resolves which lenses apply to ctx, most important first:
// descending effective priority, ties in registration order. A manual
// override, whether on the context or set registry-wide, replaces the
// heuristics entirely: the named lens is the whole active set, and an
// unknown name yields no lenses. Heuristic resolutions are cached by the
// context fingerprint until the registry changes.
func (r *Registry) ActiveLenses(ctx *types.ActivationContext) []Lens {
	override := r.overrideFor(ctx)
	if override != "" {
		l, ok := r.GetLens(override)
		if !ok {
			r.emit(Event{Type: EventActivation, ActiveIDs: []string{}, Timestamp: time.Now()})
			return []Lens{}
		}
		r.emit(Event{Type: EventActivation, ActiveIDs: []string{override}, Timestamp: time.Now()})
		return []Lens{l}
	}

	fp := ctx.Fingerprint()
	if fp != "" {
		if ids, ok := r.cache.Get(fp); ok {
			active := r.lensesByID(ids)
			r.emit(Event{Type: EventActivation, ActiveIDs: ids, Timestamp: time.Now()})
			return active
		}
	}

	type candidate struct {
		lens     Lens
		priority int
		order    int
	}
	var active []candidate
	for i, e := range r.entries() {
		if !e.lens.Config().Enabled {
			continue
		}
		if r.safeShouldActivate(e.lens, ctx) {
			active = append(active, candidate{lens: e.lens, priority: e.priority, order: i})
		}
	}
	slices.SortFunc(active, func(a, b candidate) int {
		if a.priority != b.priority {
			return b.priority - a.priority
		}
		return a.order - b.order
	})

	ids := make([]string, len(active))
	out := make([]Lens, len(active))
	for i, c := range active {
		ids[i] = c.lens.ID()
		out[i] = c.lens
	}
	if fp != "" {
		r.cache.Add(fp, ids)
	}
	r.emit(Event{Type: EventActivation, ActiveIDs: ids, Timestamp: time.Now()})
	return out
}

// UpdateActiveContext replaces the registry's rolling context and resolves
// the active set for it.
func (r *Registry) UpdateActiveContext(ctx *types.ActivationContext) []Lens {
	r.mu.Lock()
	r.current = ctx
	r.mu.Unlock()
	return r.ActiveLenses(ctx)
}

// CurrentlyActiveLenses resolves the active set for the most recently
// supplied context.
func (r *Registry) CurrentlyActiveLenses() []Lens {
	r.mu.RLock()
	ctx := r.current
	r.mu.RUnlock()
	return r.ActiveLenses(ctx)
}

// DetectConflicts reports configuration clashes between registered lenses: a
// priority_conflict for two enabled lenses sharing a declared priority, and
// a transformation_conflict for two lenses whose result transformations
// emphasize the same pattern. Each pair is reported once, ids sorted, in an
// order independent of registration order.
func (r *Registry) DetectConflicts() []types.Conflict {
	r.mu.RLock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	lenses := make(map[string]Lens, len(r.lenses))
	for id, l := range r.lenses {
		lenses[id] = l
	}
	r.mu.RUnlock()

	slices.Sort(ids)

	conflicts := []types.Conflict{}
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := lenses[ids[i]], lenses[ids[j]]
			ca, cb := a.Config(), b.Config()
			if ca.Enabled && cb.Enabled && a.Priority() == b.Priority() {
				conflicts = append(conflicts, types.Conflict{
					Type:       types.PriorityConflict,
					LensIDs:    []string{ids[i], ids[j]},
					Resolution: types.ResolutionAdjustPriority,
				})
			}
			if transformationOverlap(ca, cb) {
				conflicts = append(conflicts, types.Conflict{
					Type:       types.TransformationConflict,
					LensIDs:    []string{ids[i], ids[j]},
					Resolution: types.ResolutionReviewOverlap,
				})
			}
		}
	}
	return conflicts
}

// transformationOverlap reports whether two enabled configs carry result
// transformations aimed at the same emphasis. Lenses scoring or annotating
// the same signal step on each other's output; transformations without an
// emphasis, such as plain reorders, never overlap.
func transformationOverlap(a, b types.LensConfig) bool {
	if !a.Enabled || !b.Enabled {
		return false
	}
	for _, ta := range a.ResultTransformations {
		if ta.Emphasis == "" {
			continue
		}
		for _, tb := range b.ResultTransformations {
			if tb.Emphasis == ta.Emphasis {
				return true
			}
		}
	}
	return false
}

// SetAutoResolveConflicts toggles deterministic priority perturbation. While
// enabled, lenses tied on declared priority are spread onto distinct
// effective priorities so no two enabled lenses remain tied; declared
// priorities are untouched and DetectConflicts still reports the underlying
// tie.
func (r *Registry) SetAutoResolveConflicts(enabled bool) {
	r.mu.Lock()
	r.autoResolve = enabled
	r.rebuildEffectiveLocked()
	r.cache.Purge()
	r.mu.Unlock()
}

// EffectivePriority returns the priority activation ordering actually uses
// for the lens: the declared value unless auto-resolution has perturbed it.
func (r *Registry) EffectivePriority(id string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.lenses[id]
	if !ok {
		return 0, false
	}
	if p, ok := r.effective[id]; ok {
		return p, true
	}
	return l.Priority(), true
}

// AddEventListener subscribes fn to events of the given name. Any name is
// accepted; EventActivation and EventLensError are the ones the registry
// emits most.
func (r *Registry) AddEventListener(event string, fn ListenerFunc) {
	if fn == nil {
		return
	}
	r.listenersMu.Lock()
	r.listeners[event] = append(r.listeners[event], fn)
	r.listenersMu.Unlock()
}

// RemoveEventListeners drops every listener subscribed to the given event.
func (r *Registry) RemoveEventListeners(event string) {
	r.listenersMu.Lock()
	delete(r.listeners, event)
	r.listenersMu.Unlock()
}

// EventListenerCount returns the number of listeners subscribed to the given
// event.
func (r *Registry) EventListenerCount(event string) int {
	r.listenersMu.RLock()
	defer r.listenersMu.RUnlock()
	return len(r.listeners[event])
}

// Clear removes every registered lens, all event listeners, the manual
// override, the rolling context, and all cached activation state.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.lenses = make(map[string]Lens)
	r.order = nil
	r.effective = make(map[string]int)
	r.override = ""
	r.current = nil
	r.cache.Purge()
	r.mu.Unlock()

	r.listenersMu.Lock()
	r.listeners = make(map[string][]ListenerFunc)
	r.listenersMu.Unlock()
}

// TransformQuery runs q through every active lens in priority order, each
// seeing the previous lens's output. A lens that panics is skipped, its
// input carried forward unchanged, and the failure reported as a lens_error
// event. The caller's query is never modified. A nil ctx falls back to the
// rolling context.
func (r *Registry) TransformQuery(q types.Query, ctx *types.ActivationContext) types.Query {
	out := q.Clone()
	for _, l := range r.activeFor(ctx) {
		next, ok := r.safeTransformQuery(l, out)
		if ok {
			out = next
		}
	}
	return out
}

// ProcessResults pipes results through every active lens's ProcessResults in
// priority order. Lens output replaces the working set only when it holds
// exactly the input items; a lens that panics, or that drops, duplicates, or
// invents results, is reported as a lens_error and its output discarded. The
// activation context is taken from qc when present, the rolling context
// otherwise.
func (r *Registry) ProcessResults(results []types.Result, qc *types.QueryContext) []types.Result {
	var ctx *types.ActivationContext
	if qc != nil {
		ctx = qc.Activation
	}

	out := results
	for _, l := range r.activeFor(ctx) {
		next, ok := r.safeProcessResults(l, out, qc)
		if !ok {
			continue
		}
		if !sameResultSet(out, next) {
			r.reportLensError(l.ID(), StageProcessResults, "result set not preserved")
			continue
		}
		out = next
	}
	return out
}

type lensEntry struct {
	lens     Lens
	priority int
}

// entries copies the lens table in registration order, with effective
// priorities resolved, so activation can run lens code without holding the
// lock.
func (r *Registry) entries() []lensEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]lensEntry, 0, len(r.order))
	for _, id := range r.order {
		l := r.lenses[id]
		p := l.Priority()
		if ep, ok := r.effective[id]; ok {
			p = ep
		}
		out = append(out, lensEntry{lens: l, priority: p})
	}
	return out
}

func (r *Registry) overrideFor(ctx *types.ActivationContext) string {
	if ctx != nil && ctx.ManualOverride != "" {
		return ctx.ManualOverride
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.override
}

func (r *Registry) lensesByID(ids []string) []Lens {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Lens, 0, len(ids))
	for _, id := range ids {
		if l, ok := r.lenses[id]; ok {
			out = append(out, l)
		}
	}
	return out
}

func (r *Registry) activeFor(ctx *types.ActivationContext) []Lens {
	if ctx != nil {
		return r.ActiveLenses(ctx)
	}
	return r.CurrentlyActiveLenses()
}

// rebuildEffectiveLocked recomputes the auto-resolve priority overlay.
// Walking registration order, each enabled lens keeps its declared priority
// unless that slot is taken, in which case it steps down to the next free
// one. Requires r.mu held for writing.
func (r *Registry) rebuildEffectiveLocked() {
	r.effective = make(map[string]int)
	if !r.autoResolve {
		return
	}
	taken := make(map[int]bool)
	for _, id := range r.order {
		l := r.lenses[id]
		if !l.Config().Enabled {
			continue
		}
		p := l.Priority()
		for taken[p] {
			p--
		}
		taken[p] = true
		if p != l.Priority() {
			r.effective[id] = p
		}
	}
}

// safeShouldActivate evaluates a lens's activation check, converting a panic
// into a lens_error event and a negative answer.
func (r *Registry) safeShouldActivate(l Lens, ctx *types.ActivationContext) (active bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.reportLensError(l.ID(), StageActivation, rec)
			active = false
		}
	}()
	return l.ShouldActivate(ctx)
}

func (r *Registry) safeTransformQuery(l Lens, q types.Query) (out types.Query, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.reportLensError(l.ID(), StageTransformQuery, rec)
			ok = false
		}
	}()
	return l.TransformQuery(q), true
}

func (r *Registry) safeProcessResults(l Lens, results []types.Result, qc *types.QueryContext) (out []types.Result, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.reportLensError(l.ID(), StageProcessResults, rec)
			ok = false
		}
	}()
	return l.ProcessResults(results, qc), true
}

func (r *Registry) reportLensError(id, stage string, cause interface{}) {
	err := fmt.Sprintf("lens '%s' failed during %s: %v", id, stage, cause)
	log.Printf("WARNING: %s", err)
	r.emit(Event{Type: EventLensError, LensID: id, Stage: stage, Error: err, Timestamp: time.Now()})
}

// emit delivers ev to the subscribers of its type, synchronously and in
// subscription order. A panicking listener is logged and skipped.
func (r *Registry) emit(ev Event) {
	r.listenersMu.RLock()
	subs := make([]ListenerFunc, len(r.listeners[ev.Type]))
	copy(subs, r.listeners[ev.Type])
	r.listenersMu.RUnlock()

	for _, fn := range subs {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					log.Printf("WARNING: listener for %s event panicked: %v", ev.Type, rec)
				}
			}()
			fn(ev)
		}()
	}
}

// sameResultSet reports whether two result lists hold the same entities,
// order aside.
func sameResultSet(a, b []types.Result) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, r := range a {
		counts[r.Entity.ID]++
	}
	for _, r := range b {
		counts[r.Entity.ID]--
		if counts[r.Entity.ID] < 0 {
			return false
		}
	}
	return true
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/loupelabs/loupe/internal/storage"
	"github.com/loupelabs/loupe/pkg/types"
)

var _ storage.GraphStore = (*Store)(nil)

// Store implements storage.GraphStore on SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite graph store with WAL self-healing. If the initial
// open fails because of stale WAL files left behind by a crashed process,
// it verifies no other process holds them and retries once after removing
// the stale -shm/-wal files.
func NewStore(dsn string) (*Store, error) {
	store, err := open(dsn)
	if err == nil {
		return store, nil
	}

	dbPath := dbPathFromDSN(dsn)
	if !isRecoverableOpenError(err) || dbPath == "" || dbPath == ":memory:" {
		return nil, err
	}
	if !clearStaleWAL(dbPath) {
		return nil, err
	}

	store, retryErr := open(dsn)
	if retryErr != nil {
		return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
	}
	log.Printf("sqlite: recovered from stale WAL files for %s", dbPath)
	return store, nil
}

// open opens the database, configures WAL mode, and applies the schema.
func open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent
	// load; WAL mode lets readers proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// PutEntities upserts entities under the source and indexes their inline
// relationships as edges.
func (s *Store) PutEntities(ctx context.Context, source string, entities []types.Entity) error {
	if source == "" {
		return fmt.Errorf("%w: source is required", storage.ErrInvalidInput)
	}
	for _, e := range entities {
		if e.ID == "" {
			return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, e := range entities {
		metadataJSON, err := marshalMap(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", e.ID, err)
		}
		relsJSON, err := marshalRels(e.Relationships)
		if err != nil {
			return fmt.Errorf("failed to marshal relationships for %s: %w", e.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO entities (id, source, kind, name, content, metadata, relationships, touched, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				source = excluded.source,
				kind = excluded.kind,
				name = excluded.name,
				content = excluded.content,
				metadata = excluded.metadata,
				relationships = excluded.relationships,
				touched = excluded.touched,
				updated_at = excluded.updated_at
		`, e.ID, source, string(e.Kind), e.Name, e.Content,
			nullableBytes(metadataJSON), nullableBytes(relsJSON), now.UnixNano(), now, now)
		if err != nil {
			return fmt.Errorf("failed to store entity %s: %w", e.ID, err)
		}

		for _, rel := range e.Relationships {
			if rel.Source == "" {
				rel.Source = e.ID
			}
			if rel.Target == "" {
				continue
			}
			if err := upsertEdge(ctx, tx, rel, source, now); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// PutRelationships upserts edges under the source.
func (s *Store) PutRelationships(ctx context.Context, source string, rels []types.Relationship) error {
	if source == "" {
		return fmt.Errorf("%w: source is required", storage.ErrInvalidInput)
	}
	for _, rel := range rels {
		if rel.Source == "" || rel.Target == "" {
			return fmt.Errorf("%w: relationship needs both source and target", storage.ErrInvalidInput)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, rel := range rels {
		if err := upsertEdge(ctx, tx, rel, source, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func upsertEdge(ctx context.Context, tx *sql.Tx, rel types.Relationship, origin string, now time.Time) error {
	metadataJSON, err := marshalMap(rel.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal edge metadata: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO relationships (source_id, target_id, kind, origin, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, target_id, kind) DO UPDATE SET
			origin = excluded.origin,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`, rel.Source, rel.Target, string(rel.Kind), origin, nullableBytes(metadataJSON), now, now)
	if err != nil {
		return fmt.Errorf("failed to store edge %s->%s: %w", rel.Source, rel.Target, err)
	}
	return nil
}

// GetEntity retrieves one entity by ID.
func (s *Store) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, name, content, metadata, relationships
		FROM entities
		WHERE id = ?
	`, id)

	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return e, nil
}

// DeleteBySource removes everything written under the source.
func (s *Store) DeleteBySource(ctx context.Context, source string) (int, error) {
	if source == "" {
		return 0, fmt.Errorf("%w: source is required", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM relationships WHERE origin = ?`, source); err != nil {
		return 0, fmt.Errorf("failed to delete edges: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE source = ?`, source)
	if err != nil {
		return 0, fmt.Errorf("failed to delete entities: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted entities: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(removed), nil
}

// Query loads candidate entities (narrowed by any kind-equality conditions)
// and runs the shared evaluator over them.
func (s *Store) Query(ctx context.Context, q types.Query) ([]types.Result, error) {
	where, args := kindNarrowing(q.Conditions)

	order := "ORDER BY rowid ASC"
	if q.PerformanceHints != nil && q.PerformanceHints.PreferRecent {
		order = "ORDER BY touched DESC, rowid DESC"
	}

	query := fmt.Sprintf(`
		SELECT id, kind, name, content, metadata, relationships
		FROM entities
		%s
		%s
	`, where, order)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var entities []types.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read entities: %w", err)
	}

	return storage.ApplyQuery(entities, q), nil
}

// Neighbors returns adjacent IDs in edge insertion order.
func (s *Store) Neighbors(ctx context.Context, nodeID string, edgeKinds []types.RelationshipKind, direction types.Direction) ([]string, error) {
	if nodeID == "" {
		return nil, fmt.Errorf("%w: node ID is required", storage.ErrInvalidInput)
	}
	if direction == "" {
		direction = types.DirectionOutgoing
	}

	query := `
		SELECT source_id, target_id
		FROM relationships
		WHERE (source_id = ? OR target_id = ?)
	`
	args := []interface{}{nodeID, nodeID}

	if len(edgeKinds) > 0 {
		query += fmt.Sprintf(" AND kind IN (%s)", buildInClause(len(edgeKinds)))
		for _, k := range edgeKinds {
			args = append(args, string(k))
		}
	}
	query += " ORDER BY rowid ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query neighbors: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	for rows.Next() {
		var srcID, tgtID string
		if err := rows.Scan(&srcID, &tgtID); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		if srcID == nodeID && (direction == types.DirectionOutgoing || direction == types.DirectionBoth) {
			add(tgtID)
		}
		if tgtID == nodeID && (direction == types.DirectionIncoming || direction == types.DirectionBoth) {
			add(srcID)
		}
	}
	return out, rows.Err()
}

// Stats reports aggregate counts.
func (s *Store) Stats(ctx context.Context) (*storage.GraphStats, error) {
	stats := &storage.GraphStats{
		EntitiesByKind:      make(map[string]int),
		RelationshipsByKind: make(map[string]int),
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&stats.TotalEntities); err != nil {
		return nil, fmt.Errorf("failed to count entities: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM relationships`).Scan(&stats.TotalRelationships); err != nil {
		return nil, fmt.Errorf("failed to count edges: %w", err)
	}

	if err := s.countByKind(ctx, `SELECT kind, COUNT(*) FROM entities GROUP BY kind`, stats.EntitiesByKind); err != nil {
		return nil, err
	}
	if err := s.countByKind(ctx, `SELECT kind, COUNT(*) FROM relationships GROUP BY kind`, stats.RelationshipsByKind); err != nil {
		return nil, err
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT source AS s FROM entities
			UNION
			SELECT origin FROM relationships
		)
	`).Scan(&stats.Sources)
	if err != nil {
		return nil, fmt.Errorf("failed to count sources: %w", err)
	}

	return stats, nil
}

func (s *Store) countByKind(ctx context.Context, query string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to count by kind: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return fmt.Errorf("failed to scan kind count: %w", err)
		}
		into[kind] = n
	}
	return rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection.
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

// scanEntity reads one entity row. The row must select id, kind, name,
// content, metadata, relationships in that order.
func scanEntity(row interface{ Scan(...interface{}) error }) (*types.Entity, error) {
	var e types.Entity
	var kind string
	var content, metadataJSON, relsJSON sql.NullString

	if err := row.Scan(&e.ID, &kind, &e.Name, &content, &metadataJSON, &relsJSON); err != nil {
		return nil, err
	}

	e.Kind = types.EntityKind(kind)
	if content.Valid {
		e.Content = content.String
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &e.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if relsJSON.Valid && relsJSON.String != "" {
		if err := json.Unmarshal([]byte(relsJSON.String), &e.Relationships); err != nil {
			return nil, fmt.Errorf("failed to unmarshal relationships: %w", err)
		}
	}
	return &e, nil
}

// kindNarrowing builds a WHERE clause from kind-equality conditions so the
// common "all functions" query doesn't load the whole table. ApplyQuery
// re-checks every condition, so narrowing only has to be sound, not
// complete.
func kindNarrowing(conditions []types.QueryCondition) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	for _, c := range conditions {
		if c.Field != "kind" && c.Field != "type" {
			continue
		}
		switch c.Operator {
		case types.OpEquals:
			if v, ok := c.Value.(string); ok {
				clauses = append(clauses, "kind = ?")
				args = append(args, v)
			}
		case types.OpIn:
			values := stringValues(c.Value)
			if len(values) > 0 {
				clauses = append(clauses, fmt.Sprintf("kind IN (%s)", buildInClause(len(values))))
				for _, v := range values {
					args = append(args, v)
				}
			}
		}
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func stringValues(v interface{}) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

// buildInClause returns a comma-separated string of n "?" placeholders.
func buildInClause(n int) string {
	if n == 0 {
		return ""
	}
	clause := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			clause = append(clause, ',')
		}
		clause = append(clause, '?')
	}
	return string(clause)
}

func marshalMap(m map[string]interface{}) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

func marshalRels(rels []types.Relationship) ([]byte, error) {
	if len(rels) == 0 {
		return nil, nil
	}
	return json.Marshal(rels)
}

// nullableBytes returns NULL for empty byte slices.
func nullableBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

// dbPathFromDSN extracts the filesystem path from a SQLite DSN, stripping
// any file: prefix and query parameters.
func dbPathFromDSN(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path
}

// isRecoverableOpenError reports whether an open failure looks like stale
// WAL state rather than a corrupt or missing database.
func isRecoverableOpenError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") ||
		strings.Contains(msg, "database is locked")
}

// clearStaleWAL removes -shm/-wal files for dbPath when they exist and no
// other process holds them open. Returns true when files were removed.
// Requires lsof; without it nothing is deleted (conservative).
func clearStaleWAL(dbPath string) bool {
	shmPath := dbPath + "-shm"
	walPath := dbPath + "-wal"

	if !fileExists(shmPath) && !fileExists(walPath) {
		return false
	}

	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		return false
	}
	// lsof exits non-zero when no process has the files open: that means
	// the WAL is stale. Any output means a live holder.
	out, err := exec.Command(lsofPath, "-t", dbPath, shmPath, walPath).Output()
	if err == nil && strings.TrimSpace(string(out)) != "" {
		return false
	}

	for _, path := range []string{shmPath, walPath} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("sqlite: failed to remove stale %s: %v", path, err)
		}
	}
	return true
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

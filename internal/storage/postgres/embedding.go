package postgres

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"sort"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/loupelabs/loupe/internal/storage"
)

var _ storage.EmbeddingSidecar = (*Store)(nil)

// StoreEmbedding saves a vector embedding for an entity. The vector is
// always written to the BYTEA column; when pgvector is available it is also
// written to embedding_vec for indexed cosine-distance queries.
func (s *Store) StoreEmbedding(ctx context.Context, entityID string, embedding []float32) error {
	if entityID == "" {
		return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	if len(embedding) == 0 {
		return fmt.Errorf("%w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}

	packed := serializeVector(embedding)

	if s.pgvectorAvailable {
		vec := pgvector.NewVector(embedding)
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO embeddings (entity_id, embedding, dimension, embedding_vec, created_at, updated_at)
			VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
			ON CONFLICT(entity_id) DO UPDATE SET
				embedding = excluded.embedding,
				dimension = excluded.dimension,
				embedding_vec = excluded.embedding_vec,
				updated_at = CURRENT_TIMESTAMP
		`, entityID, packed, len(embedding), vec)
		if err == nil {
			return nil
		}
		log.Printf("postgres: failed to store embedding_vec (falling back to BYTEA only): %v", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (entity_id, embedding, dimension, created_at, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(entity_id) DO UPDATE SET
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			updated_at = CURRENT_TIMESTAMP
	`, entityID, packed, len(embedding))
	if err != nil {
		return fmt.Errorf("postgres: failed to store embedding: %w", err)
	}
	return nil
}

// NearestEntities returns up to k entity IDs by ascending cosine distance.
// With pgvector the database computes distances; otherwise every stored
// vector is scanned and compared in process.
func (s *Store) NearestEntities(ctx context.Context, embedding []float32, k int) ([]storage.Nearest, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}
	if k < 1 {
		k = 10
	}

	if s.pgvectorAvailable {
		return s.nearestByIndex(ctx, embedding, k)
	}
	return s.nearestByScan(ctx, embedding, k)
}

func (s *Store) nearestByIndex(ctx context.Context, embedding []float32, k int) ([]storage.Nearest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, embedding_vec <=> $1 AS distance
		FROM embeddings
		WHERE embedding_vec IS NOT NULL
		ORDER BY distance ASC
		LIMIT $2
	`, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query nearest entities: %w", err)
	}
	defer rows.Close()

	var out []storage.Nearest
	for rows.Next() {
		var n storage.Nearest
		if err := rows.Scan(&n.EntityID, &n.Distance); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan nearest entity: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// nearestByScan brute-forces cosine distance over the BYTEA column.
func (s *Store) nearestByScan(ctx context.Context, embedding []float32, k int) ([]storage.Nearest, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entity_id, embedding, dimension FROM embeddings`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to scan embeddings: %w", err)
	}
	defer rows.Close()

	var out []storage.Nearest
	for rows.Next() {
		var entityID string
		var packed []byte
		var dimension int
		if err := rows.Scan(&entityID, &packed, &dimension); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan embedding row: %w", err)
		}

		stored, err := deserializeVector(packed, dimension)
		if err != nil {
			log.Printf("postgres: skipping undecodable embedding for %s: %v", entityID, err)
			continue
		}
		if len(stored) != len(embedding) {
			continue
		}
		out = append(out, storage.Nearest{EntityID: entityID, Distance: cosineDistance(embedding, stored)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to read embeddings: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// serializeVector packs a float32 slice as little-endian bytes.
func serializeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeVector unpacks little-endian bytes into a float32 slice.
func deserializeVector(buf []byte, dimension int) ([]float32, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension: %d", dimension)
	}
	if len(buf) != dimension*4 {
		return nil, fmt.Errorf("buffer size mismatch: expected %d bytes, got %d", dimension*4, len(buf))
	}

	vec := make([]float32, dimension)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}

// cosineDistance is 1 - cosine similarity. Zero-norm vectors compare as
// maximally distant rather than dividing by zero.
func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

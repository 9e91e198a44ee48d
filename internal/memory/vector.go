package memory

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/mnemo-ai/mnemo/internal/db"
)

// VectorStore provides vector similarity search via sqlite-vec, one vec0
// table per memory kind. When the vec0 module was unavailable at open time
// the store becomes a no-op and search degrades to field lookup; any query
// error after a successful open is a real failure and is returned.
type VectorStore struct {
	conn    *sql.DB
	enabled bool
}

// NewVectorStore creates a VectorStore backed by the given DB.
func NewVectorStore(database *db.DB) *VectorStore {
	return &VectorStore{conn: database.Conn(), enabled: database.VecEnabled()}
}

// Enabled reports whether the vec0 tables exist and vector operations are live.
func (v *VectorStore) Enabled() bool {
	return v.enabled
}

// vecTable maps a kind to its vec0 table name. Kinds are a closed enum, so
// the name can be interpolated into SQL safely.
func vecTable(kind Kind) (string, error) {
	if !ValidKind(kind) {
		return "", fmt.Errorf("vector: unknown kind %q", kind)
	}
	return "vec_" + string(kind), nil
}

// Upsert inserts or replaces the embedding for a record of the given kind.
func (v *VectorStore) Upsert(ctx context.Context, kind Kind, id string, embedding []float32) error {
	if !v.enabled || len(embedding) == 0 {
		return nil
	}
	table, err := vecTable(kind)
	if err != nil {
		return err
	}
	blob := float32SliceToBlob(embedding)
	_, err = v.conn.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, embedding) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET embedding = excluded.embedding`, table),
		id, blob,
	)
	if err != nil {
		return fmt.Errorf("vector: upsert %s embedding: %w", kind, err)
	}
	return nil
}

// Delete removes the embedding for a record of the given kind.
func (v *VectorStore) Delete(ctx context.Context, kind Kind, id string) error {
	if !v.enabled {
		return nil
	}
	table, err := vecTable(kind)
	if err != nil {
		return err
	}
	_, err = v.conn.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id)
	return err
}

// Match is a single KNN result before hydration.
type Match struct {
	ID       string
	Distance float64
}

// Similarity converts an L2 distance from sqlite-vec into a 0-1 score.
func Similarity(distance float64) float64 {
	return 1.0 / (1.0 + distance)
}

// Nearest finds the k nearest embeddings of the given kind to the query
// vector. Results are ordered by distance ascending.
func (v *VectorStore) Nearest(ctx context.Context, kind Kind, query []float32, k int) ([]Match, error) {
	if !v.enabled || len(query) == 0 || k <= 0 {
		return nil, nil
	}
	table, err := vecTable(kind)
	if err != nil {
		return nil, err
	}
	blob := float32SliceToBlob(query)
	rows, err := v.conn.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, distance FROM %s WHERE embedding MATCH ? AND k = ?
		 ORDER BY distance`, table),
		blob, k,
	)
	if err != nil {
		return nil, fmt.Errorf("vector: knn %s: %w", kind, err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Distance); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ---- Helpers ----

// float32SliceToBlob serialises a float32 slice to a little-endian byte blob.
// This is the format expected by sqlite-vec's BLOB column input.
func float32SliceToBlob(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// BlobToFloat32Slice deserialises a little-endian byte blob to a float32 slice.
func BlobToFloat32Slice(b []byte) []float32 {
	result := make([]float32, len(b)/4)
	for i := range result {
		bits := binary.LittleEndian.Uint32(b[i*4:])
		result[i] = math.Float32frombits(bits)
	}
	return result
}

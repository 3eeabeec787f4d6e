package search

import (
	"container/heap"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// Record is one objective's embedding row.
type Record struct {
	ObjectiveID string
	Text        string
	Embedding   []float32
	CreatedAt   time.Time
}

// Hit is a search result: the objective, its indexed text, and the
// similarity score against the query (cosine, higher is better).
type Hit struct {
	ObjectiveID string  `json:"objective_id"`
	Text        string  `json:"text"`
	Score       float32 `json:"score"`
}

// VectorStore holds one embedding per objective in SQLite and answers
// similarity queries with a brute-force cosine scan. At the graph sizes
// this serves (thousands of objectives) a full scan is well under a
// millisecond; revisit if the table ever grows past ~100K rows.
type VectorStore struct {
	db *sql.DB
}

// NewVectorStore wraps an existing *sql.DB for vector operations.
// The objective_vectors table must already exist (created via migrations).
func NewVectorStore(db *sql.DB) *VectorStore {
	return &VectorStore{db: db}
}

// Upsert writes records, replacing any existing embedding for the same
// objective.
func (s *VectorStore) Upsert(records []Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning upsert transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO objective_vectors (objective_id, text, embedding, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(objective_id) DO UPDATE SET text = excluded.text, embedding = excluded.embedding`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		blob := encodeFloat32s(r.Embedding)
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := stmt.Exec(r.ObjectiveID, r.Text, blob, createdAt.Format(time.RFC3339)); err != nil {
			tx.Rollback()
			return fmt.Errorf("upserting vector for %s: %w", r.ObjectiveID, err)
		}
	}

	return tx.Commit()
}

// idScore holds only the objective id and score during the scan phase of
// Search. Text is fetched only for top-K winners.
type idScore struct {
	ID    string
	Score float32
}

// Search performs a brute-force cosine similarity scan over all vectors,
// returning the top-K most similar objectives.
func (s *VectorStore) Search(vector []float32, topK int) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}

	rows, err := s.db.Query(`SELECT objective_id, embedding FROM objective_vectors`)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	h := &idScoreHeap{}
	heap.Init(h)

	// Reusable buffer for decoding embeddings to avoid per-row allocations.
	var buf []float32

	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}

		score := cosineSimilarity(vector, buf, queryNorm)
		if h.Len() < topK {
			heap.Push(h, idScore{ID: id, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = idScore{ID: id, Score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	if h.Len() == 0 {
		return nil, nil
	}

	topIDs := make([]string, h.Len())
	scores := make(map[string]float32, h.Len())
	for i := len(topIDs) - 1; i >= 0; i-- {
		item := heap.Pop(h).(idScore)
		topIDs[i] = item.ID
		scores[item.ID] = item.Score
	}

	queryArgs := make([]any, len(topIDs))
	for i, id := range topIDs {
		queryArgs[i] = id
	}
	textQuery := `SELECT objective_id, text FROM objective_vectors
		WHERE objective_id IN (?` + strings.Repeat(",?", len(topIDs)-1) + `)`

	textRows, err := s.db.Query(textQuery, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("fetching top-K texts: %w", err)
	}
	defer textRows.Close()

	texts := make(map[string]string, len(topIDs))
	for textRows.Next() {
		var id, text string
		if err := textRows.Scan(&id, &text); err != nil {
			return nil, fmt.Errorf("scanning text row: %w", err)
		}
		texts[id] = text
	}
	if err := textRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating text rows: %w", err)
	}

	hits := make([]Hit, 0, len(topIDs))
	for _, id := range topIDs {
		hits = append(hits, Hit{ObjectiveID: id, Text: texts[id], Score: scores[id]})
	}
	return hits, nil
}

// Delete removes an objective's embedding. Missing rows are not an error.
func (s *VectorStore) Delete(objectiveID string) error {
	_, err := s.db.Exec(`DELETE FROM objective_vectors WHERE objective_id = ?`, objectiveID)
	return err
}

// Count returns the number of indexed objectives.
func (s *VectorStore) Count() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM objective_vectors`).Scan(&count)
	return count, err
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32sInto decodes little-endian bytes into the provided buffer,
// reusing it to avoid per-row allocations during search scans.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosineSimilarity computes dot(a,b) / (aNorm * bNorm). aNorm is the
// precomputed L2 norm of vector a.
func cosineSimilarity(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	var bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}

// idScoreHeap is a min-heap of idScore ordered by Score.
// Used during the scan phase of Search to track top-K candidates.
type idScoreHeap []idScore

func (h idScoreHeap) Len() int           { return len(h) }
func (h idScoreHeap) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h idScoreHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idScoreHeap) Push(x any)        { *h = append(*h, x.(idScore)) }
func (h *idScoreHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

package memory

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"webresearch/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id           TEXT PRIMARY KEY,
	content      TEXT NOT NULL,
	content_hash TEXT NOT NULL UNIQUE,
	metadata     TEXT NOT NULL DEFAULT '{}',
	embedding    TEXT,
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at);
`

// Options tunes recall.
type Options struct {
	// MinScore drops vector matches below this cosine similarity.
	MinScore float64
	// ScanLimit bounds how many recent embedded rows a vector search reads.
	ScanLimit int
}

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db       *sql.DB
	mu       sync.RWMutex
	path     string
	embedder Embedder
	opts     Options
	now      func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// Open initializes the database at path (":memory:" for an in-process
// store). embedder may be nil, in which case recall is keyword based.
func Open(path string, embedder Embedder, opts ...Options) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryMemory, "Open")
	defer timer.Stop()

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.MemoryDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			logging.MemoryDebug("Failed to set sqlite journal_mode=WAL: %v", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	o := Options{MinScore: 0.55, ScanLimit: 2000}
	if len(opts) > 0 {
		if opts[0].MinScore > 0 {
			o.MinScore = opts[0].MinScore
		}
		if opts[0].ScanLimit > 0 {
			o.ScanLimit = opts[0].ScanLimit
		}
	}

	logging.Memory("memory store ready at %s (semantic=%t)", path, embedder != nil)
	return &SQLiteStore{db: db, path: path, embedder: embedder, opts: o, now: time.Now}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Store saves content. Identical content is stored once; storing it again
// refreshes its metadata and timestamp.
func (s *SQLiteStore) Store(ctx context.Context, content string, metadata map[string]string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("memory: empty content")
	}

	var embJSON sql.NullString
	if s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, content)
		if err != nil {
			logging.MemoryWarn("embedding failed, storing without vector: %v", err)
		} else if b, err := json.Marshal(vec); err == nil {
			embJSON = sql.NullString{String: string(b), Valid: true}
		}
	}

	if metadata == nil {
		metadata = map[string]string{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("memory: encode metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, content, content_hash, metadata, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO UPDATE SET
			metadata = excluded.metadata,
			embedding = COALESCE(excluded.embedding, memories.embedding),
			created_at = excluded.created_at`,
		uuid.NewString(), content, contentHash(content), string(metaJSON), embJSON, s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("memory: store: %w", err)
	}
	logging.MemoryDebug("stored memory (%d chars, %d metadata keys)", len(content), len(metadata))
	return nil
}

// Search returns up to limit memories related to query, best first.
func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	timer := logging.StartTimer(logging.CategoryMemory, "Search")
	defer timer.Stop()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	if s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, query)
		if err == nil {
			results, err := s.vectorSearch(ctx, vec, limit)
			if err != nil {
				return nil, err
			}
			if len(results) > 0 {
				return results, nil
			}
		} else {
			logging.MemoryWarn("query embedding failed, using keyword recall: %v", err)
		}
	}
	return s.keywordSearch(ctx, query, limit)
}

func (s *SQLiteStore) vectorSearch(ctx context.Context, query []float32, limit int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, metadata, embedding, created_at FROM memories
		 WHERE embedding IS NOT NULL ORDER BY created_at DESC LIMIT ?`, s.opts.ScanLimit)
	if err != nil {
		return nil, fmt.Errorf("memory: vector search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r        Result
			metaJSON string
			embJSON  string
			created  int64
		)
		if err := rows.Scan(&r.ID, &r.Content, &metaJSON, &embJSON, &created); err != nil {
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(embJSON), &vec); err != nil {
			continue
		}
		r.Score = CosineSimilarity(query, vec)
		if r.Score < s.opts.MinScore {
			continue
		}
		_ = json.Unmarshal([]byte(metaJSON), &r.Metadata)
		r.CreatedAt = time.Unix(0, created)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: vector search: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	logging.MemoryDebug("vector recall returned %d results", len(results))
	return results, nil
}

// keywordSearch scores rows by the fraction of query keywords they contain.
func (s *SQLiteStore) keywordSearch(ctx context.Context, query string, limit int) ([]Result, error) {
	keywords := keywordsOf(query)
	if len(keywords) == 0 {
		return nil, nil
	}

	var conditions []string
	var args []interface{}
	for _, kw := range keywords {
		conditions = append(conditions, "LOWER(content) LIKE ?")
		args = append(args, "%"+kw+"%")
	}
	args = append(args, s.opts.ScanLimit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT id, content, metadata, created_at FROM memories WHERE %s ORDER BY created_at DESC LIMIT ?",
		strings.Join(conditions, " OR ")), args...)
	if err != nil {
		return nil, fmt.Errorf("memory: keyword search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r        Result
			metaJSON string
			created  int64
		)
		if err := rows.Scan(&r.ID, &r.Content, &metaJSON, &created); err != nil {
			continue
		}
		lower := strings.ToLower(r.Content)
		hits := 0
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		r.Score = float64(hits) / float64(len(keywords))
		_ = json.Unmarshal([]byte(metaJSON), &r.Metadata)
		r.CreatedAt = time.Unix(0, created)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: keyword search: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	logging.MemoryDebug("keyword recall returned %d results", len(results))
	return results, nil
}

// keywordsOf lowercases query and drops short words and LIKE wildcards.
func keywordsOf(query string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, ".,;:!?\"'()[]{}%_")
		if len([]rune(w)) < 3 || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

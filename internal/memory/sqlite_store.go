package memory

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on an SQLite scratch database.
// InitSchema drops and recreates the records table, so nothing stored
// outlives the process that stored it. Content is kept as JSON and comes
// back decoded into generic values (maps, slices, strings, numbers).
// Vector similarity search is performed in application memory using cosine similarity.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLiteStore connected to the given database path.
// The path should be a file path (e.g., "./scratch.db") or ":memory:" for an in-memory database.
// It opens the database connection and verifies connectivity with a ping.
func NewSQLiteStore(ctx context.Context, dbPath string, opts ...Option) (*SQLiteStore, error) {
	o := buildOptions(opts)

	inMemory := dbPath == "" || dbPath == ":memory:" || strings.HasPrefix(dbPath, "file::memory:")
	dsn := dbPath
	if dbPath == "" {
		dsn = ":memory:"
	}
	if !inMemory {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to :memory: is a distinct database.
	if inMemory {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStore{db: db, logger: o.logger}, nil
}

// InitSchema recreates the records table. Call it once after NewSQLiteStore.
func (s *SQLiteStore) InitSchema(ctx context.Context) error {
	schema := `
		DROP TABLE IF EXISTS memory_records;

		CREATE TABLE memory_records (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			record_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			content TEXT,
			created_at TEXT NOT NULL,
			importance REAL NOT NULL,
			tier TEXT NOT NULL DEFAULT '',
			embedding BLOB
		);

		CREATE INDEX idx_memory_records_kind ON memory_records(kind, importance DESC, seq);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Save inserts record.
func (s *SQLiteStore) Save(ctx context.Context, record Record) error {
	content, err := json.Marshal(record.Content)
	if err != nil {
		return fmt.Errorf("failed to encode memory content: %w", err)
	}

	query := `
		INSERT INTO memory_records (record_id, kind, content, created_at, importance, tier, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		record.ID,
		record.Kind,
		string(content),
		record.CreatedAt.UTC().Format(time.RFC3339Nano),
		record.Importance,
		string(record.Tier),
		encodeVector(record.Embedding),
	)
	if err != nil {
		return fmt.Errorf("failed to save memory record: %w", err)
	}

	s.logger.InfoContext(ctx, "memory stored",
		"kind", record.Kind,
		"importance", record.Importance,
		"tier", string(record.Tier),
	)
	return nil
}

// Retrieve returns up to limit records of kind, most important first.
func (s *SQLiteStore) Retrieve(ctx context.Context, kind string, limit int) ([]Record, error) {
	if limit <= 0 {
		return []Record{}, nil
	}

	var matched int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_records WHERE kind = ?`, kind).Scan(&matched); err != nil {
		return nil, fmt.Errorf("failed to count memory records: %w", err)
	}

	query := `
		SELECT record_id, kind, content, created_at, importance, tier, embedding
		FROM memory_records
		WHERE kind = ?
		ORDER BY importance DESC, seq ASC
		LIMIT ?
	`

	records, err := s.query(ctx, query, kind, limit)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "memory retrieved",
		"kind", kind,
		"matched", matched,
		"returned", len(records),
	)
	return records, nil
}

// All returns every record in insertion order.
func (s *SQLiteStore) All(ctx context.Context) ([]Record, error) {
	query := `
		SELECT record_id, kind, content, created_at, importance, tier, embedding
		FROM memory_records
		ORDER BY seq ASC
	`
	return s.query(ctx, query)
}

// Clear deletes every record.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memory_records`)
	if err != nil {
		return fmt.Errorf("failed to clear memory records: %w", err)
	}
	n, _ := res.RowsAffected()
	s.logger.InfoContext(ctx, "memory cleared", "removed", n)
	return nil
}

// SearchSimilar loads embedded records of kind and ranks them by cosine
// similarity in application memory. This approach is suitable for smaller
// datasets (< 10K records).
func (s *SQLiteStore) SearchSimilar(ctx context.Context, kind string, query []float32, limit int) ([]ScoredRecord, error) {
	q := `
		SELECT record_id, kind, content, created_at, importance, tier, embedding
		FROM memory_records
		WHERE embedding IS NOT NULL AND (? = '' OR kind = ?)
		ORDER BY seq ASC
	`
	records, err := s.query(ctx, q, kind, kind)
	if err != nil {
		return nil, err
	}
	return rankSimilar(records, kind, query, limit), nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memory records: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var (
			r            Record
			content      sql.NullString
			createdAt    string
			tier         string
			embeddingRaw []byte
		)
		if err := rows.Scan(&r.ID, &r.Kind, &content, &createdAt, &r.Importance, &tier, &embeddingRaw); err != nil {
			return nil, fmt.Errorf("failed to scan memory record: %w", err)
		}

		if content.Valid && content.String != "" {
			if err := json.Unmarshal([]byte(content.String), &r.Content); err != nil {
				return nil, fmt.Errorf("failed to decode memory content: %w", err)
			}
		}
		r.CreatedAt, _ = parseTimestamp(createdAt)
		r.Tier = Tier(tier)
		r.Embedding = decodeVector(embeddingRaw)
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memory records: %w", err)
	}
	return records, nil
}

// encodeVector converts a float32 slice to a byte slice for storage.
// Each float32 is encoded as 4 bytes in little-endian format.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector converts a byte slice back to a float32 slice.
func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// parseTimestamp parses a SQLite timestamp string to time.Time.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", s)
}

var (
	_ Store              = (*SQLiteStore)(nil)
	_ SimilaritySearcher = (*SQLiteStore)(nil)
)

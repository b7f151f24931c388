// Package rulebook indexes regulation text and answers keyword queries over it.
package rulebook

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
)

// ErrEmptyQuery is returned for a query with no searchable words.
var ErrEmptyQuery = errors.New("rulebook: query cannot be empty")

// Document describes one ingested regulation file.
type Document struct {
	Path       string
	Filename   string
	Year       int // 0 when no season could be detected
	Type       string
	Checksum   string
	Chunks     int
	IngestedAt time.Time
}

// Excerpt is one search hit.
type Excerpt struct {
	Filename string  `json:"filename"`
	Year     int     `json:"source_year"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
}

// Store keeps regulation chunks in an FTS5 table.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	logger zerolog.Logger
}

// NewStore wraps an open, migrated database.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		now:    time.Now,
		logger: logger.With().Str("component", "rulebook_store").Logger(),
	}
}

// Search returns up to k chunks of the year's regulations ranked by BM25.
func (s *Store) Search(ctx context.Context, year int, query string, k int) ([]Excerpt, error) {
	match := matchExpression(query)
	if match == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		k = 6
	}

	const q = `
		SELECT filename, source_year, content, bm25(regulation_chunks) AS score
		FROM regulation_chunks
		WHERE regulation_chunks MATCH ? AND source_year = ?
		ORDER BY score
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, q, match, year, k)
	if err != nil {
		return nil, fmt.Errorf("rulebook search failed: %w", err)
	}
	defer rows.Close()

	var out []Excerpt
	for rows.Next() {
		var e Excerpt
		if err := rows.Scan(&e.Filename, &e.Year, &e.Content, &e.Score); err != nil {
			return nil, fmt.Errorf("failed to scan rulebook hit: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rulebook hits: %w", err)
	}
	return out, nil
}

// HasYear reports whether any document was ingested for year.
func (s *Store) HasYear(ctx context.Context, year int) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM regulation_documents WHERE source_year = ?`, year).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to count documents: %w", err)
	}
	return n > 0, nil
}

// Checksum returns the stored checksum of path, or "" if it was never ingested.
func (s *Store) Checksum(ctx context.Context, path string) (string, error) {
	var sum string
	err := s.db.QueryRowContext(ctx, `SELECT checksum FROM regulation_documents WHERE path = ?`, path).Scan(&sum)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read checksum: %w", err)
	}
	return sum, nil
}

// Replace swaps every chunk of doc.Path for chunks in one transaction.
func (s *Store) Replace(ctx context.Context, doc Document, chunks []string) error {
	if doc.IngestedAt.IsZero() {
		doc.IngestedAt = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM regulation_chunks WHERE path = ?`, doc.Path); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO regulation_chunks (content, filename, path, source_year) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c, doc.Filename, doc.Path, doc.Year); err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}

	const upsert = `
		INSERT INTO regulation_documents (path, source_year, filename, checksum, ingested_at, doc_type, chunks)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			source_year = excluded.source_year,
			filename = excluded.filename,
			checksum = excluded.checksum,
			ingested_at = excluded.ingested_at,
			doc_type = excluded.doc_type,
			chunks = excluded.chunks
	`
	if _, err := tx.ExecContext(ctx, upsert, doc.Path, doc.Year, doc.Filename, doc.Checksum, doc.IngestedAt.UTC(), doc.Type, len(chunks)); err != nil {
		return fmt.Errorf("failed to record document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document: %w", err)
	}
	s.logger.Debug().Str("path", doc.Path).Int("year", doc.Year).Int("chunks", len(chunks)).Msg("document indexed")
	return nil
}

// Remove drops a document and its chunks.
func (s *Store) Remove(ctx context.Context, path string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM regulation_chunks WHERE path = ?`, path); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM regulation_documents WHERE path = ?`, path); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return tx.Commit()
}

// Documents lists the ingested documents ordered by year and filename.
func (s *Store) Documents(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, filename, source_year, doc_type, checksum, chunks, ingested_at
		FROM regulation_documents
		ORDER BY source_year, filename
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var (
			d  Document
			at any
		)
		if err := rows.Scan(&d.Path, &d.Filename, &d.Year, &d.Type, &d.Checksum, &d.Chunks, &at); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		d.IngestedAt = scanTime(at)
		out = append(out, d)
	}
	return out, rows.Err()
}

// scanTime accepts the driver's native time or its text rendering.
func scanTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed
			}
		}
	case []byte:
		return scanTime(string(t))
	}
	return time.Time{}
}

// matchExpression turns free text into an FTS5 OR query of quoted terms, so
// punctuation and keywords like NOT never reach the FTS5 parser.
func matchExpression(query string) string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool, len(words))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) < 2 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "of": true,
	"to": true, "in": true, "on": true, "for": true, "what": true, "how": true,
	"and": true, "or": true, "if": true, "be": true, "by": true, "it": true,
	"does": true, "do": true, "can": true, "with": true, "at": true, "as": true,
}

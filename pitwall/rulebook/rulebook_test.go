package rulebook

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/pitwall/pitwall/db"
)

type memIndex struct {
	mu       sync.Mutex
	docs     map[string]Document
	chunks   map[string][]string
	replaces int
}

func newMemIndex() *memIndex {
	return &memIndex{docs: make(map[string]Document), chunks: make(map[string][]string)}
}

func (m *memIndex) Checksum(ctx context.Context, path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[path].Checksum, nil
}

func (m *memIndex) Replace(ctx context.Context, doc Document, chunks []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaces++
	m.docs[doc.Path] = doc
	m.chunks[doc.Path] = chunks
	return nil
}

func (m *memIndex) Remove(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, path)
	delete(m.chunks, path)
	return nil
}

func (m *memIndex) doc(path string) (Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[path]
	return d, ok
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestChunk_SizeAndOverlap(t *testing.T) {
	text := strings.Repeat("overtaking ", 300)
	chunks := Chunk(text, 1000, 200)

	require.GreaterOrEqual(t, len(chunks), 4)
	for i, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 1000)
		if i+1 < len(chunks) {
			tail := c[len(c)-100:]
			assert.Contains(t, chunks[i+1], tail, "chunk %d should overlap the next", i)
		}
	}
}

func TestChunk_PrefersParagraphs(t *testing.T) {
	first := strings.Repeat("a", 600)
	second := strings.Repeat("b", 600)
	chunks := Chunk(first+"\n\n"+second, 1000, 200)

	require.NotEmpty(t, chunks)
	assert.Equal(t, first, chunks[0])
	assert.True(t, strings.HasSuffix(chunks[len(chunks)-1], second))
}

func TestChunk_ShortAndEmpty(t *testing.T) {
	assert.Equal(t, []string{"Article 1"}, Chunk("  Article 1 \n", 1000, 200))
	assert.Empty(t, Chunk("   ", 1000, 200))
}

func TestDetectYearAndType(t *testing.T) {
	tests := []struct {
		path string
		year int
		typ  string
	}{
		{"/regs/2025/Sporting_Regulations.txt", 2025, "Sporting"},
		{"/regs/misc/2026_Technical_Regulations.md", 2026, "Technical"},
		{"/regs/misc/financial.txt", 0, "Financial"},
		{"/regs/abcd/notes.txt", 0, "Regulatory"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.year, DetectYear(tt.path))
			assert.Equal(t, tt.typ, DetectType(filepath.Base(tt.path)))
		})
	}
}

func TestDefaultYear(t *testing.T) {
	has2026 := func(y int) bool { return y == 2026 }

	assert.Equal(t, 2025, DefaultYear(time.Date(2025, 12, 10, 12, 0, 0, 0, time.UTC), has2026))
	assert.Equal(t, 2026, DefaultYear(time.Date(2025, 12, 11, 0, 0, 0, 0, time.UTC), has2026))
	assert.Equal(t, 2025, DefaultYear(time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC), func(int) bool { return false }))
	assert.Equal(t, 2025, DefaultYear(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), has2026))
}

func TestMatchExpression(t *testing.T) {
	assert.Equal(t, `"penalty" OR "pit" OR "lane" OR "speeding"`,
		matchExpression("What is the penalty for pit-lane speeding?"))
	assert.Equal(t, `"drs"`, matchExpression(`DRS "drs" (drs)`))
	assert.Empty(t, matchExpression("?? !!"))
}

func TestIngester_SkipsUnchangedFiles(t *testing.T) {
	dir := t.TempDir()
	sporting := filepath.Join(dir, "2025", "Sporting_Regulations.txt")
	writeFile(t, sporting, "ARTICLE 1\n\nThe pit lane speed limit is 80 km/h.")
	writeFile(t, filepath.Join(dir, "2025", "cover.pdf"), "binary")

	idx := newMemIndex()
	in := NewIngester(idx, zerolog.Nop())

	report, err := in.IngestDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, Report{Files: 1, Indexed: 1, Chunks: 1}, report)

	doc, ok := idx.doc(sporting)
	require.True(t, ok)
	assert.Equal(t, 2025, doc.Year)
	assert.Equal(t, "Sporting", doc.Type)

	report, err = in.IngestDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Unchanged)
	assert.Equal(t, 1, idx.replaces)

	writeFile(t, sporting, "ARTICLE 1\n\nThe pit lane speed limit is 60 km/h.")
	report, err = in.IngestDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
	assert.Equal(t, 2, idx.replaces)
}

func TestWatcher_ReingestsChangedFiles(t *testing.T) {
	dir := t.TempDir()
	idx := newMemIndex()
	w := NewWatcher(NewIngester(idx, zerolog.Nop()), dir, 20*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// let the watcher register the root
	time.Sleep(100 * time.Millisecond)

	yearDir := filepath.Join(dir, "2026")
	require.NoError(t, os.MkdirAll(yearDir, 0o755))
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(yearDir, "Technical_Regulations.md")
	writeFile(t, path, "# Power units\n\nMGU-K output is limited to 350 kW.")

	assert.Eventually(t, func() bool {
		d, ok := idx.doc(path)
		return ok && d.Year == 2026
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(path))
	assert.Eventually(t, func() bool {
		_, ok := idx.doc(path)
		return !ok
	}, 3*time.Second, 20*time.Millisecond)
}

func openStore(t *testing.T) *Store {
	t.Helper()
	conn, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "rules.db"), zerolog.Nop())
	if err != nil {
		t.Skipf("embedded libsql unavailable: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewStore(conn, zerolog.Nop())
}

func TestStore_SearchByYear(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.Replace(ctx, Document{Path: "/r/2025/s.txt", Filename: "s.txt", Year: 2025, Type: "Sporting", Checksum: "a"}, []string{
		"The pit lane speed limit is 80 km/h during the race.",
		"Cars must use two different dry tyre compounds.",
	}))
	require.NoError(t, s.Replace(ctx, Document{Path: "/r/2026/s.txt", Filename: "s26.txt", Year: 2026, Type: "Sporting", Checksum: "b"}, []string{
		"The pit lane speed limit is 60 km/h.",
	}))

	hits, err := s.Search(ctx, 2025, "pit lane speed?", 6)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "s.txt", hits[0].Filename)
	assert.Contains(t, hits[0].Content, "80 km/h")

	ok, err := s.HasYear(ctx, 2026)
	require.NoError(t, err)
	assert.True(t, ok)

	sum, err := s.Checksum(ctx, "/r/2025/s.txt")
	require.NoError(t, err)
	assert.Equal(t, "a", sum)

	require.NoError(t, s.Remove(ctx, "/r/2026/s.txt"))
	hits, err = s.Search(ctx, 2026, "pit lane", 6)
	require.NoError(t, err)
	assert.Empty(t, hits)

	docs, err := s.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 2, docs[0].Chunks)

	_, err = s.Search(ctx, 2025, "?", 6)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

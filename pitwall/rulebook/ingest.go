package rulebook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Chunking defaults.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Index is the write side of the rulebook store.
type Index interface {
	Checksum(ctx context.Context, path string) (string, error)
	Replace(ctx context.Context, doc Document, chunks []string) error
	Remove(ctx context.Context, path string) error
}

// Report summarizes an ingest run.
type Report struct {
	Files     int
	Indexed   int
	Unchanged int
	Failed    int
	Chunks    int
}

// Ingester splits regulation text files into overlapping chunks and indexes them.
type Ingester struct {
	index   Index
	size    int
	overlap int
	logger  zerolog.Logger
}

// NewIngester creates an ingester with the default chunk size and overlap.
func NewIngester(index Index, logger zerolog.Logger) *Ingester {
	return &Ingester{
		index:   index,
		size:    DefaultChunkSize,
		overlap: DefaultChunkOverlap,
		logger:  logger.With().Str("component", "rulebook_ingest").Logger(),
	}
}

// Supported reports whether path is a text format the ingester reads.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return true
	}
	return false
}

// IngestDir indexes every supported file under dir. A failing file is logged
// and counted; it does not stop the walk.
func (in *Ingester) IngestDir(ctx context.Context, dir string) (Report, error) {
	var report Report
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !Supported(path) {
			return nil
		}

		report.Files++
		n, changed, err := in.IngestFile(ctx, path)
		switch {
		case err != nil:
			report.Failed++
			in.logger.Warn().Err(err).Str("path", path).Msg("failed to ingest file")
		case changed:
			report.Indexed++
			report.Chunks += n
		default:
			report.Unchanged++
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("walk %s: %w", dir, err)
	}

	in.logger.Info().
		Str("dir", dir).
		Int("files", report.Files).
		Int("indexed", report.Indexed).
		Int("unchanged", report.Unchanged).
		Int("failed", report.Failed).
		Msg("rulebook ingest finished")
	return report, nil
}

// IngestFile indexes one file unless its checksum is unchanged. It returns
// the number of chunks written and whether the index changed.
func (in *Ingester) IngestFile(ctx context.Context, path string) (int, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, false, fmt.Errorf("read %s: %w", path, err)
	}

	sum := sha256.Sum256(raw)
	checksum := hex.EncodeToString(sum[:])
	prev, err := in.index.Checksum(ctx, path)
	if err != nil {
		return 0, false, err
	}
	if prev == checksum {
		return 0, false, nil
	}

	chunks := Chunk(string(raw), in.size, in.overlap)
	doc := Document{
		Path:       path,
		Filename:   filepath.Base(path),
		Year:       DetectYear(path),
		Type:       DetectType(filepath.Base(path)),
		Checksum:   checksum,
		Chunks:     len(chunks),
		IngestedAt: time.Now(),
	}
	if err := in.index.Replace(ctx, doc, chunks); err != nil {
		return 0, false, err
	}
	in.logger.Info().Str("file", doc.Filename).Int("year", doc.Year).Str("type", doc.Type).Int("chunks", len(chunks)).Msg("indexed regulation file")
	return len(chunks), true, nil
}

// Forget removes a deleted file from the index.
func (in *Ingester) Forget(ctx context.Context, path string) error {
	return in.index.Remove(ctx, path)
}

var yearPattern = regexp.MustCompile(`20\d{2}`)

// DetectYear takes the season from a four-digit parent directory, else from
// a 20xx run in the filename, else 0.
func DetectYear(path string) int {
	parent := filepath.Base(filepath.Dir(path))
	if len(parent) == 4 {
		if y, err := strconv.Atoi(parent); err == nil {
			return y
		}
	}
	if m := yearPattern.FindString(filepath.Base(path)); m != "" {
		y, _ := strconv.Atoi(m)
		return y
	}
	return 0
}

// DetectType classifies a regulation by filename keyword.
func DetectType(filename string) string {
	name := strings.ToLower(filename)
	switch {
	case strings.Contains(name, "sporting"):
		return "Sporting"
	case strings.Contains(name, "technical"):
		return "Technical"
	case strings.Contains(name, "financial"):
		return "Financial"
	}
	return "Regulatory"
}

var separators = []string{"\n\n", "\n", "ARTICLE", " "}

// Chunk splits text into pieces of at most size runes, consecutive pieces
// sharing overlap runes. Cuts prefer paragraph, line, article and word
// boundaries in that order.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(strings.TrimSpace(text))
	var out []string
	for start := 0; start < len(runes); {
		end := start + size
		if end >= len(runes) {
			if piece := strings.TrimSpace(string(runes[start:])); piece != "" {
				out = append(out, piece)
			}
			break
		}
		end = cutPoint(runes, start+overlap+1, end)

		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			out = append(out, piece)
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// cutPoint finds the best boundary in runes[lo:hi], or hi if none.
func cutPoint(runes []rune, lo, hi int) int {
	window := string(runes[lo:hi])
	for _, sep := range separators {
		if i := strings.LastIndex(window, sep); i >= 0 {
			offset := len([]rune(window[:i]))
			if sep != "ARTICLE" {
				offset += len([]rune(sep))
			}
			if offset > 0 {
				return lo + offset
			}
		}
	}
	return hi
}

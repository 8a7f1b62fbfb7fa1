package xmlgen

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const xmlHeader = `<?xml version="1.0" encoding="utf-8"?>` + "\n"

// Container identifies one finalized (or open) batch output file.
type Container struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// BatchWriter collects fragments into numbered container documents, each a
// well-formed <import> file holding at most limit fragments. A container is
// finalized the moment it reaches the bound, not at the end of the run, so
// an interrupted run leaves at most the currently filling container open and
// Close settles that one too. Container numbers are monotonic per writer and
// never reused.
type BatchWriter struct {
	dir   string
	base  string
	ext   string
	limit int

	seq        int
	current    string
	fragments  []string
	containers []Container
}

// NewBatchWriter derives the container naming scheme from the configured
// output base path ("out/import.xml" produces out/import_1.xml,
// out/import_2.xml, ...) and ensures the output directory exists.
func NewBatchWriter(outputBase string, limit int) (*BatchWriter, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", limit)
	}
	abs, err := filepath.Abs(outputBase)
	if err != nil {
		return nil, fmt.Errorf("resolve output path %q: %w", outputBase, err)
	}
	dir := filepath.Dir(abs)
	ext := filepath.Ext(abs)
	if ext == "" {
		ext = ".xml"
	}
	base := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure output directory: %w", err)
	}
	return &BatchWriter{dir: dir, base: base, ext: ext, limit: limit}, nil
}

// Append buffers a fragment and returns the path of the container it belongs
// to, plus whether this append finalized that container. Reaching the bound
// flushes immediately.
func (w *BatchWriter) Append(fragment string) (string, bool, error) {
	if len(w.fragments) == 0 {
		w.seq++
		w.current = filepath.Join(w.dir, fmt.Sprintf("%s_%d%s", w.base, w.seq, w.ext))
	}
	w.fragments = append(w.fragments, fragment)
	container := w.current
	if len(w.fragments) >= w.limit {
		if err := w.flush(); err != nil {
			return container, false, err
		}
		return container, true, nil
	}
	return container, false, nil
}

// Close finalizes the partially filled container, if any.
func (w *BatchWriter) Close() error {
	if len(w.fragments) == 0 {
		return nil
	}
	return w.flush()
}

// Containers lists the finalized containers in write order.
func (w *BatchWriter) Containers() []Container {
	return append([]Container(nil), w.containers...)
}

func (w *BatchWriter) flush() error {
	tempFile, err := os.CreateTemp(w.dir, w.base+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp container file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = tempFile.Close()
			_ = os.Remove(tempPath)
		}
	}()

	var doc strings.Builder
	doc.WriteString(xmlHeader)
	doc.WriteString("<import>")
	for _, fragment := range w.fragments {
		doc.WriteString(fragment)
	}
	doc.WriteString("</import>")

	if _, err := tempFile.WriteString(doc.String()); err != nil {
		return fmt.Errorf("write container %s: %w", w.current, err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("sync container %s: %w", w.current, err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close container %s: %w", w.current, err)
	}
	if err := os.Rename(tempPath, w.current); err != nil {
		return fmt.Errorf("promote container %s: %w", w.current, err)
	}
	cleanup = false

	w.containers = append(w.containers, Container{Path: w.current, Count: len(w.fragments)})
	w.fragments = w.fragments[:0]
	w.current = ""
	return nil
}

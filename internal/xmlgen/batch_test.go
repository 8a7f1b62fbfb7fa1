package xmlgen

import (
	"encoding/xml"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBatchWriterSplitsAtBound(t *testing.T) {
	dir := t.TempDir()
	w, err := NewBatchWriter(filepath.Join(dir, "import.xml"), 2)
	if err != nil {
		t.Fatalf("NewBatchWriter: %v", err)
	}

	fragments := []string{"<node>a</node>", "<node>b</node>", "<node>c</node>"}
	var finalized []bool
	for _, f := range fragments {
		_, done, err := w.Append(f)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		finalized = append(finalized, done)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if !finalized[1] || finalized[0] || finalized[2] {
		t.Fatalf("finalization flags = %v, want [false true false]", finalized)
	}

	containers := w.Containers()
	if len(containers) != 2 {
		t.Fatalf("got %d containers, want 2", len(containers))
	}
	if containers[0].Count != 2 || containers[1].Count != 1 {
		t.Fatalf("container counts = %d,%d, want 2,1", containers[0].Count, containers[1].Count)
	}
	if filepath.Base(containers[0].Path) != "import_1.xml" || filepath.Base(containers[1].Path) != "import_2.xml" {
		t.Fatalf("container names = %s, %s", containers[0].Path, containers[1].Path)
	}

	first, err := os.ReadFile(containers[0].Path)
	if err != nil {
		t.Fatalf("read first container: %v", err)
	}
	want := xmlHeader + "<import><node>a</node><node>b</node></import>"
	if string(first) != want {
		t.Fatalf("first container content:\n%s\nwant:\n%s", first, want)
	}
}

func TestBatchWriterContainersAreWellFormed(t *testing.T) {
	dir := t.TempDir()
	w, err := NewBatchWriter(filepath.Join(dir, "out", "batch.xml"), 3)
	if err != nil {
		t.Fatalf("NewBatchWriter: %v", err)
	}
	rec := sampleRecord()
	fragment := Render(rec, nil, NewCDATAPolicy([]string{"*"}))
	for i := 0; i < 4; i++ {
		if _, _, err := w.Append(fragment); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	for _, c := range w.Containers() {
		data, err := os.ReadFile(c.Path)
		if err != nil {
			t.Fatalf("read %s: %v", c.Path, err)
		}
		dec := xml.NewDecoder(strings.NewReader(string(data)))
		for {
			if _, err := dec.Token(); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				t.Fatalf("container %s not well-formed: %v", c.Path, err)
			}
		}
	}
}

func TestBatchWriterCloseWithoutFragments(t *testing.T) {
	w, err := NewBatchWriter(filepath.Join(t.TempDir(), "import.xml"), 5)
	if err != nil {
		t.Fatalf("NewBatchWriter: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close on empty writer: %v", err)
	}
	if len(w.Containers()) != 0 {
		t.Fatalf("empty writer produced containers: %v", w.Containers())
	}
}

func TestBatchWriterRejectsNonPositiveLimit(t *testing.T) {
	if _, err := NewBatchWriter("import.xml", 0); err == nil {
		t.Fatal("expected error for zero batch size")
	}
}

package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/m4s1t4/karen/internal/domain"
)

// mockRunner is a test double for CommandRunner.
type mockRunner struct {
	output []byte
	err    error
	calls  int
}

func (m *mockRunner) Run(_ context.Context, _ string, _ ...string) ([]byte, error) {
	m.calls++
	return m.output, m.err
}

func TestLoad_PDFSplitsPages(t *testing.T) {
	runner := &mockRunner{output: []byte("page one text\fpage two text\f")}
	l := NewWithRunner(runner)

	units, err := l.Load(context.Background(), "/tmp/report.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d", len(units))
	}
	if units[0].Page != 1 || units[1].Page != 2 {
		t.Errorf("pages not 1-based: %d, %d", units[0].Page, units[1].Page)
	}
	if units[0].Source != "/tmp/report.pdf" {
		t.Errorf("source not retained: %q", units[0].Source)
	}
	if runner.calls != 1 {
		t.Errorf("expected 1 pdftotext call, got %d", runner.calls)
	}
}

func TestLoad_PDFSkipsBlankPages(t *testing.T) {
	runner := &mockRunner{output: []byte("content\f   \n\fmore content")}
	l := NewWithRunner(runner)

	units, err := l.Load(context.Background(), "a.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("expected blank page skipped, got %d units", len(units))
	}
	if units[1].Page != 3 {
		t.Errorf("page numbering must follow the original layout, got %d", units[1].Page)
	}
}

func TestLoad_PDFWithNoText(t *testing.T) {
	runner := &mockRunner{output: []byte("\f\f")}
	l := NewWithRunner(runner)

	_, err := l.Load(context.Background(), "empty.pdf")
	if !errors.Is(err, domain.ErrNoTextUnits) {
		t.Fatalf("expected ErrNoTextUnits, got %v", err)
	}
}

func TestLoad_PDFCommandFailure(t *testing.T) {
	runner := &mockRunner{err: errors.New("exit status 1")}
	l := NewWithRunner(runner)

	if _, err := l.Load(context.Background(), "broken.pdf"); err == nil {
		t.Fatal("expected error from failing pdftotext")
	}
}

func TestLoad_TextFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("plain text body"), 0o600); err != nil {
		t.Fatal(err)
	}

	units, err := New().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("expected 1 unit, got %d", len(units))
	}
	if units[0].Page != 0 {
		t.Errorf("text files are unpaged, got page %d", units[0].Page)
	}
	if units[0].Text != "plain text body" {
		t.Errorf("unexpected text %q", units[0].Text)
	}
}

func TestLoad_EmptyTextFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(path, []byte("  \n "), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := New().Load(context.Background(), path)
	if !errors.Is(err, domain.ErrNoTextUnits) {
		t.Fatalf("expected ErrNoTextUnits, got %v", err)
	}
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	if _, err := New().Load(context.Background(), "archive.zip"); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

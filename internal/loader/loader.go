// Package loader extracts text units from uploaded files. PDFs are split
// into per-page units so citations can point at a page; plain-text formats
// load as a single unit.
package loader

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/m4s1t4/karen/internal/domain"
)

// Unit is one logical piece of a source file (a PDF page, or a whole text
// file). Page is 1-based for paged sources and 0 otherwise.
type Unit struct {
	Text   string
	Source string
	Page   int
}

// CommandRunner executes an external command and returns its stdout.
// Injected so tests can fake the pdftotext binary.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Loader reads source files into text units.
type Loader struct {
	runner CommandRunner
}

// New creates a Loader using the real pdftotext binary.
func New() *Loader {
	return &Loader{runner: execRunner{}}
}

// NewWithRunner creates a Loader with a custom command runner.
func NewWithRunner(r CommandRunner) *Loader {
	return &Loader{runner: r}
}

// Load parses the file at path into text units. It fails with
// domain.ErrNoTextUnits when the file parses but contains no text.
func (l *Loader) Load(ctx context.Context, path string) ([]Unit, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		return l.loadPDF(ctx, path)
	case ".txt", ".md":
		return l.loadText(path)
	default:
		return nil, fmt.Errorf("unsupported file type %q", ext)
	}
}

// loadPDF extracts text via pdftotext. Pages arrive separated by form feeds
// on stdout; each non-empty page becomes one unit.
func (l *Loader) loadPDF(ctx context.Context, path string) ([]Unit, error) {
	out, err := l.runner.Run(ctx, "pdftotext", "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return nil, fmt.Errorf("pdftotext %s: %w", filepath.Base(path), err)
	}

	var units []Unit
	for i, page := range strings.Split(string(out), "\f") {
		if strings.TrimSpace(page) == "" {
			continue
		}
		units = append(units, Unit{Text: page, Source: path, Page: i + 1})
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), domain.ErrNoTextUnits)
	}
	return units, nil
}

func (l *Loader) loadText(path string) ([]Unit, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), domain.ErrNoTextUnits)
	}
	return []Unit{{Text: string(data), Source: path}}, nil
}

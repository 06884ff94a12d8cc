package document

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Extractor turns a document's raw bytes into plain text.
type Extractor interface {
	Extract(ctx context.Context, path string, raw []byte) (string, error)
}

// CommandRunner runs an external program and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// TextExtractor handles PDFs through poppler's pdftotext and treats every
// other file as UTF-8 text.
type TextExtractor struct {
	Runner CommandRunner
}

// NewTextExtractor returns an extractor that shells out to pdftotext.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{Runner: execRunner{}}
}

func (e *TextExtractor) Extract(ctx context.Context, path string, raw []byte) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		out, err := e.Runner.Run(ctx, "pdftotext", "-enc", "UTF-8", "-layout", path, "-")
		if err != nil {
			return "", fmt.Errorf("extract %s: %w (%s)", path, err, InstallInstructions())
		}
		raw = out
	}
	return clean(raw), nil
}

// InstallInstructions tells the operator how to get pdftotext.
func InstallInstructions() string {
	return "pdftotext is required for PDF sources: brew install poppler / apt install poppler-utils"
}

// clean normalises line endings and page breaks and drops invalid UTF-8.
func clean(b []byte) string {
	s := string(b)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\f", "\n")
	return s
}

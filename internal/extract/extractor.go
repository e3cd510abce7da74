// Package extract turns document files into plain text for ingestion.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// DefaultMaxFileSize bounds how much of a file is read for extraction.
const DefaultMaxFileSize = 64 << 20

type extractFunc func(content []byte) (string, error)

// Extractor extracts plain text from document files by extension.
type Extractor struct {
	formats     map[string]extractFunc
	maxFileSize int64
}

// NewExtractor returns an Extractor for plain text, Markdown, reStructuredText, PDF, DOCX and XLSX.
func NewExtractor() *Extractor {
	return &Extractor{
		formats: map[string]extractFunc{
			".txt":  extractPlain,
			".md":   extractPlain,
			".rst":  extractPlain,
			".pdf":  extractPDF,
			".docx": extractDOCX,
			".xlsx": extractExcel,
		},
		maxFileSize: DefaultMaxFileSize,
	}
}

// Supports reports whether ext (with leading dot, any case) has an extractor.
func (e *Extractor) Supports(ext string) bool {
	_, ok := e.formats[strings.ToLower(ext)]
	return ok
}

// Extensions returns the supported extensions, sorted.
func (e *Extractor) Extensions() []string {
	out := make([]string, 0, len(e.formats))
	for ext := range e.formats {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !e.Supports(ext) {
		return "", unsupported(ext)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat file: %w", err)
	}
	if info.Size() > e.maxFileSize {
		return "", models.WrapError(models.ErrInvalidInput, "extract",
			fmt.Errorf("%s is %d bytes, limit is %d", path, info.Size(), e.maxFileSize))
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts text from content based on ext, which includes the leading dot.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	fn, ok := e.formats[strings.ToLower(ext)]
	if !ok {
		return "", unsupported(ext)
	}
	text, err := fn(content)
	if err != nil {
		return "", models.WrapError(models.ErrInvalidInput, "extract "+ext, err)
	}
	return strings.TrimSpace(text), nil
}

func unsupported(ext string) error {
	return models.WrapError(models.ErrInvalidInput, "extract", fmt.Errorf("unsupported format %q", ext))
}

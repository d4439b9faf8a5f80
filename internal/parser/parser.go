package parser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/schema"
)

var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrEmptyDocument       = errors.New("document has no extractable text")
)

// MetadataPage is the schema.Document metadata key carrying the 1-based page,
// sheet, slide or row number of a record.
const MetadataPage = "page"

// LoaderFunc turns the file at path into normalized text records.
type LoaderFunc func(ctx context.Context, path string) ([]schema.Document, error)

// loaders is the closed set of supported extensions. Keys are lower case and
// include the leading dot.
var loaders = map[string]LoaderFunc{
	".txt":  loadText,
	".md":   loadMarkdown,
	".csv":  loadCSV,
	".pdf":  loadPDF,
	".docx": loadDOCX,
	".pptx": loadPPTX,
	".xlsx": loadXLSX,
	".xlsm": loadWorkbook,
	".xltx": loadWorkbook,
	".xltm": loadWorkbook,
	".ods":  loadODS,
}

// LoaderFor returns the loader registered for the extension of fileName.
func LoaderFor(fileName string) (LoaderFunc, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	loader, ok := loaders[ext]
	if !ok {
		if ext == "" {
			ext = "(none)"
		}
		return nil, fmt.Errorf("%w: %s (supported: %s)", ErrUnsupportedFileType, ext, strings.Join(SupportedExtensions(), ", "))
	}
	return loader, nil
}

// Supported reports whether fileName has a registered loader.
func Supported(fileName string) bool {
	_, err := LoaderFor(fileName)
	return err == nil
}

// SupportedExtensions lists the registered extensions in sorted order.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(loaders))
	for ext := range loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Load picks a loader by the extension of fileName and runs it on filePath.
// Records without any non-space text are dropped.
func Load(ctx context.Context, filePath, fileName string) ([]schema.Document, error) {
	loader, err := LoaderFor(fileName)
	if err != nil {
		return nil, err
	}
	docs, err := loader(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", fileName, err)
	}

	kept := docs[:0]
	for _, doc := range docs {
		if strings.TrimSpace(doc.PageContent) == "" {
			continue
		}
		kept = append(kept, doc)
	}
	log.Debug().Str("file", fileName).Int("records", len(kept)).Msg("Loaded document")
	return kept, nil
}

func pageOf(doc schema.Document) int {
	switch v := doc.Metadata[MetadataPage].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

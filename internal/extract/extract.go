// Package extract discovers plain-text documents on disk and turns
// them into indexable documents. Binary formats are out of scope; the
// extractor only accepts UTF-8 text files with supported extensions.
package extract

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docsearch/internal/domain"
)

// supportedExtensions lists extractable file types, lowercase with dot.
var supportedExtensions = map[string]struct{}{
	".txt": {},
	".md":  {},
}

// Extractor walks a document root and reads supported files.
type Extractor struct {
	root   string
	logger *zap.Logger
}

// New creates an extractor rooted at dir.
func New(root string, logger *zap.Logger) *Extractor {
	return &Extractor{root: root, logger: logger}
}

// Discover walks the root recursively and returns a document per
// readable supported file, ordered by path. Hidden directories are
// skipped. A file that cannot be read is logged and dropped, it never
// aborts discovery.
func (e *Extractor) Discover(ctx context.Context) ([]domain.Document, error) {
	var docs []domain.Document

	err := filepath.WalkDir(e.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() {
			if path != e.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if _, ok := supportedExtensions[ext]; !ok {
			return nil
		}

		doc, extractErr := e.extractFile(path)
		if extractErr != nil {
			e.logger.Warn("document dropped", zap.String("path", path), zap.Error(extractErr))
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover documents in %s: %w", e.root, err)
	}

	return docs, nil
}

// extractFile reads one file into a document. The document ID is the
// slash-separated path relative to the root so it stays stable across
// hosts.
func (e *Extractor) extractFile(path string) (domain.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: stat: %w", domain.ErrExtraction, err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: read: %w", domain.ErrExtraction, err)
	}
	if !utf8.Valid(content) {
		return domain.Document{}, fmt.Errorf("%w: %s is not valid UTF-8", domain.ErrExtraction, path)
	}

	rel, err := filepath.Rel(e.root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	return domain.Document{
		ID:           rel,
		SourcePath:   rel,
		FileType:     strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		RawText:      string(content),
		LastModified: info.ModTime(),
	}, nil
}

// Package store reads and writes persisted documents per language.
package store

import (
	"context"
	"errors"

	"github.com/minios-linux/contentkit/content"
)

// ErrNotFound is returned when a document does not exist in a language.
var ErrNotFound = errors.New("document not found")

// Document is a persisted document in one language.
type Document struct {
	ID       string
	Path     string
	Language string
	Title    string
	Slug     string
	// Template names the blueprint describing Content.
	Template string
	Content  content.Document
}

// Patch is a partial update. Nil fields are left unchanged. Content keys
// replace the same keys of the stored content; other stored keys are kept.
type Patch struct {
	Content content.Document
	Title   *string
	Slug    *string
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Content == nil && p.Title == nil && p.Slug == nil
}

// Accessor reads and writes documents.
type Accessor interface {
	Get(ctx context.Context, path, lang string) (*Document, error)
	Patch(ctx context.Context, path, lang string, p Patch) error
}

package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/minios-linux/contentkit/content"
	"gopkg.in/yaml.v3"
)

// fileDocument is the on-disk shape of <root>/<path>/<lang>.yml.
type fileDocument struct {
	ID       string           `yaml:"id,omitempty"`
	Title    string           `yaml:"title,omitempty"`
	Slug     string           `yaml:"slug,omitempty"`
	Template string           `yaml:"template,omitempty"`
	Content  content.Document `yaml:"content,omitempty"`
}

// FileStore keeps documents as YAML files, one directory per document and
// one file per language.
type FileStore struct {
	root            string
	defaultLanguage string
	mu              sync.Mutex
}

// NewFileStore returns a store rooted at root. Translations created by
// Patch inherit id and template from the defaultLanguage file.
func NewFileStore(root, defaultLanguage string) *FileStore {
	return &FileStore{root: root, defaultLanguage: defaultLanguage}
}

func (s *FileStore) file(path, lang string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid document path %q", path)
	}
	if lang == "" || strings.ContainsAny(lang, `/\`) {
		return "", fmt.Errorf("invalid language %q", lang)
	}
	return filepath.Join(s.root, clean, lang+".yml"), nil
}

func (s *FileStore) read(path, lang string) (*fileDocument, error) {
	name, err := s.file(path, lang)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s (%s): %w", path, lang, ErrNotFound)
		}
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	var fd fileDocument
	if err := yaml.Unmarshal(data, &fd); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	if fd.Content == nil {
		fd.Content = content.Document{}
	}
	return &fd, nil
}

// Get reads a document.
func (s *FileStore) Get(ctx context.Context, path, lang string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fd, err := s.read(path, lang)
	if err != nil {
		return nil, err
	}
	id := fd.ID
	if id == "" {
		id = filepath.ToSlash(path)
	}
	return &Document{
		ID:       id,
		Path:     filepath.ToSlash(path),
		Language: lang,
		Title:    fd.Title,
		Slug:     fd.Slug,
		Template: fd.Template,
		Content:  fd.Content,
	}, nil
}

// Patch updates a document, creating the language file if needed.
func (s *FileStore) Patch(ctx context.Context, path, lang string, p Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	fd, err := s.read(path, lang)
	switch {
	case errors.Is(err, ErrNotFound):
		fd, err = s.seed(path, lang)
		if err != nil {
			return err
		}
	case err != nil:
		return err
	}

	if p.Content != nil && fd.Content == nil {
		fd.Content = content.Document{}
	}
	for k, v := range p.Content {
		fd.Content[k] = v
	}
	if p.Title != nil {
		fd.Title = *p.Title
	}
	if p.Slug != nil {
		fd.Slug = *p.Slug
	}
	return s.write(path, lang, fd)
}

// seed starts a new translation from the default-language file, content
// included, so fields a patch leaves out keep the default-language values.
func (s *FileStore) seed(path, lang string) (*fileDocument, error) {
	fd := &fileDocument{Content: content.Document{}}
	if lang == s.defaultLanguage {
		fd.ID = uuid.NewString()
		return fd, nil
	}
	src, err := s.read(path, s.defaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("creating %s translation: %w", lang, err)
	}
	fd.ID = src.ID
	fd.Template = src.Template
	if src.Content != nil {
		fd.Content = content.Clone(src.Content)
	}
	return fd, nil
}

func (s *FileStore) write(path, lang string, fd *fileDocument) error {
	name, err := s.file(path, lang)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(fd)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(name), err)
	}
	tmp := name + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, name); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// List returns the paths of all documents that exist in the default
// language, sorted.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	var paths []string
	want := s.defaultLanguage + ".yml"
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || d.Name() != want {
			return nil
		}
		rel, err := filepath.Rel(s.root, filepath.Dir(p))
		if err != nil || rel == "." {
			return nil
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", s.root, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Exists reports whether the document has a file in lang.
func (s *FileStore) Exists(path, lang string) bool {
	name, err := s.file(path, lang)
	if err != nil {
		return false
	}
	_, err = os.Stat(name)
	return err == nil
}

var _ Accessor = (*FileStore)(nil)

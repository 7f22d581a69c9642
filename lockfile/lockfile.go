// Package lockfile implements contentkit.lock, which records a checksum of
// the source-language document each translation was made from. Documents
// whose source has not changed since the last run are skipped.
//
// The lock file lives next to .contentkit.yaml.
package lockfile

import (
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/minios-linux/contentkit/content"
	"gopkg.in/yaml.v3"
)

// FileName is the lock file name.
const FileName = "contentkit.lock"

// Version is the lock file format version.
const Version = 1

// LockFile maps language -> document path -> source checksum.
type LockFile struct {
	Version   int                          `yaml:"version"`
	Checksums map[string]map[string]string `yaml:"checksums"`

	mu   sync.Mutex `yaml:"-"`
	path string     `yaml:"-"`
}

// Load reads the lock file from dir.
// Returns an empty lock file if the file doesn't exist.
func Load(dir string) (*LockFile, error) {
	path := filepath.Join(dir, FileName)
	lf := &LockFile{
		Version:   Version,
		Checksums: make(map[string]map[string]string),
		path:      path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return lf, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, lf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if lf.Version != Version {
		return nil, fmt.Errorf("%s: unsupported lock file version %d", path, lf.Version)
	}
	if lf.Checksums == nil {
		lf.Checksums = make(map[string]map[string]string)
	}
	return lf, nil
}

// Save writes the lock file to disk.
func (lf *LockFile) Save() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.path == "" {
		return fmt.Errorf("lock file path not set")
	}
	data, err := yaml.Marshal(lf)
	if err != nil {
		return fmt.Errorf("marshaling lock file: %w", err)
	}
	if err := os.WriteFile(lf.path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", lf.path, err)
	}
	return nil
}

// Path returns the lock file path.
func (lf *LockFile) Path() string {
	return lf.path
}

// ---------------------------------------------------------------------------
// Checksums
// ---------------------------------------------------------------------------

// Hash computes the MD5 hex digest of a string.
func Hash(s string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(s)))
}

// DocumentChecksum hashes a source document. Map keys are serialized in
// sorted order, so equal documents hash equally.
func DocumentChecksum(title string, doc content.Document) (string, error) {
	data, err := json.Marshal(struct {
		Title   string           `json:"title"`
		Content content.Document `json:"content"`
	}{title, doc})
	if err != nil {
		return "", fmt.Errorf("hashing document: %w", err)
	}
	return Hash(string(data)), nil
}

// IsChanged reports whether the document at path changed since it was last
// translated into lang.
func (lf *LockFile) IsChanged(lang, path, checksum string) bool {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	old, ok := lf.Checksums[lang][path]
	return !ok || old != checksum
}

// Update records the checksum after a successful translation. Safe for
// concurrent use by language workers.
func (lf *LockFile) Update(lang, path, checksum string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.Checksums[lang] == nil {
		lf.Checksums[lang] = make(map[string]string)
	}
	lf.Checksums[lang][path] = checksum
}

// Clean removes entries of documents that no longer exist.
func (lf *LockFile) Clean(currentPaths []string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	valid := make(map[string]bool, len(currentPaths))
	for _, p := range currentPaths {
		valid[p] = true
	}
	for lang, paths := range lf.Checksums {
		for p := range paths {
			if !valid[p] {
				delete(paths, p)
			}
		}
		if len(paths) == 0 {
			delete(lf.Checksums, lang)
		}
	}
}

// RemoveLanguage forgets every checksum of lang.
func (lf *LockFile) RemoveLanguage(lang string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	delete(lf.Checksums, lang)
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// Stats returns the number of languages and total entries.
func (lf *LockFile) Stats() (languages, entries int) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	languages = len(lf.Checksums)
	for _, m := range lf.Checksums {
		entries += len(m)
	}
	return
}

// Languages returns the sorted language codes in the lock file.
func (lf *LockFile) Languages() []string {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	langs := make([]string, 0, len(lf.Checksums))
	for l := range lf.Checksums {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// Summary returns a human-readable summary string.
func (lf *LockFile) Summary() string {
	languages, entries := lf.Stats()
	if languages == 0 {
		return "empty"
	}
	var parts []string
	for _, l := range lf.Languages() {
		lf.mu.Lock()
		n := len(lf.Checksums[l])
		lf.mu.Unlock()
		parts = append(parts, fmt.Sprintf("%s: %d documents", l, n))
	}
	return fmt.Sprintf("%d languages, %d documents (%s)", languages, entries, strings.Join(parts, ", "))
}

// Package persona loads named system prompts from a directory of text files
// into immutable catalog snapshots.
package persona

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/quailyquaily/guildmind/internal/fsstore"
	"github.com/quailyquaily/guildmind/internal/markdown"
)

var supportedExts = map[string]bool{
	".txt": true,
	".md":  true,
}

type Persona struct {
	Name        string
	Prompt      string
	Description string
	Source      string
}

type frontmatter struct {
	Description string `yaml:"description"`
}

// Catalog is a read-only snapshot. A nil *Catalog behaves as empty.
type Catalog struct {
	dir    string
	byName map[string]Persona
	names  []string
}

// Load scans dir (non-recursively) for *.txt and *.md files. The persona
// name is the lower-cased base name; on a case-insensitive collision the
// file scanned last wins. A missing directory yields an empty catalog.
// Files that cannot be read are skipped and reported in the joined error,
// which accompanies a usable catalog; only an unreadable directory returns
// a nil catalog.
func Load(dir string) (*Catalog, error) {
	dir = strings.TrimSpace(dir)
	c := &Catalog{dir: dir, byName: map[string]Persona{}}
	if dir == "" {
		return c, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("read persona dir %s: %w", dir, err)
	}

	var errs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !supportedExts[ext] {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))))
		if name == "" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		p, err := readPersona(path, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		c.byName[name] = p
	}

	c.names = make([]string, 0, len(c.byName))
	for name := range c.byName {
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)
	return c, errors.Join(errs...)
}

// New builds a catalog from explicit personas, applying the same name
// normalization and last-wins rule as Load.
func New(personas ...Persona) *Catalog {
	c := &Catalog{byName: map[string]Persona{}}
	for _, p := range personas {
		p.Name = strings.ToLower(strings.TrimSpace(p.Name))
		if p.Name == "" {
			continue
		}
		p.Prompt = strings.TrimSpace(p.Prompt)
		c.byName[p.Name] = p
	}
	c.names = make([]string, 0, len(c.byName))
	for name := range c.byName {
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)
	return c
}

func readPersona(path, name string) (Persona, error) {
	raw, ok, err := fsstore.ReadText(path)
	if err != nil {
		return Persona{}, fmt.Errorf("load persona %s: %w", name, err)
	}
	if !ok {
		return Persona{}, fmt.Errorf("load persona %s: %s vanished during scan", name, path)
	}
	// Only markdown personas carry frontmatter; text files are taken whole.
	var fm frontmatter
	body := raw
	if strings.EqualFold(filepath.Ext(path), ".md") {
		fm, body, _ = markdown.ParseFrontmatter[frontmatter](raw)
	}
	return Persona{
		Name:        name,
		Prompt:      strings.TrimSpace(body),
		Description: strings.TrimSpace(fm.Description),
		Source:      path,
	}, nil
}

func (c *Catalog) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

// Resolve returns the prompt text for name, case-insensitively.
func (c *Catalog) Resolve(name string) (string, bool) {
	p, ok := c.Lookup(name)
	return p.Prompt, ok
}

func (c *Catalog) Lookup(name string) (Persona, bool) {
	if c == nil {
		return Persona{}, false
	}
	p, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Names returns the persona names in ascending order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.names...)
}

func (c *Catalog) Personas() []Persona {
	if c == nil {
		return nil
	}
	out := make([]Persona, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, c.byName[name])
	}
	return out
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.names)
}

// Holder owns the current snapshot. Reload builds a new one and swaps it in;
// readers holding an older snapshot keep a consistent view.
type Holder struct {
	dir string
	cur atomic.Pointer[Catalog]
}

func NewHolder(dir string) *Holder {
	h := &Holder{dir: strings.TrimSpace(dir)}
	h.cur.Store(&Catalog{dir: h.dir, byName: map[string]Persona{}})
	return h
}

// NewStaticHolder wraps an already built catalog; Reload rescans its dir.
func NewStaticHolder(c *Catalog) *Holder {
	h := &Holder{dir: c.Dir()}
	h.cur.Store(c)
	return h
}

func (h *Holder) Dir() string { return h.dir }

func (h *Holder) Current() *Catalog {
	return h.cur.Load()
}

// Reload rescans the directory. The new snapshot is installed even when
// some files failed to load; that error is returned alongside it.
func (h *Holder) Reload() (*Catalog, error) {
	c, err := Load(h.dir)
	if c != nil {
		h.cur.Store(c)
	}
	return c, err
}

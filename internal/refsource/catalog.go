// Package refsource loads the catalog of reference exams (ENEM, Fuvest,
// vestibulares) that quizzes can be grounded on.
package refsource

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Exam describes one reference exam loaded from YAML.
type Exam struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Aliases  []string `yaml:"aliases"`
	Editions []int    `yaml:"editions"`
	Subjects []string `yaml:"subjects"`
	Notes    string   `yaml:"notes"`
}

// Catalog loads and caches reference exams from the filesystem.
type Catalog struct {
	rootDir string
	exams   map[string]Exam // lookup key -> exam
	mu      sync.RWMutex
}

// NewCatalog creates a catalog and loads all exam files under rootDir.
func NewCatalog(rootDir string) (*Catalog, error) {
	c := &Catalog{
		rootDir: rootDir,
		exams:   make(map[string]Exam),
	}

	if err := c.loadAll(); err != nil {
		return nil, fmt.Errorf("loading exam catalog: %w", err)
	}

	slog.Info("exam catalog loaded", "exams", c.Len())
	return c, nil
}

// Get returns an exam by id, name or alias, matched case-insensitively.
func (c *Catalog) Get(tag string) (Exam, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.exams[lookupKey(tag)]
	return e, ok
}

// Describe renders a one-paragraph summary of an exam for prompt use.
// Unknown tags return an empty string.
func (c *Catalog) Describe(tag string) string {
	exam, ok := c.Get(tag)
	if !ok {
		return ""
	}

	var parts []string
	if len(exam.Editions) > 0 {
		editions := make([]string, len(exam.Editions))
		for i, y := range exam.Editions {
			editions[i] = strconv.Itoa(y)
		}
		parts = append(parts, "Edições conhecidas: "+strings.Join(editions, ", ")+".")
	}
	if len(exam.Subjects) > 0 {
		parts = append(parts, "Áreas cobradas: "+strings.Join(exam.Subjects, ", ")+".")
	}
	if exam.Notes != "" {
		parts = append(parts, exam.Notes)
	}
	return strings.Join(parts, " ")
}

// All returns every loaded exam, sorted by name.
func (c *Catalog) All() []Exam {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool)
	exams := make([]Exam, 0, len(c.exams))
	for _, e := range c.exams {
		if !seen[e.ID] {
			seen[e.ID] = true
			exams = append(exams, e)
		}
	}
	sort.Slice(exams, func(i, j int) bool { return exams[i].Name < exams[j].Name })
	return exams
}

// Len returns how many distinct exams are loaded.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool)
	for _, e := range c.exams {
		seen[e.ID] = true
	}
	return len(seen)
}

func (c *Catalog) loadAll() error {
	return filepath.Walk(c.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}
		return c.loadExam(path)
	})
}

func (c *Catalog) loadExam(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var exam Exam
	if err := yaml.Unmarshal(data, &exam); err != nil {
		slog.Warn("skipping invalid exam YAML", "path", path, "error", err)
		return nil
	}
	if exam.ID == "" {
		return nil // Not an exam file
	}

	c.mu.Lock()
	c.exams[lookupKey(exam.ID)] = exam
	if exam.Name != "" {
		c.exams[lookupKey(exam.Name)] = exam
	}
	for _, alias := range exam.Aliases {
		c.exams[lookupKey(alias)] = exam
	}
	c.mu.Unlock()

	return nil
}

func lookupKey(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

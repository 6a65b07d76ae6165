package mission

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mission couples a rule with its catalog identity.
type Mission struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Active bool   `json:"active" yaml:"active"`
	Rule   Rule   `json:"rule" yaml:"rule"`
}

// Repository is the read path for active mission definitions.
type Repository interface {
	// Get returns the mission with the given ID, or an error if not found.
	Get(ctx context.Context, id string) (*Mission, error)

	// ListActive returns every active mission.
	ListActive(ctx context.Context) ([]Mission, error)
}

// FileSystemRepository loads mission definitions from *.yaml files in a
// directory. Each file contains exactly one mission at the top level.
// Missions are loaded once at startup and cached in memory.
type FileSystemRepository struct {
	dir      string
	missions map[string]Mission // keyed by ID
}

// NewFileSystemRepository creates the repository and eagerly loads all
// missions from dir. Every rule must pass validation: a mission that
// cannot evaluate deterministically is rejected at load time, not at
// event time.
func NewFileSystemRepository(dir string, knownOperator func(string) bool) (*FileSystemRepository, error) {
	repo := &FileSystemRepository{
		dir:      dir,
		missions: make(map[string]Mission),
	}
	if err := repo.load(knownOperator); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *FileSystemRepository) load(knownOperator func(string) bool) error {
	info, err := os.Stat(r.dir)
	if os.IsNotExist(err) {
		return nil // no mission directory, zero missions configured
	}
	if err != nil {
		return fmt.Errorf("mission dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("mission path %q is not a directory", r.dir)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("reading mission dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(r.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading mission file %s: %w", path, err)
		}

		var m Mission
		if err := yaml.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("parsing mission file %s: %w", path, err)
		}
		if m.ID == "" {
			continue // skip empty / comment-only files
		}

		if res := Validate(&m.Rule, knownOperator); !res.IsValid {
			return fmt.Errorf("mission %q: invalid rule: %s", m.ID, strings.Join(res.Errors, "; "))
		}

		if _, exists := r.missions[m.ID]; exists {
			return fmt.Errorf("mission %q: duplicate mission ID (check multiple YAML files)", m.ID)
		}
		r.missions[m.ID] = m
	}
	return nil
}

// Get returns the mission with the given ID, or an error if not found.
func (r *FileSystemRepository) Get(_ context.Context, id string) (*Mission, error) {
	m, ok := r.missions[id]
	if !ok {
		return nil, fmt.Errorf("mission %q not found", id)
	}
	return &m, nil
}

// ListActive returns every active mission.
func (r *FileSystemRepository) ListActive(_ context.Context) ([]Mission, error) {
	out := make([]Mission, 0, len(r.missions))
	for _, m := range r.missions {
		if m.Active {
			out = append(out, m)
		}
	}
	return out, nil
}

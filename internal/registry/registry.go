// Package registry stores process definitions in a single JSON file.
// Persistence is read-whole-file, mutate, overwrite-whole-file. There is no
// locking: concurrent writers race and the loser's change is lost. Known gap;
// callers that need stronger guarantees must serialize mutations themselves.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Definition describes a registered process.
type Definition struct {
	Name        string    `json:"name"`
	ScriptPath  string    `json:"script_path"`
	CronExpr    string    `json:"cron_expr,omitempty"`
	Description string    `json:"description,omitempty"`
	Owner       string    `json:"owner,omitempty"`
	OwnerUID    int       `json:"owner_uid"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
}

// Registry is the durable name -> Definition mapping.
type Registry struct {
	path string
}

// Open prepares a registry backed by the JSON file at path, creating an
// empty one (and parent directories) when missing.
func Open(path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := save(path, map[string]Definition{}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat registry: %w", err)
	}
	return &Registry{path: path}, nil
}

// Path returns the backing file path.
func (r *Registry) Path() string { return r.path }

func (r *Registry) load() (map[string]Definition, error) {
	b, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	defs := make(map[string]Definition)
	if err := json.Unmarshal(b, &defs); err != nil {
		// Corruption after initial creation must surface, never read as empty.
		return nil, fmt.Errorf("parse registry %s: %w", r.path, err)
	}
	return defs, nil
}

func save(path string, defs map[string]Definition) error {
	b, err := json.MarshalIndent(defs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	return nil
}

// Register inserts or overwrites a definition, stamping creation time and
// defaulting the enabled flag.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return errors.New("definition requires a name")
	}
	defs, err := r.load()
	if err != nil {
		return err
	}
	def.Enabled = true
	def.CreatedAt = time.Now()
	defs[def.Name] = def
	return save(r.path, defs)
}

// Unregister removes a definition and reports whether it existed.
func (r *Registry) Unregister(name string) (bool, error) {
	defs, err := r.load()
	if err != nil {
		return false, err
	}
	if _, ok := defs[name]; !ok {
		return false, nil
	}
	delete(defs, name)
	return true, save(r.path, defs)
}

// Get returns the definition for name.
func (r *Registry) Get(name string) (Definition, bool, error) {
	defs, err := r.load()
	if err != nil {
		return Definition{}, false, err
	}
	def, ok := defs[name]
	return def, ok, nil
}

// List returns all definitions ordered by name.
func (r *Registry) List() ([]Definition, error) {
	defs, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make([]Definition, 0, len(defs))
	for _, d := range defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Update mutates only known fields of an existing definition. Unknown keys
// are ignored on purpose: partial updates must not grow the schema.
func (r *Registry) Update(name string, fields map[string]any) (bool, error) {
	defs, err := r.load()
	if err != nil {
		return false, err
	}
	def, ok := defs[name]
	if !ok {
		return false, nil
	}
	for k, v := range fields {
		switch k {
		case "script_path":
			if s, ok := v.(string); ok {
				def.ScriptPath = s
			}
		case "cron_expr":
			if s, ok := v.(string); ok {
				def.CronExpr = s
			}
		case "description":
			if s, ok := v.(string); ok {
				def.Description = s
			}
		case "enabled":
			if b, ok := v.(bool); ok {
				def.Enabled = b
			}
		}
	}
	defs[name] = def
	return true, save(r.path, defs)
}

// SetEnabled toggles the enabled flag for name.
func (r *Registry) SetEnabled(name string, enabled bool) (bool, error) {
	return r.Update(name, map[string]any{"enabled": enabled})
}

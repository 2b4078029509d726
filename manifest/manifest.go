// Package manifest configures a pipeline from a YAML file instead of code.
//
// The file only places handlers: which phase, which order and which paths.
// The functions themselves come from a Catalog compiled into the program:
//
//	handlers:
//	  - name: logging
//	    order: 1
//	  - name: auth
//	    order: 2
//	    paths: [/api/private/**]
//	  - name: logStatus
//	    phase: after
//	    order: 1
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/mandelsoft/vfs/pkg/vfs"
	"gopkg.in/yaml.v3"

	"github.com/augustoroman/bookends/pipeline"
)

// Catalog maps the handler names that may appear in a manifest to handler
// functions.
type Catalog map[string]any

// Names returns the catalog names, sorted.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entry is one handler placement in the manifest.
type Entry struct {
	// Name identifies the entry and, unless Handler is set, the catalog
	// function.
	Name string `yaml:"name"`
	// Handler optionally names the catalog function, so that the same
	// function can be placed more than once.
	Handler string   `yaml:"handler,omitempty"`
	Phase   string   `yaml:"phase,omitempty"`
	Order   int      `yaml:"order,omitempty"`
	Paths   []string `yaml:"paths,omitempty"`
}

// Manifest is a parsed and validated manifest file. It implements
// pipeline.Provider.
type Manifest struct {
	Handlers []Entry `yaml:"handlers"`

	regs []pipeline.Registration
}

// Load reads and parses the manifest at path.
func Load(fs vfs.FileSystem, path string, catalog Catalog) (*Manifest, error) {
	data, err := vfs.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed reading manifest: %w", err)
	}
	m, err := Parse(data, catalog)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse parses manifest YAML and resolves every entry against catalog.
// Unknown fields are rejected.
func Parse(data []byte, catalog Catalog) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed parsing manifest: %w", err)
	}
	if err := m.resolve(catalog); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) resolve(catalog Catalog) error {
	type key struct {
		name  string
		phase pipeline.Phase
	}
	seen := map[key]int{}
	m.regs = make([]pipeline.Registration, 0, len(m.Handlers))

	for i, e := range m.Handlers {
		if e.Name == "" {
			return fmt.Errorf("handler %d: name cannot be empty", i)
		}
		fnName := e.Handler
		if fnName == "" {
			fnName = e.Name
		}
		fn, ok := catalog[fnName]
		if !ok {
			return fmt.Errorf("handler %d (%s): unknown handler %q, known handlers are %v",
				i, e.Name, fnName, catalog.Names())
		}
		phase, err := pipeline.ParsePhase(e.Phase)
		if err != nil {
			return fmt.Errorf("handler %d (%s): %w", i, e.Name, err)
		}
		for _, p := range e.Paths {
			if p == "" {
				return fmt.Errorf("handler %d (%s): %w: empty path", i, e.Name, pipeline.ErrInvalidPattern)
			}
		}
		k := key{e.Name, phase}
		if prev, dup := seen[k]; dup {
			return fmt.Errorf("handler %d (%s): duplicates handler %d in the %s phase", i, e.Name, prev, phase)
		}
		seen[k] = i

		m.regs = append(m.regs, pipeline.Registration{
			Name:     e.Name,
			Func:     fn,
			Patterns: e.Paths,
			Order:    e.Order,
			Phase:    phase,
		})
	}
	return nil
}

// Registrations implements pipeline.Provider.
func (m *Manifest) Registrations() ([]pipeline.Registration, error) {
	return append([]pipeline.Registration(nil), m.regs...), nil
}

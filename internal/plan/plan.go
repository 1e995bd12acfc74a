// Package plan reads YAML documents that declare the entity model, its
// uniqueness rules and the clone specs of each type, and turns them into the
// domain and clone values the engine runs with.
package plan

import (
	"os"

	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"graphclone/pkg/clone"
	"graphclone/pkg/domain"
)

// Plan is the decoded form of a plan file.
type Plan struct {
	Entities []domain.Definition `yaml:"entities"`
	Unique   []UniqueRule        `yaml:"unique"`
	Clones   []CloneSpec         `yaml:"clones"`
}

// UniqueRule declares that Attribute is unique among records of Type.
type UniqueRule struct {
	Type      domain.EntityType `yaml:"type"`
	Attribute string            `yaml:"attribute"`
}

// CloneSpec is the YAML form of a clone.Spec.
type CloneSpec struct {
	Type         domain.EntityType `yaml:"type"`
	Nullify      []string          `yaml:"nullify"`
	Associations []AssociationSpec `yaml:"associations"`
	Before       string            `yaml:"before"`
	After        string            `yaml:"after"`
}

// AssociationSpec is one declared association with its forwarded options.
type AssociationSpec struct {
	Name   string `yaml:"name"`
	Force  bool   `yaml:"force"`
	Before string `yaml:"before"`
	After  string `yaml:"after"`
}

// Parse decodes and validates a plan document.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.Errorf("decode plan: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadFile reads and parses the plan at path.
func LoadFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("read plan %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, errors.Errorf("plan %s: %w", path, err)
	}
	return p, nil
}

func (p *Plan) validate() error {
	defs := make(map[domain.EntityType]domain.Definition, len(p.Entities))
	for _, def := range p.Entities {
		if def.Type == "" {
			return errors.New("entity without type")
		}
		if _, dup := defs[def.Type]; dup {
			return errors.Errorf("entity %s declared twice", def.Type)
		}
		for _, assoc := range def.Associations {
			if assoc.Kind != domain.KindOne && assoc.Kind != domain.KindMany {
				return errors.Errorf("%s.%s: unknown association kind %q", def.Type, assoc.Name, assoc.Kind)
			}
		}
		defs[def.Type] = def
	}
	for _, def := range p.Entities {
		for _, assoc := range def.Associations {
			if _, ok := defs[assoc.Target]; !ok {
				return errors.Errorf("%s.%s targets undeclared entity %q", def.Type, assoc.Name, assoc.Target)
			}
		}
	}
	for _, u := range p.Unique {
		if _, ok := defs[u.Type]; !ok {
			return errors.Errorf("unique rule on undeclared entity %q", u.Type)
		}
		if u.Attribute == "" {
			return errors.Errorf("unique rule on %s has no attribute", u.Type)
		}
	}
	seen := make(map[domain.EntityType]bool, len(p.Clones))
	for _, c := range p.Clones {
		def, ok := defs[c.Type]
		if !ok {
			return errors.Errorf("clone spec for undeclared entity %q", c.Type)
		}
		if seen[c.Type] {
			return errors.Errorf("clone spec for %s declared twice", c.Type)
		}
		seen[c.Type] = true
		for _, a := range c.Associations {
			if !declares(def, a.Name) {
				return errors.Errorf("clone spec for %s names undeclared association %q", c.Type, a.Name)
			}
		}
	}
	return nil
}

func declares(def domain.Definition, name string) bool {
	for _, assoc := range def.Associations {
		if assoc.Name == name {
			return true
		}
	}
	return false
}

// Model builds the entity model declared by the plan.
func (p *Plan) Model() *domain.Model {
	return domain.NewModel(p.Entities...)
}

// RulesEngine returns an engine holding the plan's uniqueness rules.
func (p *Plan) RulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	for _, u := range p.Unique {
		engine.Register(domain.UniqueAttributeRule{Type: u.Type, Attribute: u.Attribute})
	}
	return engine
}

// Registry builds a clone registry, resolving hook names against hooks.
func (p *Plan) Registry(hooks *Hooks) (*clone.Registry, error) {
	if hooks == nil {
		hooks = NewHooks(nil)
	}
	registry := clone.NewRegistry()
	for _, c := range p.Clones {
		b := clone.Define(c.Type).Nullify(c.Nullify...)
		before, err := hooks.lookup(c.Before)
		if err != nil {
			return nil, errors.Errorf("clone spec for %s: %w", c.Type, err)
		}
		after, err := hooks.lookup(c.After)
		if err != nil {
			return nil, errors.Errorf("clone spec for %s: %w", c.Type, err)
		}
		b.Before(before).After(after)
		for _, a := range c.Associations {
			opts := clone.Options{Force: a.Force}
			if opts.Before, err = hooks.lookup(a.Before); err != nil {
				return nil, errors.Errorf("clone spec for %s.%s: %w", c.Type, a.Name, err)
			}
			if opts.After, err = hooks.lookup(a.After); err != nil {
				return nil, errors.Errorf("clone spec for %s.%s: %w", c.Type, a.Name, err)
			}
			b.Association(a.Name, opts)
		}
		if err := registry.Register(b.Build()); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

package plan

import (
	"os"
	"strconv"

	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"graphclone/pkg/domain"
)

// Seed is the decoded form of a seed file: root records with nested members.
type Seed struct {
	Records []SeedRecord `yaml:"records"`
}

// SeedRecord declares one record and the members of its associations.
type SeedRecord struct {
	Type         domain.EntityType       `yaml:"type"`
	Attributes   map[string]any          `yaml:"attributes"`
	Associations map[string][]SeedRecord `yaml:"associations"`
}

// ParseSeed decodes a seed document.
func ParseSeed(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.Errorf("decode seed: %w", err)
	}
	return &s, nil
}

// LoadSeedFile reads and parses the seed at path.
func LoadSeedFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("read seed %s: %w", path, err)
	}
	return ParseSeed(data)
}

// Build turns the seed into unsaved record graphs shaped by model.
func (s *Seed) Build(model *domain.Model) ([]*domain.Record, error) {
	roots := make([]*domain.Record, 0, len(s.Records))
	for i, sr := range s.Records {
		rec, err := sr.build(model, "records["+strconv.Itoa(i)+"]")
		if err != nil {
			return nil, err
		}
		roots = append(roots, rec)
	}
	return roots, nil
}

func (sr SeedRecord) build(model *domain.Model, path string) (*domain.Record, error) {
	rec, err := model.New(sr.Type, sr.Attributes)
	if err != nil {
		return nil, errors.Errorf("%s: %w", path, err)
	}
	def, _ := model.Definition(sr.Type)
	for _, assoc := range def.Associations {
		members, ok := sr.Associations[assoc.Name]
		if !ok {
			continue
		}
		c, _ := rec.Collection(assoc.Name)
		for i, m := range members {
			memberPath := path + "." + assoc.Name + "[" + strconv.Itoa(i) + "]"
			if m.Type == "" {
				m.Type = assoc.Target
			}
			if m.Type != assoc.Target {
				return nil, errors.Errorf("%s: %s.%s holds %s, got %s", memberPath, sr.Type, assoc.Name, assoc.Target, m.Type)
			}
			child, err := m.build(model, memberPath)
			if err != nil {
				return nil, err
			}
			if err := c.Append(child); err != nil {
				return nil, errors.Errorf("%s: %w", memberPath, err)
			}
		}
	}
	for name := range sr.Associations {
		if !declares(def, name) {
			return nil, errors.Errorf("%s: %s has no association %q", path, sr.Type, name)
		}
	}
	return rec, nil
}

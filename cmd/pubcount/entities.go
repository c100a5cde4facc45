package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/helixir/publication-aggregator/internal/domain"
)

// entityFile is the mapping layout of an entity file. Rosters exported for
// the faculty directory use the "faculty" key and are accepted as well.
type entityFile struct {
	Entities []domain.FacultyEntity `yaml:"entities"`
	Faculty  []domain.FacultyEntity `yaml:"faculty"`
}

// loadEntities reads a YAML or JSON entity file. The top level is either a
// list of entities or a mapping with an "entities" or "faculty" list.
func loadEntities(path string) ([]domain.FacultyEntity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read entity file: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse entity file %s: %w", path, err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("entity file %s is empty", path)
	}

	var entities []domain.FacultyEntity
	top := root.Content[0]
	switch top.Kind {
	case yaml.SequenceNode:
		if err := top.Decode(&entities); err != nil {
			return nil, fmt.Errorf("decode entities: %w", err)
		}
	case yaml.MappingNode:
		var f entityFile
		if err := top.Decode(&f); err != nil {
			return nil, fmt.Errorf("decode entities: %w", err)
		}
		entities = append(f.Entities, f.Faculty...)
	default:
		return nil, errors.New("entity file must hold a list or an \"entities\" mapping")
	}

	for i := range entities {
		entities[i].Name = strings.TrimSpace(entities[i].Name)
		entities[i].ScholarID = strings.TrimSpace(entities[i].ScholarID)
		if entities[i].ORCID != "" {
			entities[i].ORCID = domain.NormalizeORCID(entities[i].ORCID)
		}
	}
	return entities, nil
}

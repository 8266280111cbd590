package query

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/coverage-cli/internal/model"
)

// LoadEntities reads the entity list from a JSON, YAML or XLSX file. The
// format is chosen by extension; anything unrecognized is parsed as JSON.
func LoadEntities(path string) ([]model.Entity, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return loadXLSX(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "query: read %s", path)
	}

	var entities []model.Entity
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &entities); err != nil {
			return nil, eris.Wrapf(err, "query: parse yaml %s", path)
		}
	default:
		if err := json.Unmarshal(data, &entities); err != nil {
			return nil, eris.Wrapf(err, "query: parse json %s", path)
		}
	}
	return entities, nil
}

// FromFile loads the entity list at path and builds its query set.
func FromFile(path string) ([]string, error) {
	entities, err := LoadEntities(path)
	if err != nil {
		return nil, err
	}
	return Build(entities), nil
}

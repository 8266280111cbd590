package model

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Entity is one row of the external company list.
type Entity struct {
	Company  string   `json:"Company,omitempty" yaml:"Company,omitempty"`
	Founders Founders `json:"Founders,omitempty" yaml:"Founders,omitempty"`
}

// Founders holds the founders field of an entity. Spreadsheet exports carry it
// as a list-encoded string such as "['Alice', 'Bob']"; hand-written input may
// use a real array instead, which lands in Names.
type Founders struct {
	Raw   string
	Names []string
}

// IsZero reports whether the field carried nothing.
func (f Founders) IsZero() bool {
	return f.Raw == "" && len(f.Names) == 0
}

// UnmarshalJSON accepts a string, an array of scalars, or null.
func (f *Founders) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*f = Founders{}
		return nil
	case data[0] == '[':
		var items []any
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*f = Founders{Names: scalarsToStrings(items)}
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = Founders{Raw: s}
		return nil
	default:
		// Numbers and booleans show up in sloppy exports; keep their text.
		*f = Founders{Raw: string(data)}
		return nil
	}
}

// MarshalJSON writes Names as an array when present, else the raw string.
func (f Founders) MarshalJSON() ([]byte, error) {
	if len(f.Names) > 0 {
		return json.Marshal(f.Names)
	}
	return json.Marshal(f.Raw)
}

// UnmarshalYAML accepts a scalar or a sequence of scalars.
func (f *Founders) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*f = Founders{}
			return nil
		}
		*f = Founders{Raw: node.Value}
		return nil
	case yaml.SequenceNode:
		var items []any
		if err := node.Decode(&items); err != nil {
			return err
		}
		*f = Founders{Names: scalarsToStrings(items)}
		return nil
	default:
		return eris.Errorf("founders: unsupported yaml node kind %d", node.Kind)
	}
}

func scalarsToStrings(items []any) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		if s, ok := it.(string); ok {
			out = append(out, s)
			continue
		}
		out = append(out, fmt.Sprint(it))
	}
	return out
}

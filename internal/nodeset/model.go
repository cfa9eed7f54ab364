// Package nodeset reads address space models written in YAML and turns them into type
// descriptors for the registry.
package nodeset

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema/model-v1.json
var modelSchemaJSON []byte

// Model is the content of a model file. Ids like "ns=1;i=1001" use indices into the
// file's own table: 0 is the OPC UA namespace, 1 the first entry of Namespaces.
type Model struct {
	Namespaces []string   `yaml:"namespaces"`
	DataTypes  []DataType `yaml:"dataTypes"`
	Types      []Type     `yaml:"types"`
}

type DataType struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Super string `yaml:"super"`
}

// Type declares an ObjectType or VariableType. A type with Descriptor set is taken
// as is and its other fields are ignored.
type Type struct {
	ID              string   `yaml:"id"`
	Name            string   `yaml:"name"`
	Class           string   `yaml:"class"`
	Super           string   `yaml:"super"`
	Abstract        bool     `yaml:"abstract"`
	DisplayName     string   `yaml:"displayName"`
	Description     string   `yaml:"description"`
	DataType        string   `yaml:"dataType"`
	ValueRank       *int32   `yaml:"valueRank"`
	ArrayDimensions []uint32 `yaml:"arrayDimensions"`
	Children        []Child  `yaml:"children"`
	Descriptor      string   `yaml:"descriptor"`
}

// Child is an instance declaration. Omit emits it without a descriptor, so instances
// only get it when it is set explicitly.
type Child struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Reference   string `yaml:"reference"`
	Rule        string `yaml:"rule"`
	Omit        bool   `yaml:"omit"`
	DisplayName string `yaml:"displayName"`
	Description string `yaml:"description"`
	DataType    string `yaml:"dataType"`
	ValueRank   *int32 `yaml:"valueRank"`
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func modelSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("model-v1.json", bytes.NewReader(modelSchemaJSON)); err != nil {
			schemaErr = errors.Wrap(err, "failed to add model schema")
			return
		}
		schema, schemaErr = compiler.Compile("model-v1.json")
	})
	return schema, schemaErr
}

// Validate checks a YAML document against the model schema.
func Validate(data []byte) error {
	s, err := modelSchema()
	if err != nil {
		return err
	}
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(err, "invalid YAML")
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}
	// The schema validator works on JSON values.
	raw, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "model is not representable as JSON")
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return errors.Wrap(err, "invalid JSON")
	}
	if err := s.Validate(v); err != nil {
		return errors.Wrap(err, "model validation failed")
	}
	return nil
}

// Load reads and validates a model.
func Load(r io.Reader) (*Model, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read model")
	}
	if err := Validate(data); err != nil {
		return nil, err
	}
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "failed to parse model")
	}
	return &m, nil
}

func LoadFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open model %s", path)
	}
	defer f.Close()
	m, err := Load(f)
	if err != nil {
		return nil, errors.Wrapf(err, "model %s", path)
	}
	return m, nil
}

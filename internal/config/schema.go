// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package config

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the generated configuration schema.
const SchemaID = "https://rentloop.dev/schemas/config.schema.json"

var (
	compileOnce sync.Once
	compiled    *jschema.Schema
	compileErr  error
)

// Schema returns the JSON schema reflected from Config.
func Schema() ([]byte, error) {
	r := jsonschema.Reflector{DoNotReference: true}
	schema := r.Reflect(&Config{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "Rentloop configuration"
	schema.Description = "Schema for rentloop YAML configuration files"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("CONFIG_SCHEMA_FAILED").Wrap(err)
	}
	return data, nil
}

func compiledSchema() (*jschema.Schema, error) {
	compileOnce.Do(func() {
		data, err := Schema()
		if err != nil {
			compileErr = err
			return
		}
		doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			compileErr = oops.Code("CONFIG_SCHEMA_FAILED").Wrap(err)
			return
		}
		c := jschema.NewCompiler()
		if err := c.AddResource(SchemaID, doc); err != nil {
			compileErr = oops.Code("CONFIG_SCHEMA_FAILED").Wrap(err)
			return
		}
		compiled, compileErr = c.Compile(SchemaID)
		if compileErr != nil {
			compileErr = oops.Code("CONFIG_SCHEMA_FAILED").Wrap(compileErr)
		}
	})
	return compiled, compileErr
}

// Validate checks cfg against the configuration schema.
func Validate(cfg *Config) error {
	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if err := sch.Validate(doc); err != nil {
		return oops.Code("CONFIG_INVALID").Wrapf(err, "configuration failed schema validation")
	}
	return nil
}

// Show renders cfg as YAML with credentials masked. Keys use the file names.
func Show(cfg *Config) ([]byte, error) {
	data, err := json.Marshal(cfg.Redacted())
	if err != nil {
		return nil, oops.Wrap(err)
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, oops.Wrap(err)
	}
	out, err := yaml.Marshal(tree)
	if err != nil {
		return nil, oops.Wrap(err)
	}
	return out, nil
}

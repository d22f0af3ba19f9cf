// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DocAccess Contributors

package history

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// CodeInvalidSnapshot is the oops code for snapshots that fail validation.
const CodeInvalidSnapshot = "INVALID_SNAPSHOT"

// SchemaID is the $id of the generated snapshot schema.
const SchemaID = "https://docaccess.celesteos.dev/schemas/history-snapshot.schema.json"

var (
	compiledOnce sync.Once
	compiled     *jschema.Schema
	compileErr   error
)

// GenerateSchema returns the JSON Schema describing a Snapshot.
// Unknown members are allowed, since records carry caller data.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	schema := r.Reflect(&Snapshot{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "Conversation History Snapshot"
	schema.Description = "History records with embedded secure document links"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.In("history").Wrapf(err, "marshal schema")
	}
	return data, nil
}

func compiledSchema() (*jschema.Schema, error) {
	compiledOnce.Do(func() {
		raw, err := GenerateSchema()
		if err != nil {
			compileErr = err
			return
		}
		doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			compileErr = oops.In("history").Wrapf(err, "parse schema")
			return
		}
		c := jschema.NewCompiler()
		if err := c.AddResource("snapshot.schema.json", doc); err != nil {
			compileErr = oops.In("history").Wrapf(err, "add schema resource")
			return
		}
		compiled, compileErr = c.Compile("snapshot.schema.json")
		if compileErr != nil {
			compileErr = oops.In("history").Wrapf(compileErr, "compile schema")
		}
	})
	return compiled, compileErr
}

// Validate checks raw JSON against the snapshot schema.
func Validate(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return oops.Code(CodeInvalidSnapshot).Errorf("snapshot is empty")
	}

	sch, err := compiledSchema()
	if err != nil {
		return err
	}

	inst, err := jschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return oops.Code(CodeInvalidSnapshot).Wrapf(err, "snapshot is not valid JSON")
	}
	if err := sch.Validate(inst); err != nil {
		return oops.Code(CodeInvalidSnapshot).
			With("violation", strings.TrimSpace(err.Error())).
			Wrapf(err, "snapshot does not match schema")
	}
	return nil
}

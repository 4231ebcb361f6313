package parser

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed flow_schema.json
var flowSchema []byte

const flowSchemaID = "inmemory://flow.json"

var (
	compiledOnce   sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func schema() (*jsonschema.Schema, error) {
	compiledOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(flowSchemaID, bytes.NewReader(flowSchema)); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile(flowSchemaID)
	})
	return compiledSchema, compileErr
}

func validateSchema(payload any) error {
	sch, err := schema()
	if err != nil {
		return err
	}
	return sch.Validate(payload)
}

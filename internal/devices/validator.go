package devices

import (
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/devices-v1.json
var deviceListSchemaJSON string

type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource("devices-v1.json",
		strings.NewReader(deviceListSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile("devices-v1.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// ValidateDeviceList checks a JSON encoded device list against the schema.
func (v *Validator) ValidateDeviceList(data []byte) error {
	var list interface{}
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := v.schema.Validate(list); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}

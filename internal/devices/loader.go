package devices

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader reads and validates device list files.
type Loader struct {
	validator *Validator
	defaults  Defaults
}

func NewLoader(defaults Defaults) (*Loader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &Loader{
		validator: validator,
		defaults:  defaults,
	}, nil
}

func (l *Loader) LoadFile(path string) ([]DeviceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("device list not found: %w", err)
	}

	devices, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid device list %s: %w", path, err)
	}
	return devices, nil
}

// Parse validates a YAML device list, fills defaults and rejects
// duplicate names and endpoints.
func (l *Loader) Parse(data []byte) ([]DeviceConfig, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	// The schema validator works on JSON values.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert device list: %w", err)
	}
	if err := l.validator.ValidateDeviceList(raw); err != nil {
		return nil, err
	}

	var list deviceList
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to unmarshal device list: %w", err)
	}

	names := make(map[string]bool, len(list.Devices))
	endpoints := make(map[string]string, len(list.Devices))
	out := make([]DeviceConfig, 0, len(list.Devices))

	for _, d := range list.Devices {
		d = l.defaults.apply(d)

		if names[d.Name] {
			return nil, fmt.Errorf("duplicate device name %q", d.Name)
		}
		names[d.Name] = true

		if other, used := endpoints[d.Endpoint()]; used {
			return nil, fmt.Errorf("address %s of %q is in use by %q", d.Endpoint(), d.Name, other)
		}
		endpoints[d.Endpoint()] = d.Name

		out = append(out, d)
	}

	return out, nil
}

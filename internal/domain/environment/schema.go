package environment

import (
	"sync"

	"github.com/invopop/jsonschema"
)

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
)

// Schema returns the JSON schema of BackendSettings for settings editors.
func (r *Registry) Schema() *jsonschema.Schema {
	schemaOnce.Do(func() {
		reflector := &jsonschema.Reflector{
			DoNotReference: true,
		}
		schema = reflector.Reflect(&BackendSettings{})
		schema.Title = "Environment backend settings"
	})
	return schema
}

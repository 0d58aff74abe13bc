package config

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
)

var schemaOnce = sync.OnceValues(func() ([]byte, error) {
	reflector := &jsonschema.Reflector{FieldNameTag: "yaml", ExpandedStruct: true}
	return json.MarshalIndent(reflector.Reflect(&Config{}), "", "  ")
})

// JSONSchema returns the JSON Schema for the configuration file, reflected
// once from the Config struct's yaml tags.
func JSONSchema() ([]byte, error) {
	return schemaOnce()
}

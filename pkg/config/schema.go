package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/marmos91/dittosmb/internal/bytesize"
)

// SchemaURI is the JSON Schema dialect of the generated schema.
const SchemaURI = "https://json-schema.org/draft/2020-12/schema"

// Schema generates the JSON schema of the configuration file, for editor
// completion and external validation.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "yaml",
		Mapper:                    mapCustomTypes,

		// Every key has a default, so none is required.
		RequiredFromJSONSchemaTags: true,
	}

	schema := reflector.Reflect(&Config{})
	schema.Version = SchemaURI
	schema.Title = "dittosmb Configuration"
	schema.Description = "Configuration schema for the dittosmb SMB2 server"

	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema: %w", err)
	}
	return out, nil
}

// mapCustomTypes describes the types decoded by decodeHooks, which
// accept both a human-readable string and a plain number.
func mapCustomTypes(t reflect.Type) *jsonschema.Schema {
	switch t {
	case reflect.TypeOf(time.Duration(0)):
		return &jsonschema.Schema{
			OneOf: []*jsonschema.Schema{
				{Type: "string", Pattern: `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`},
				{Type: "integer", Minimum: json.Number("0")},
			},
			Description: "duration such as 30s, 5m or 1h",
		}
	case reflect.TypeOf(bytesize.ByteSize(0)):
		return &jsonschema.Schema{
			OneOf: []*jsonschema.Schema{
				{Type: "string", Pattern: `^[0-9]+(\.[0-9]+)?\s*[A-Za-z]*$`},
				{Type: "integer", Minimum: json.Number("0")},
			},
			Description: "size such as 64Ki, 8Mi or 1048576",
		}
	}
	return nil
}

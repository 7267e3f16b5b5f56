package config

import (
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Schema returns the JSON Schema of a configuration file. Nested
// sections are inlined; durations are strings such as "250ms" or "1h".
func Schema() *jsonschema.Schema {
	r := jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		ExpandedStruct: true,
		// Every key is optional; Default fills the gaps.
		AllowAdditionalProperties:  false,
		RequiredFromJSONSchemaTags: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == durationType {
				return &jsonschema.Schema{
					Type:    "string",
					Pattern: `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
				}
			}
			return nil
		},
	}
	s := r.Reflect(&Config{})
	s.Title = "tablesync configuration"
	return s
}

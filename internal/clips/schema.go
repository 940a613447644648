package clips

import (
	"github.com/invopop/jsonschema"
)

// Schema describes the YAML animation set format for editor tooling.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
	}
	schema := reflector.Reflect(new(SetDocument))
	schema.Title = "CCW Animation Set"
	schema.Description = "Validates designer-authored clip timing files loaded by the combo server"
	return schema
}

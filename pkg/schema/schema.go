package schema

import (
	"github.com/invopop/jsonschema"
)

func generateSchema[T any]() *jsonschema.Schema {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return r.Reflect(v)
}

// CoachRoutesSchema describes the payload returned by the coach route planner.
var CoachRoutesSchema = generateSchema[CoachRoutes]()

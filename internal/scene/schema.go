package scene

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// metadataSchema describes the raw scene metadata document.
const metadataSchema = `{
  "type": "object",
  "required": ["sectors"],
  "properties": {
    "version": {"type": "integer"},
    "maxTreeIndex": {"type": "integer"},
    "unit": {"type": ["string", "null"]},
    "sectors": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "boundingBox"],
        "properties": {
          "id": {"type": "integer", "minimum": 0},
          "parentId": {"type": ["integer", "null"], "minimum": -1},
          "path": {"type": "string"},
          "depth": {"type": "integer", "minimum": 0},
          "boundingBox": {
            "type": "object",
            "required": ["min", "max"],
            "properties": {
              "min": {"$ref": "#/definitions/point"},
              "max": {"$ref": "#/definitions/point"}
            }
          },
          "estimatedDrawCallCount": {"type": "integer"},
          "estimatedRenderCost": {"type": "number"},
          "downloadSize": {"type": "integer"},
          "maxDiagonalLength": {"type": "number"},
          "sectorFileName": {"type": ["string", "null"]}
        }
      }
    }
  },
  "definitions": {
    "point": {
      "type": "object",
      "required": ["x", "y", "z"],
      "properties": {
        "x": {"type": "number"},
        "y": {"type": "number"},
        "z": {"type": "number"}
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(metadataSchema)

// ValidateJSON checks raw metadata against the scene schema.
func ValidateJSON(data []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: schema validation: %v", ErrInvalidMetadata, err)
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidMetadata, strings.Join(problems, "; "))
	}
	return nil
}

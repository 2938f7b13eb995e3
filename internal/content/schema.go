package content

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Only the envelopes are validated. Individual malformed elements, such as a topic
// without an id, are left for the normalizer to handle.
const (
	lessonListSchema = `{
  "type": "object",
  "required": ["lessons"],
  "properties": {
    "lessons": {
      "type": "array",
      "items": {"type": "object"}
    }
  }
}`

	nodeDetailSchema = `{
  "type": "object",
  "properties": {
    "id": {"type": ["string", "number", "null"]},
    "topics": {
      "type": ["array", "null"],
      "items": {"type": "object"}
    }
  }
}`
)

var (
	lessonListValidator = mustSchema(lessonListSchema)
	nodeDetailValidator = mustSchema(nodeDetailSchema)
)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("content: invalid schema: %v", err))
	}
	return schema
}

// validate checks a payload against schema and joins every violation into one error.
func validate(schema *gojsonschema.Schema, payload []byte) error {
	res, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("invalid json payload: %w", err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("unexpected payload shape: %s", strings.Join(msgs, "; "))
}

// ValidateLessonList validates the lesson list envelope.
func ValidateLessonList(payload []byte) error {
	return validate(lessonListValidator, payload)
}

// ValidateNodeDetail validates a node detail payload.
func ValidateNodeDetail(payload []byte) error {
	return validate(nodeDetailValidator, payload)
}

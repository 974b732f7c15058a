package curriculum

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const courseSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "name"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "code": {"type": "string"},
    "name": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "syllabus": {"type": "array", "items": {"$ref": "#/definitions/syllabusWeek"}},
    "topics": {"type": "array", "items": {"$ref": "#/definitions/topic"}},
    "questions": {"type": "array", "items": {"$ref": "#/definitions/question"}}
  },
  "definitions": {
    "stringList": {"type": "array", "items": {"type": "string"}},
    "syllabusWeek": {
      "type": "object",
      "required": ["topic"],
      "properties": {
        "week": {"type": "integer", "minimum": 1},
        "topic": {"type": "string", "minLength": 1},
        "description": {"type": "string"},
        "subtopics": {"$ref": "#/definitions/stringList"}
      }
    },
    "topic": {
      "type": "object",
      "required": ["id", "name"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "name": {"type": "string", "minLength": 1},
        "description": {"type": "string"},
        "week": {"type": "integer", "minimum": 1},
        "difficulty": {"type": "number", "minimum": 0, "maximum": 1},
        "prerequisites": {"$ref": "#/definitions/stringList"},
        "concepts": {"$ref": "#/definitions/stringList"},
        "resources": {"$ref": "#/definitions/stringList"}
      }
    },
    "question": {
      "type": "object",
      "required": ["id", "topic_id", "text", "correct_answer"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "topic_id": {"type": "string", "minLength": 1},
        "text": {"type": "string", "minLength": 1},
        "difficulty": {"enum": ["easy", "medium", "hard"]},
        "type": {"enum": ["mcq", "true_false", "short_answer"]},
        "options": {"$ref": "#/definitions/stringList"},
        "correct_answer": {"type": "string", "minLength": 1},
        "explanation": {"type": "string"},
        "citation": {"type": "string"}
      }
    }
  }
}`

var courseSchema = mustCompileSchema(courseSchemaJSON)

func mustCompileSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("curriculum: compiling course schema: %v", err))
	}
	return s
}

// validateDocument checks a decoded course document against the course schema.
func validateDocument(doc map[string]any) error {
	result, err := courseSchema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validating course document: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidCourse, strings.Join(msgs, "; "))
}

// normalize converts YAML's map[any]any nodes into map[string]any so the
// document can be handed to the JSON schema validator.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = normalize(child)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[fmt.Sprint(k)] = normalize(child)
		}
		return out
	case []any:
		for i, child := range t {
			t[i] = normalize(child)
		}
		return t
	default:
		return v
	}
}

package feed

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Sentinel feed errors.
var (
	// ErrUnknownEventType indicates an envelope with a type outside the
	// known set.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrInvalidEvent indicates an envelope that failed schema validation.
	ErrInvalidEvent = errors.New("invalid event")
)

// envelopeSchema validates the outer wire form of every inbound event before
// any payload decoding happens. Payload shape is checked per type; the
// report object mirrors the worker wire format.
const envelopeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["type", "payload"],
  "properties": {
    "type": {
      "enum": ["tests_collected", "reports_batch", "observations", "load_finished"]
    },
    "payload": {"type": "object"}
  },
  "allOf": [
    {
      "if": {"properties": {"type": {"const": "reports_batch"}}},
      "then": {
        "properties": {
          "payload": {
            "type": "object",
            "required": ["test_id", "worker_id", "reports"],
            "properties": {
              "test_id": {"type": "string", "minLength": 1},
              "worker_id": {"type": "string", "minLength": 1},
              "reports": {
                "type": "array",
                "items": {
                  "type": "object",
                  "required": ["elapsed_time", "timestamp", "status_counts", "phase"],
                  "properties": {
                    "elapsed_time": {"type": "number", "minimum": 0},
                    "timestamp": {"type": "number"},
                    "status_counts": {
                      "type": "object",
                      "properties": {
                        "overrun": {"type": "integer", "minimum": 0},
                        "invalid": {"type": "integer", "minimum": 0},
                        "valid": {"type": "integer", "minimum": 0},
                        "interesting": {"type": "integer", "minimum": 0}
                      }
                    },
                    "behaviors": {"type": "integer", "minimum": 0},
                    "fingerprints": {"type": "integer", "minimum": 0},
                    "phase": {"enum": ["generate", "replay", "distill", "shrink", "failed"]}
                  }
                }
              }
            }
          }
        }
      }
    },
    {
      "if": {"properties": {"type": {"const": "tests_collected"}}},
      "then": {
        "properties": {
          "payload": {
            "type": "object",
            "required": ["tests"],
            "properties": {
              "tests": {
                "type": "array",
                "items": {
                  "type": "object",
                  "required": ["test_id"],
                  "properties": {
                    "test_id": {"type": "string", "minLength": 1},
                    "failures": {"type": "array", "items": {"type": "string"}}
                  }
                }
              }
            }
          }
        }
      }
    },
    {
      "if": {"properties": {"type": {"const": "load_finished"}}},
      "then": {
        "properties": {
          "payload": {
            "type": "object",
            "required": ["test_id"],
            "properties": {"test_id": {"type": "string", "minLength": 1}}
          }
        }
      }
    }
  ]
}`

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(
			gojsonschema.NewStringLoader(envelopeSchema))
	})

	if schemaErr != nil {
		return nil, fmt.Errorf("compile event schema: %w", schemaErr)
	}

	return schema, nil
}

// ValidateEnvelope checks one raw wire event against the envelope schema.
// A malformed event is logged and skipped by callers, never fatal.
func ValidateEnvelope(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidEvent, strings.Join(details, "; "))
	}

	return nil
}

package storage

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/governance-platform/assessment/pkg/criteria"
	"github.com/governance-platform/assessment/pkg/evaluation"
)

//go:embed evaluation.schema.json
var evaluationSchemaJSON []byte

const evaluationSchemaURL = "https://schemas.governance-platform.dev/assessment/evaluation.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func evaluationSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(evaluationSchemaURL, bytes.NewReader(evaluationSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("evaluation schema load failed: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(evaluationSchemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("evaluation schema compile failed: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

func decodeGeneric(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("record is not a JSON object")
	}
	return doc, nil
}

// ValidateRecord checks a serialized record against the evaluation schema.
func ValidateRecord(raw []byte) error {
	schema, err := evaluationSchema()
	if err != nil {
		return err
	}
	doc, err := decodeGeneric(raw)
	if err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("record does not match schema: %w", err)
	}
	return nil
}

func normalize(e *evaluation.Evaluation) {
	if e.Responses == nil {
		e.Responses = make(map[criteria.Key]evaluation.Response)
	}
	if r := e.EvaluatorReview; r != nil {
		if r.Adjustments == nil {
			r.Adjustments = make(map[criteria.Key]evaluation.Adjustment)
		}
		if r.EvidenceVerification == nil {
			r.EvidenceVerification = make(map[criteria.Key]evaluation.VerificationRecord)
		}
	}
}

// Encode serializes e and validates the result.
func Encode(e *evaluation.Evaluation) ([]byte, error) {
	normalize(e)
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode evaluation %d: %w", e.ID, err)
	}
	if err := ValidateRecord(raw); err != nil {
		return nil, fmt.Errorf("encode evaluation %d: %w", e.ID, err)
	}
	return raw, nil
}

// Decode parses a stored record, upgrading older layouts first.
func Decode(raw []byte) (*evaluation.Evaluation, error) {
	doc, err := decodeGeneric(raw)
	if err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	migrated, err := Migrate(doc)
	if err != nil {
		return nil, err
	}
	if migrated {
		if raw, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("re-encode migrated record: %w", err)
		}
	}
	if err := ValidateRecord(raw); err != nil {
		return nil, err
	}
	var e evaluation.Evaluation
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode evaluation: %w", err)
	}
	normalize(&e)
	return &e, nil
}

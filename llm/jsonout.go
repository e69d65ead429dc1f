// ABOUTME: Helpers for JSON-mode responses: extraction from fenced/prose output and schema validation.
// ABOUTME: Validation uses gojsonschema; failures surface as SchemaError so steps can retry with another key.

package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidJSON means no parseable JSON object could be recovered from a response.
var ErrInvalidJSON = errors.New("invalid JSON in model response")

var (
	fenceRe         = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// SchemaError lists the schema violations of a decoded response.
type SchemaError struct {
	Schema string
	Errors []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("JSON response failed %s validation: %s", e.Schema, strings.Join(e.Errors, "; "))
}

// ExtractJSON returns the outermost JSON object in text, tolerating markdown
// fences, leading prose, and trailing commas.
func ExtractJSON(text string) (string, error) {
	s := strings.TrimSpace(text)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no object found", ErrInvalidJSON)
	}
	s = s[start : end+1]
	if json.Valid([]byte(s)) {
		return s, nil
	}
	repaired := trailingCommaRe.ReplaceAllString(s, "$1")
	if json.Valid([]byte(repaired)) {
		return repaired, nil
	}
	return "", fmt.Errorf("%w: object is malformed", ErrInvalidJSON)
}

// Schema is a named, compiled JSON schema.
type Schema struct {
	name   string
	schema *gojsonschema.Schema
}

// MustSchema compiles a schema document or panics. Schemas are package-level
// literals, so a failure is a programming error.
func MustSchema(name, doc string) *Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", name, err))
	}
	return &Schema{name: name, schema: s}
}

// Validate checks a JSON document against the schema.
func (s *Schema) Validate(doc string) error {
	result, err := s.schema.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if result.Valid() {
		return nil
	}
	se := &SchemaError{Schema: s.name}
	for _, re := range result.Errors() {
		se.Errors = append(se.Errors, re.String())
	}
	return se
}

// DecodeJSON extracts, validates (when schema is non-nil) and unmarshals a response.
func DecodeJSON(text string, schema *Schema, out any) error {
	doc, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if schema != nil {
		if err := schema.Validate(doc); err != nil {
			return err
		}
	}
	if err := json.Unmarshal([]byte(doc), out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return nil
}

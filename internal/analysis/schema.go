package analysis

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Response kinds, also the schema file names.
const (
	KindCompliance = "compliance"
	KindValue      = "value"
	KindTools      = "tools"
)

var (
	compileOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	compileErr  error
)

// Schema returns the compiled JSON Schema for a response kind.
func Schema(kind string) (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		out := make(map[string]*jsonschema.Schema, 3)
		for _, k := range []string{KindCompliance, KindValue, KindTools} {
			name := k + ".json"
			b, err := schemaFS.ReadFile("schemas/" + name)
			if err != nil {
				compileErr = fmt.Errorf("read %s schema: %w", k, err)
				return
			}
			if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
				compileErr = fmt.Errorf("add %s schema resource: %w", k, err)
				return
			}
			s, err := compiler.Compile(name)
			if err != nil {
				compileErr = fmt.Errorf("compile %s schema: %w", k, err)
				return
			}
			out[k] = s
		}
		schemas = out
	})
	if compileErr != nil {
		return nil, compileErr
	}
	s, ok := schemas[kind]
	if !ok {
		return nil, fmt.Errorf("unknown response kind %q", kind)
	}
	return s, nil
}

// ParseError reports model output that is not exactly one JSON object
// matching the expected schema. Raw holds the text as received.
type ParseError struct {
	Kind string
	Raw  string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s response: %v; response was: %q", e.Kind, e.Err, e.Raw)
}

func (e *ParseError) Unwrap() error { return e.Err }

// parseStrict validates raw against the schema for kind and decodes it into
// out. Nothing is repaired: fenced or trailing text fails.
func parseStrict(kind, raw string, out any) error {
	fail := func(err error) error { return &ParseError{Kind: kind, Raw: raw, Err: err} }

	schema, err := Schema(kind)
	if err != nil {
		return err
	}

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return fail(fmt.Errorf("not valid JSON: %w", err))
	}
	if _, ok := doc.(map[string]any); !ok {
		return fail(errors.New("not a JSON object"))
	}
	if err := schema.Validate(doc); err != nil {
		return fail(fmt.Errorf("does not match schema: %w", err))
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fail(err)
	}
	return nil
}

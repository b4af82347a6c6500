package scripted

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/wesleyorama2/drove/internal/attack"
	"github.com/wesleyorama2/drove/internal/transport"
)

// SchemaErrors lists every leaf violation of a response schema.
type SchemaErrors []string

func (e SchemaErrors) Error() string {
	return "schema validation failed: " + strings.Join(e, "; ")
}

func compileSchema(src string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("response.json", strings.NewReader(src)); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	schema, err := compiler.Compile("response.json")
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return schema, nil
}

// schemaCheck fails a request whose body does not satisfy schema.
func schemaCheck(schema *jsonschema.Schema) attack.Check {
	return attack.CheckFunc(func(resp *transport.Response) error {
		var doc interface{}
		if err := json.Unmarshal(resp.Body, &doc); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		err := schema.Validate(doc)
		if err == nil {
			return nil
		}
		var verr *jsonschema.ValidationError
		if !errors.As(err, &verr) {
			return err
		}
		return SchemaErrors(flatten(verr, nil))
	})
}

func flatten(err *jsonschema.ValidationError, out []string) []string {
	if len(err.Causes) == 0 {
		loc := err.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return append(out, fmt.Sprintf("%s: %s", loc, err.Message))
	}
	for _, cause := range err.Causes {
		out = flatten(cause, out)
	}
	return out
}

package harness

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// SchemaError is one violation of the scenario schema.
type SchemaError struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (e SchemaError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
)

func scenarioSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile scenario schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Scenario"))
	})
	return schemaCtx, schemaDef, schemaErr
}

// ValidateSchema checks raw scenario YAML against the CUE schema and returns
// every violation found. A YAML syntax error is reported as a single entry.
func ValidateSchema(data []byte) []SchemaError {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return []SchemaError{{Message: fmt.Sprintf("parse YAML: %v", err)}}
	}
	if doc == nil {
		return []SchemaError{{Message: "scenario is empty"}}
	}

	ctx, def, err := scenarioSchema()
	if err != nil {
		return []SchemaError{{Message: err.Error()}}
	}

	v := def.Unify(ctx.Encode(doc))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		var out []SchemaError
		for _, e := range cueerrors.Errors(err) {
			format, args := e.Msg()
			out = append(out, SchemaError{
				Path:    strings.Join(e.Path(), "."),
				Message: fmt.Sprintf(format, args...),
			})
		}
		return out
	}
	return nil
}

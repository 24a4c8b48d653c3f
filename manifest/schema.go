package manifest

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schema     cue.Value
	schemaErr  error
)

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compiling manifest schema: %w", err)
			return
		}
		schema = v.LookupPath(cue.ParsePath("#Manifest"))
		schemaErr = schema.Err()
	})
	return schemaCtx, schema, schemaErr
}

// Validate checks decoded manifest data against the manifest schema.
// Unknown sections and keys are rejected.
func Validate(raw map[string]any) error {
	ctx, def, err := loadSchema()
	if err != nil {
		return err
	}
	v := ctx.Encode(raw)
	if err := v.Err(); err != nil {
		return err
	}
	return def.Unify(v).Validate(cue.Concrete(true))
}

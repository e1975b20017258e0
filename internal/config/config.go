package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/atplug/internal/manifest"
)

// FileName is the project configuration file looked up in the project
// directory.
const FileName = "atplug.cue"

// schema closes the configuration so misspelled fields are reported.
const schema = `
#Config: {
	roots?:       [...string]
	resources?:   string
	header?:      =~"^[A-Za-z0-9][A-Za-z0-9_-]*$"
	index?:       string
	concurrency?: int & >=0
	catalog?:     string
}
`

// Config is the compiled project configuration. Relative paths in
// atplug.cue are joined to Dir.
type Config struct {
	// Dir is the project directory.
	Dir string
	// Roots are the source trees scanned for plug markers.
	Roots []string
	// Resources is the directory descriptors and the manifest are
	// published to.
	Resources string
	// Header is the manifest attribute listing descriptor files.
	Header string
	// Index is the discovery index database.
	Index string
	// Concurrency bounds parallel file scanning. Zero means GOMAXPROCS.
	Concurrency int
	// Catalog overrides the import path generated registration code uses.
	Catalog string
}

type rawConfig struct {
	Roots       []string `json:"roots"`
	Resources   string   `json:"resources"`
	Header      string   `json:"header"`
	Index       string   `json:"index"`
	Concurrency int      `json:"concurrency"`
	Catalog     string   `json:"catalog"`
}

// Default returns the configuration used when dir has no atplug.cue.
func Default(dir string) *Config {
	return resolve(dir, rawConfig{})
}

// Load reads dir/atplug.cue, or returns Default(dir) if there is none.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(dir), nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"./" + FileName}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", path)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return Compile(dir, value)
}

// Compile validates v against the configuration schema and resolves it
// relative to dir.
func Compile(dir string, v cue.Value) (*Config, error) {
	def := v.Context().CompileString(schema).LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("configuration schema: %w", err)
	}

	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var raw rawConfig
	if err := unified.Decode(&raw); err != nil {
		return nil, formatCUEError(err)
	}
	for i, root := range raw.Roots {
		if root == "" {
			return nil, &CompileError{
				Field:   fmt.Sprintf("roots[%d]", i),
				Message: "root must not be empty",
				Pos:     unified.LookupPath(cue.MakePath(cue.Str("roots"), cue.Index(i))).Pos(),
			}
		}
	}
	return resolve(dir, raw), nil
}

func resolve(dir string, raw rawConfig) *Config {
	c := &Config{
		Dir:         dir,
		Roots:       []string{dir},
		Resources:   filepath.Join(dir, "resources"),
		Header:      manifest.DefaultHeader,
		Index:       filepath.Join(dir, ".atplug", "index.db"),
		Concurrency: raw.Concurrency,
		Catalog:     raw.Catalog,
	}
	if len(raw.Roots) > 0 {
		c.Roots = c.Roots[:0]
		for _, r := range raw.Roots {
			c.Roots = append(c.Roots, join(dir, r))
		}
	}
	if raw.Resources != "" {
		c.Resources = join(dir, raw.Resources)
	}
	if raw.Header != "" {
		c.Header = raw.Header
	}
	if raw.Index != "" {
		c.Index = join(dir, raw.Index)
	}
	return c
}

func join(dir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, p)
}

// CompileError represents a configuration error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	field := "cue"
	if path := first.Path(); len(path) > 0 {
		field = path[len(path)-1]
	}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   field,
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return &CompileError{Field: field, Message: first.Error()}
}

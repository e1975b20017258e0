package cli

import (
	"bytes"
	"fmt"
	"io/fs"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/spf13/cobra"

	"github.com/roach88/atplug/internal/descriptor"
	"github.com/roach88/atplug/internal/manifest"
)

// Violation is one problem found by verify.
type Violation struct {
	Source  string `json:"source"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

// VerifyResult is the JSON payload of the verify command.
type VerifyResult struct {
	Valid       bool        `json:"valid"`
	Descriptors int         `json:"descriptors"`
	Violations  []Violation `json:"violations,omitempty"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [sources...]",
		Short: "Validate published descriptor files",
		Long: `Check every descriptor file listed by the manifest header of each source:
the file must exist, match the descriptor schema, be in canonical form and
live at the path derived from its implementation name.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, args, cmd)
		},
	}
}

// compileSchema compiles the reflected descriptor schema for validation.
func compileSchema() (*jsonschema.Schema, error) {
	raw, err := DescriptorSchema()
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(SchemaID, doc); err != nil {
		return nil, err
	}
	return c.Compile(SchemaID)
}

func runVerify(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg, err := opts.loadConfig(formatter)
	if err != nil {
		return err
	}

	sch, err := compileSchema()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to compile descriptor schema", err)
	}
	sources, err := openSources(args, cfg)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "source not found", err)
	}
	defer closeSources(sources)

	result := VerifyResult{}
	for _, src := range sources {
		fsys, paths, err := listedFiles(src, cfg.Header)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeSource, "failed to read "+src.Name(), err)
		}
		for _, p := range paths {
			result.Descriptors++
			formatter.VerboseLog("Verifying %s in %s", p, src.Name())
			if msg := verifyFile(sch, fsys, p); msg != "" {
				result.Violations = append(result.Violations, Violation{Source: src.Name(), Path: p, Message: msg})
			}
		}
	}
	result.Valid = len(result.Violations) == 0

	if !result.Valid {
		if formatter.Format == "json" {
			_ = formatter.Error(ErrCodeInvalid, fmt.Sprintf("%d invalid descriptors", len(result.Violations)), result)
		} else {
			for _, v := range result.Violations {
				fmt.Fprintf(formatter.Writer, "✗ %s: %s: %s\n", v.Source, v.Path, v.Message)
			}
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d invalid descriptors", len(result.Violations)))
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ %d descriptors valid\n", result.Descriptors)
	return nil
}

// verifyFile returns a description of the first problem with the
// descriptor at path, or "".
func verifyFile(sch *jsonschema.Schema, fsys fs.FS, path string) string {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return err.Error()
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Sprintf("invalid JSON: %v", err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Sprintf("schema violation: %v", err)
	}
	d, err := descriptor.Parse(data)
	if err != nil {
		return err.Error()
	}
	if want := manifest.DescriptorPath(d.Implementation()); want != path {
		return fmt.Sprintf("descriptor for %s belongs at %s", d.Implementation(), want)
	}
	canonical, err := d.Encode()
	if err != nil {
		return err.Error()
	}
	if !bytes.Equal(canonical, data) {
		return "not in canonical form"
	}
	return ""
}

package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	invjsonschema "github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/roach88/atplug/internal/descriptor"
)

// SchemaID identifies the descriptor file schema.
const SchemaID = "https://github.com/roach88/atplug/schema/descriptor.json"

// DescriptorSchema returns the JSON Schema of a descriptor file, reflected
// from its on-disk shape.
func DescriptorSchema() ([]byte, error) {
	propsType := reflect.TypeOf(descriptor.Properties{})
	r := &invjsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
		Mapper: func(t reflect.Type) *invjsonschema.Schema {
			if t == propsType {
				return &invjsonschema.Schema{
					Type:                 "object",
					Description:          "Metadata key/value pairs in insertion order.",
					AdditionalProperties: &invjsonschema.Schema{Type: "string"},
				}
			}
			return nil
		},
	}
	s := r.Reflect(descriptor.Wire())
	s.ID = invjsonschema.ID(SchemaID)
	s.Title = "atplug descriptor"

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	return buf.Bytes(), nil
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "schema",
		Short:         "Print the JSON Schema of descriptor files",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(rootOpts, cmd)
		},
	}
}

func runSchema(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	schema, err := DescriptorSchema()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to build schema", err)
	}
	if formatter.Format == "json" {
		return formatter.Success(json.RawMessage(schema))
	}
	_, err = formatter.Writer.Write(schema)
	return err
}

package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/izgzhen/synthctl/pkg/serial"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <spec.json>",
		Short: "Validate a specification against the wire schema",
		Long: `Check that a specification file parses as JSON, conforms to the
CUE schema for a Specification (required top-level fields, correct
element shapes), and decodes into a well-formed pkg/ast.Specification
(every expression, statement, and type tag recognized).`,
		Example: `  # Validate a specification file
  synthctl validate spec.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			log.Info().Str("path", path).Msg("validating specification")

			data, err := readSpecFile(path)
			if err != nil {
				return err
			}

			if err := serial.ValidateSchema(data); err != nil {
				return fmt.Errorf("schema validation failed: %w", err)
			}

			spec, err := serial.Decode(data)
			if err != nil {
				return fmt.Errorf("decode failed: %w", err)
			}

			fmt.Printf("%s: valid (%d queries, %d operations, %d state vars)\n",
				path, len(spec.Queries), len(spec.Operations), len(spec.StateVars))
			return nil
		},
	}
	return cmd
}

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charlie42/facets-validity/pipeline/docschema"
	"github.com/spf13/cobra"
)

func newSchemaCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "schema <" + strings.Join(docschema.Names(), "|") + ">",
		Short: "Print the JSON Schema of an input or output document",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageError{fmt.Errorf("want one document name, one of %s", strings.Join(docschema.Names(), ", "))}
			}
			doc, err := docschema.Document(args[0], strict)
			if err != nil {
				return usageError{err}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(doc)
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Close every object and require every property")
	return cmd
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/papphost/internal/version"
)

// NewSchemaCmd creates the schema subcommand.
func NewSchemaCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for papp.yaml manifests",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := version.GenerateSchema()
			if err != nil {
				return err
			}
			data = append(data, '\n')

			if output == "" {
				_, err := cmd.OutOrStdout().Write(data)
				return err //nolint:wrapcheck // output write
			}
			if err := os.WriteFile(output, data, 0o644); err != nil { //nolint:gosec // schema is public
				return oops.Code("SCHEMA_WRITE_FAILED").In("schema").With("path", output).Wrap(err)
			}
			cmd.Printf("wrote %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the schema to a file instead of stdout")
	return cmd
}

// cmd/indexctl/parse.go
package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"maven-indexer/internal/maven"
)

var parseJSON bool

func init() {
	parseCmd.Flags().BoolVar(&parseJSON, "json", false, "print every parsed package as JSON")
}

var parseCmd = &cobra.Command{
	Use:   "parse <dump.fld>",
	Short: "Parse an exported index dump and print a summary",
	Long: `Parse a .fld dump written by the index exporter without touching the database.

Examples:
  indexctl parse tmp/maven-indexes/maven-central/export/index.fld
  indexctl parse index.fld --json`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func runParse(cmd *cobra.Command, args []string) error {
	records, err := maven.ParseDumpFile(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if parseJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	fmt.Fprintf(out, "packages: %d\nversions: %d\n", len(records), maven.CountVersions(records))
	return nil
}

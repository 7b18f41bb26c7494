package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/jerrybase-cli/internal/dataset"
	"github.com/sells-group/jerrybase-cli/internal/export"
	"github.com/sells-group/jerrybase-cli/internal/model"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the detailed dataset to a spreadsheet, one sheet per year",
	RunE: func(cmd *cobra.Command, _ []string) error {
		input, _ := cmd.Flags().GetString("input")
		output, _ := cmd.Flags().GetString("output")
		if input == "" {
			input = cfg.Data.DetailedPath
		}
		if output != "" {
			cfg.Data.ExportPath = output
		}
		if err := cfg.Validate("export"); err != nil {
			return err
		}

		if _, err := os.Stat(input); err != nil {
			return eris.Wrapf(err, "export: input %s", input)
		}
		ds, err := dataset.Load[model.DetailRecord](input)
		if err != nil {
			return err
		}

		sheets, err := export.WriteXLSX(ds, cfg.Data.ExportPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "wrote %d records in %d sheets to %s\n", ds.Len(), sheets, cfg.Data.ExportPath)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("input", "", "detailed dataset to read (default from config)")
	exportCmd.Flags().String("output", "", "spreadsheet to write (default from config)")
	rootCmd.AddCommand(exportCmd)
}

package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"swanid/internal/config"
	"swanid/internal/models"
	"swanid/internal/store"
)

// catalog is the document written by export.
type catalog struct {
	ExportedAt time.Time            `json:"exported_at" yaml:"exported_at"`
	Count      int                  `json:"count" yaml:"count"`
	Images     []models.ImageRecord `json:"images" yaml:"images"`
}

func newExportCmd(cfg *config.Config) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the image catalog (metadata only) as JSON or YAML",
		Long:  "Export reads the metadata database directly; use --format yaml for YAML output.",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			records, err := st.List(cmd.Context())
			if err != nil {
				return err
			}
			if records == nil {
				records = []models.ImageRecord{}
			}

			var w io.Writer = os.Stdout
			if outputPath != "" {
				f, err := os.Create(outputPath)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return outputFormatter.Write(w, catalog{
				ExportedAt: time.Now().UTC(),
				Count:      len(records),
				Images:     records,
			})
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (default: stdout)")
	return cmd
}

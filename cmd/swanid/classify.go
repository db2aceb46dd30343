package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"swanid/internal/api"
	"swanid/internal/config"
)

func newClassifyCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <file> [<file>...]",
		Short: "Classify images with the configured inference service",
		Args:  requireAtLeastOneFile,
		RunE: func(cmd *cobra.Command, args []string) error {
			uploads := make([]api.Upload, 0, len(args))
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					closeFiles(uploads)
					return err
				}
				uploads = append(uploads, api.Upload{Filename: filepath.Base(path), Content: f})
			}
			defer closeFiles(uploads)

			return withClient(cmd.Context(), cfg, func(client *api.Client) error {
				resp, err := client.Analyze(cmd.Context(), uploads)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writeAnalyzeResult(resp)
			})
		},
	}
}

func closeFiles(uploads []api.Upload) {
	for _, upload := range uploads {
		if f, ok := upload.Content.(*os.File); ok {
			_ = f.Close()
		}
	}
}

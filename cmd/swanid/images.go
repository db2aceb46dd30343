package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"swanid/internal/api"
	"swanid/internal/config"
	"swanid/internal/models"
)

func newSaveCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var tags []string

	cmd := &cobra.Command{
		Use:   "save <file> [<file>...]",
		Short: "Store images with a tag set",
		Args:  requireAtLeastOneFile,
		RunE: func(cmd *cobra.Command, args []string) error {
			tagSet, err := tagsFromArgs(tags)
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), cfg, func(client *api.Client) error {
				saved := make([]api.ImageResponse, 0, len(args))
				for _, path := range args {
					resp, err := saveFile(cmd, client, path, tagSet)
					if err != nil {
						return err
					}
					saved = append(saved, resp.Images...)
				}
				if *jsonOutput {
					return writeJSON(saved)
				}
				return writeImageList(saved)
			})
		},
	}

	cmd.Flags().StringArrayVarP(&tags, "tags", "t", nil, "tags to attach (repeatable or space-separated)")
	return cmd
}

func saveFile(cmd *cobra.Command, client *api.Client, path string, tags []string) (api.SaveResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return api.SaveResponse{}, err
	}
	defer f.Close()
	return client.SaveImage(cmd.Context(), api.Upload{Filename: filepath.Base(path), Content: f}, tags)
}

func newFindCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "find <tag> [<tag>...]",
		Short: "List images carrying any of the tags",
		Args:  requireAtLeastArgs(1, "at least one tag is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			tags, err := tagsFromArgs(args)
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), cfg, func(client *api.Client) error {
				images, err := client.FindImages(cmd.Context(), tags)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(images)
				}
				return writeImageList(images)
			})
		},
	}
}

func newShowCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show image details",
		Args:  requireOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), cfg, func(client *api.Client) error {
				image, err := client.GetImage(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(image)
				}
				return writeImageDetail(image)
			})
		},
	}
}

func newTagCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "tag <id> [<tag>...]",
		Short: "Replace the tags of an image",
		Long:  "Replace the tags of an image. Passing no tags clears the tag set.",
		Args:  requireAtLeastArgs(1, "image id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			tags, err := tagsFromArgs(args[1:])
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), cfg, func(client *api.Client) error {
				image, err := client.UpdateTags(cmd.Context(), args[0], tags)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(image)
				}
				return writeImageDetail(image)
			})
		},
	}
}

func newRmCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id> [<id>...]",
		Short: "Delete images",
		Args:  requireAtLeastArgs(1, "image id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), cfg, func(client *api.Client) error {
				results := make([]api.StatusResponse, 0, len(args))
				for _, id := range args {
					resp, err := client.DeleteImage(cmd.Context(), id)
					if err != nil {
						return fmt.Errorf("delete %s: %w", id, err)
					}
					results = append(results, resp)
				}
				if *jsonOutput {
					return writeJSON(results)
				}
				for _, resp := range results {
					if err := writePlain("deleted %s\n", resp.ID); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newGetCmd(cfg *config.Config) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Download the content of an image",
		Args:  requireOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), cfg, func(client *api.Client) error {
				var w io.Writer = os.Stdout
				if outputPath != "" {
					f, err := os.Create(outputPath)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				return client.DownloadImage(cmd.Context(), args[0], w)
			})
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (default: stdout)")
	return cmd
}

// tagsFromArgs splits each arg on whitespace. Commas are part of a tag.
func tagsFromArgs(args []string) ([]string, error) {
	var raw []string
	for _, arg := range args {
		raw = append(raw, models.ParseTags(arg)...)
	}
	return models.NormalizeTags(raw)
}

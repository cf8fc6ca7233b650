package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"contest-site/pkg/models"
	"contest-site/pkg/preload"
)

// newExportCmd creates a new command for exporting the manifest
func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [format]",
		Short: "Export the asset manifest",
		Long:  `Export the asset manifest in the specified format. Currently supported formats: json.`,
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			m, err := LoadManifest()
			if err != nil {
				log.Fatalf("Failed to load manifest: %v", err)
			}

			format := "json"
			if len(args) > 0 {
				format = args[0]
			}
			exportManifest(m, format)
		},
	}
}

// exportManifest prints the manifest in the specified format
func exportManifest(m models.Manifest, format string) {
	if format != "json" {
		fmt.Printf("Unsupported export format: %s\n", format)
		fmt.Println("Supported formats: json")
		os.Exit(1)
	}

	data, err := marshalManifest(m)
	if err != nil {
		fmt.Printf("Error marshaling data: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(string(data))
}

// marshalManifest encodes the manifest with videos in load order, for consistent output
func marshalManifest(m models.Manifest) ([]byte, error) {
	ordered := models.Manifest{
		Images: m.Images,
		Videos: preload.PlaybackOrder(m.Videos),
	}
	return json.MarshalIndent(ordered, "", "  ")
}

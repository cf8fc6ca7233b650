package cmd

import (
	"fmt"
	"log"
	"strconv"

	"github.com/spf13/cobra"

	"contest-site/pkg/models"
	"contest-site/pkg/preload"
)

// newListAssetsCmd creates a new command for listing the manifest
func newListAssetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-assets",
		Short: "List the assets the page preloads",
		Long:  `List the manifest in load order: every image, then the videos by descending priority.`,
		Run: func(cmd *cobra.Command, args []string) {
			m, err := LoadManifest()
			if err != nil {
				log.Fatalf("Failed to load manifest: %v", err)
			}
			listAssets(m)
		},
	}
}

// listAssets displays the manifest in the order the engine loads it
func listAssets(m models.Manifest) {
	fmt.Println(assetTable(m))
	fmt.Printf("Total: %d images, %d videos\n", len(m.Images), len(m.Videos))
}

// assetTable renders one row per asset. Images share step 1 because they load together.
func assetTable(m models.Manifest) string {
	rows := make([][]string, 0, m.Total())
	for _, image := range m.Images {
		rows = append(rows, []string{"1", string(models.AssetKindImage), image, ""})
	}
	for i, video := range preload.PlaybackOrder(m.Videos) {
		rows = append(rows, []string{
			strconv.Itoa(i + 2),
			string(models.AssetKindVideo),
			video.URL,
			strconv.Itoa(video.Priority),
		})
	}
	return renderTable(
		[]string{"Step", "Kind", "URL", "Priority"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
	)
}

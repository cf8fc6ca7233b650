package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"contest-site/pkg/models"
	"contest-site/pkg/services"
)

// newCheckAssetsCmd creates a new command that checks the bucket holds every manifest entry
func newCheckAssetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-assets",
		Short: "Check the bucket for missing assets",
		Long:  `List the objects in the asset bucket and report manifest entries that have no object.`,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := LoadConfig()
			if err != nil {
				log.Fatalf("Failed to load configuration: %v", err)
			}
			if !cfg.UsesBucket() {
				log.Fatalf("check-assets needs BUCKET_NAME; %s is a web origin", cfg.AssetOrigin)
			}
			m, err := LoadManifest()
			if err != nil {
				log.Fatalf("Failed to load manifest: %v", err)
			}

			// Create a context with timeout
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			fetcher, err := services.NewBucketFetcher(ctx, cfg.BucketName)
			if err != nil {
				log.Fatalf("Failed to open bucket: %v", err)
			}
			defer fetcher.Close()

			objects, err := fetcher.ListObjects(ctx)
			if err != nil {
				log.Fatalf("Failed to list bucket: %v", err)
			}

			missing := missingAssets(m, objects)
			fmt.Printf("Bucket %s holds %d objects\n", cfg.BucketName, len(objects))
			fmt.Println(presenceTable(m, missing))
			if len(missing) == 0 {
				fmt.Printf("All %d manifest assets are present\n", m.Total())
				return
			}

			fmt.Printf("Missing %d of %d manifest assets\n", len(missing), m.Total())
			os.Exit(1)
		},
	}
}

// presenceTable renders every manifest entry with whether the bucket holds it
func presenceTable(m models.Manifest, missing []string) string {
	absent := make(map[string]bool, len(missing))
	for _, ref := range missing {
		absent[ref] = true
	}

	rows := make([][]string, 0, m.Total())
	row := func(kind models.AssetKind, ref string) {
		status := "ok"
		if absent[ref] {
			status = "MISSING"
		}
		rows = append(rows, []string{string(kind), ref, status})
	}
	for _, image := range m.Images {
		row(models.AssetKindImage, image)
	}
	for _, video := range m.Videos {
		row(models.AssetKindVideo, video.URL)
	}
	return renderTable([]string{"Kind", "URL", "Status"}, rows, nil)
}

// missingAssets returns the manifest refs with no matching object name
func missingAssets(m models.Manifest, objects []string) []string {
	present := make(map[string]bool, len(objects))
	for _, name := range objects {
		present[name] = true
	}

	var missing []string
	check := func(ref string) {
		if !present[strings.TrimPrefix(ref, "/")] {
			missing = append(missing, ref)
		}
	}
	for _, image := range m.Images {
		check(image)
	}
	for _, video := range m.Videos {
		check(video.URL)
	}
	return missing
}

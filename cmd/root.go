package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"contest-site/pkg/config"
	"contest-site/pkg/manifest"
	"contest-site/pkg/models"
)

// Configuration flags
var (
	bucketName   string
	assetOrigin  string
	portNumber   string
	configPath   string
	manifestPath string
)

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "contest-site",
		Short: "Contest site serves the contest landing page once its media is preloaded",
		Long: `Contest site is a command line application that preloads the landing page posters and
hero videos from a web origin or Google Cloud Storage, and serves the page behind a loading overlay
until they are ready.`,
	}

	// Define persistent flags that will be available for all commands
	rootCmd.PersistentFlags().StringVarP(&bucketName, "bucket", "b", "", "Set the BUCKET_NAME (overrides environment variable)")
	rootCmd.PersistentFlags().StringVarP(&assetOrigin, "asset-origin", "o", "", "Set the ASSET_ORIGIN (overrides environment variable)")
	rootCmd.PersistentFlags().StringVarP(&portNumber, "port", "p", "", "Set the PORT (overrides environment variable)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Set the PRELOAD_CONFIG file (overrides environment variable)")
	rootCmd.PersistentFlags().StringVarP(&manifestPath, "manifest", "m", "", "Load the asset manifest from a JSON file instead of the built-in one")

	// Add commands to root
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newPreloadCmd())
	rootCmd.AddCommand(newListAssetsCmd())
	rootCmd.AddCommand(newCheckAssetsCmd())
	rootCmd.AddCommand(newExportCmd())

	return rootCmd
}

// LoadConfig loads configuration with respect to command line flags
func LoadConfig() (*config.Config, error) {
	// Set environment variables from flags if provided
	if bucketName != "" {
		os.Setenv("BUCKET_NAME", bucketName)
	}

	if assetOrigin != "" {
		os.Setenv("ASSET_ORIGIN", assetOrigin)
	}

	if portNumber != "" {
		os.Setenv("PORT", portNumber)
	}

	if configPath != "" {
		os.Setenv("PRELOAD_CONFIG", configPath)
	}

	// Load configuration from environment variables (potentially set above)
	return config.Load()
}

// LoadManifest returns the manifest named by --manifest, or the built-in one
func LoadManifest() (models.Manifest, error) {
	if manifestPath == "" {
		return manifest.Default(), nil
	}
	return manifest.Load(manifestPath)
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"contest-site/pkg/models"
	"contest-site/pkg/preload"
	"contest-site/pkg/services"
	"contest-site/pkg/session"
)

// Command options
var (
	strictMode bool
	maxWait    time.Duration
	readiness  string
)

// newPreloadCmd creates a new command that runs one preload session in the terminal
func newPreloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preload",
		Short: "Run one preload session and report on it",
		Long: `Preload the manifest once, the way the landing page does, printing every asset as it
completes, the moment the page would be revealed, and the final state.`,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := LoadConfig()
			if err != nil {
				log.Fatalf("Failed to load configuration: %v", err)
			}

			if cmd.Flags().Changed("strict") {
				cfg.Preload.EnforceMaxWait = !strictMode
			}
			if cmd.Flags().Changed("max-wait") {
				cfg.Preload.MaxWaitMs = int(maxWait / time.Millisecond)
			}
			if cmd.Flags().Changed("readiness") {
				cfg.Preload.ReadinessLevel = readiness
			}
			if err := cfg.Preload.Validate(); err != nil {
				log.Fatalf("Invalid preload options: %v", err)
			}

			m, err := LoadManifest()
			if err != nil {
				log.Fatalf("Failed to load manifest: %v", err)
			}
			if err := services.InitService(cfg); err != nil {
				log.Fatalf("Failed to initialize media service: %v", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			engine := newEngine(cfg, services.Default())
			controller := session.New(assetReporter{runner: engine}, m, newPolicy(cfg))
			runPreload(ctx, controller, m)
		},
	}

	// Add command-specific flags
	cmd.Flags().BoolVar(&strictMode, "strict", false, "Wait for every asset before revealing the page")
	cmd.Flags().DurationVar(&maxWait, "max-wait", 5*time.Second, "Longest wait for videos once images are loaded")
	cmd.Flags().StringVar(&readiness, "readiness", string(models.ReadinessCanPlay), "Video readiness level: can-play or metadata")

	return cmd
}

// assetReporter prints each asset result as the engine completes it
type assetReporter struct {
	runner session.Runner
}

func (a assetReporter) Run(ctx context.Context, m models.Manifest, cb preload.Callbacks) error {
	cb.OnAsset = printAssetResult
	return a.runner.Run(ctx, m, cb)
}

func printAssetResult(r models.AssetResult) {
	if r.Failed() {
		fmt.Printf("  FAIL %-5s %s (%s): %v\n", r.Kind, r.URL, r.Duration.Round(time.Millisecond), r.Err)
		return
	}
	fmt.Printf("  ok   %-5s %s (%s)\n", r.Kind, r.URL, r.Duration.Round(time.Millisecond))
}

// runPreload drives one session to completion and prints what the page would show
func runPreload(ctx context.Context, controller *session.Controller, m models.Manifest) {
	start := time.Now()
	fmt.Printf("Preloading %d images and %d videos\n", len(m.Images), len(m.Videos))
	fmt.Println("===============")

	finishBar := func() {}
	if isTerminal(os.Stderr) {
		bar := progressbar.NewOptions(100,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Preloading"),
			progressbar.OptionClearOnFinish(),
		)
		controller.Subscribe(func(state models.SessionState) {
			_ = bar.Set(int(state.Progress))
			if !state.IsLoading {
				bar.Describe("Revealed")
			}
		})
		finishBar = func() { _ = bar.Finish() }
	}

	controller.Start(ctx)
	if err := controller.Wait(ctx); err != nil {
		controller.Stop()
		log.Fatalf("Preload interrupted: %v", err)
	}

	state := controller.State()
	fmt.Printf("Page revealed after %s at %.0f%%\n", time.Since(start).Round(time.Millisecond), state.Progress)

	select {
	case <-controller.Finished():
	case <-ctx.Done():
		controller.Stop()
		fmt.Println("Interrupted while videos were still loading")
	}

	finishBar()
	state = controller.State()
	fmt.Println()
	fmt.Printf("Finished in %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("Loading: %t\n", state.IsLoading)
	fmt.Printf("Progress: %.0f%%\n", state.Progress)
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

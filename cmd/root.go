package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rtzll/yt2md/internal"
)

var (
	config *internal.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "yt2md",
	Short: "Turn YouTube videos into Markdown notes",
	Long: `yt2md collects recent videos from the channels in channels.yaml (or a
single --url), fetches their transcripts and rewrites them into structured
Markdown notes with Gemini, Perplexity or a local Ollama model.

Captions are used when YouTube has them. Otherwise the audio is downloaded
and transcribed with whisper. Notes are saved below SUMMARIES_PATH, recorded
in the video index and optionally uploaded to Google Drive or sent to Kindle.`,
	Example: `  # Process videos from the last 3 days for every configured channel
  yt2md

  # One category, one week back
  yt2md --category IT --days 7

  # A single channel within a category
  yt2md --category AI --channel "Two Minute Papers"

  # A single video in Polish, rendered in the terminal
  yt2md --url "https://www.youtube.com/watch?v=tAP1eZYEuKA" --language pl --print

  # Local model only, without touching the index
  yt2md --url tAP1eZYEuKA --ollama --skip-verification`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return nil
		}
		arg := args[0]
		if _, _, err := internal.ParseArg(arg); err == nil {
			return fmt.Errorf("to process a single video use: yt2md --url %s", arg)
		}
		if suggestions := cmd.SuggestionsFor(arg); len(suggestions) > 0 {
			return fmt.Errorf("unknown command %q. Did you mean: %s?", arg, strings.Join(suggestions, ", "))
		}
		return fmt.Errorf("unknown command %q. Use --help to see available commands", arg)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := internal.RunOptionsFrom(cmd)
		if err != nil {
			return err
		}
		if err := internal.ValidateWhisperRequirements(config); err != nil {
			return err
		}

		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		_, err = app.Run(cmd.Context(), opts)
		return err
	},
}

// loadConfig reads the configuration once flags are parsed
func loadConfig(cmd *cobra.Command) error {
	configFile, _ := cmd.Flags().GetString("config")
	config = internal.InitConfig(cmd.Context(), configFile)

	// Ensure XDG directories exist
	if err := internal.EnsureDirs(config.ConfigDir, config.DataDir, config.CacheDir); err != nil {
		return fmt.Errorf("creating XDG directories: %w", err)
	}

	// Ensure default config exists in XDG config directory
	if err := internal.EnsureDefaultConfig(config.ConfigDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to ensure default config: %v\n", err)
	}
	if err := internal.EnsureDefaultChannels(config.ChannelsFile); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to ensure default channel list: %v\n", err)
	}

	if err := internal.HandleOutputFlags(cmd, config); err != nil {
		return err
	}
	return internal.HandlePromptFlag(cmd, config)
}

func newApp(cmd *cobra.Command) (*internal.App, error) {
	return internal.NewApp(cmd.Context(), config)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Create a cancellable context for the entire application
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal. Finishing the current step and shutting down...")

		// Cancel the main context to signal all operations to stop
		cancel()

		// A second signal or a stuck step forces the exit
		select {
		case <-sigCh:
		case <-time.After(30 * time.Second):
			fmt.Fprintln(os.Stderr, "Warning: Shutdown timed out, forcing exit")
		}
		if config != nil {
			if err := internal.CleanupTempDir(config.TempDir); err != nil {
				fmt.Fprintf(os.Stderr, "Error cleaning up temporary files: %v\n", err)
			}
		}
		os.Exit(130)
	}()

	// Set context on root command
	rootCmd.SetContext(ctx)

	return rootCmd.Execute()
}

func init() {
	internal.AddRunFlags(rootCmd)
	internal.AddPromptFlag(rootCmd)
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output for debugging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().String("log-file", "", "Also write log output to this file")
	rootCmd.PersistentFlags().String("config", "", "Config file (default is $XDG_CONFIG_HOME/yt2md/config.toml)")
}

package cmd

import (
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/rtzll/yt2md/internal"
)

// cpCmd copies the transcript to the system clipboard instead of printing to stdout.
var cpCmd = &cobra.Command{
	Use:   "cp [YouTube URL or ID]",
	Short: "Copy the transcript of a YouTube video to the clipboard",
	Example: `  # Copy transcript to the clipboard
  yt2md cp "https://www.youtube.com/watch?v=tAP1eZYEuKA"
  yt2md cp tAP1eZYEuKA --language es`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		transcript, err := fetchTranscript(cmd, app, args[0])
		if err != nil {
			return err
		}

		if err := clipboard.WriteAll(transcript); err != nil {
			return fmt.Errorf("copying transcript to clipboard: %w", err)
		}

		app.UI().Successf("Transcript copied to clipboard (%d words)", internal.WordCount(transcript))
		return nil
	},
}

func init() {
	internal.AddLanguageFlag(cpCmd)
	rootCmd.AddCommand(cpCmd)
}

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rtzll/yt2md/internal"
)

// fetchTranscript resolves arg to a video and returns its transcript, using
// the audio fallback when the video has no usable captions
func fetchTranscript(cmd *cobra.Command, app *internal.App, arg string) (string, error) {
	youtubeURL, _, err := internal.ParseArg(arg)
	if err != nil {
		return "", err
	}
	language, _ := cmd.Flags().GetString("language")
	if err := internal.ValidateLanguage(language); err != nil {
		return "", err
	}

	spinner := app.UI().NewSpinner("Fetching transcript...")
	defer spinner.Finish()
	return app.Transcript(cmd.Context(), youtubeURL, language)
}

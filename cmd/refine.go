package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rtzll/yt2md/internal"
)

// refineCmd rewrites an existing transcript file into a note
var refineCmd = &cobra.Command{
	Use:   "refine [transcript file]",
	Short: "Rewrite a transcript file into a Markdown note",
	Long: `Refine runs the same strategy selection as a normal run on a transcript
that is already on disk. The category picks the configured strategy and the
language selects the output language of the note.`,
	Example: `  # Render the refined note in the terminal
  yt2md refine transcript.txt --category IT

  # Polish transcript, local model only, saved to a file
  yt2md refine talk.txt --language pl --ollama -o talk.md`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading transcript: %w", err)
		}
		category, _ := cmd.Flags().GetString("category")
		language, _ := cmd.Flags().GetString("language")
		if err := internal.ValidateLanguage(language); err != nil {
			return err
		}

		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		spinner := app.UI().NewSpinner("Refining transcript...")
		results, err := app.Refine(cmd.Context(), string(data), category,
			internal.OutputLanguageFor(language), internal.ForceFlagsFrom(cmd))
		spinner.Finish()
		if err != nil {
			return err
		}

		var notes []string
		for _, key := range []internal.ResultKey{internal.ResultCloud, internal.ResultLocal} {
			if out, ok := results[key]; ok {
				app.UI().Debugf("%s note by %s", key, out.ModelName)
				notes = append(notes, out.Text)
			}
		}
		content := strings.Join(notes, "\n\n---\n\n")

		outputFile, _ := cmd.Flags().GetString("output")
		if outputFile != "" {
			if err := os.WriteFile(outputFile, []byte(content), 0644); err != nil {
				return err
			}
			app.UI().Successf("Note saved to %s", outputFile)
			return nil
		}

		rendered, err := internal.RenderMarkdown(content)
		if err != nil {
			rendered = content
		}
		fmt.Println(rendered)
		return nil
	},
}

func init() {
	refineCmd.Flags().String("category", "", "Category used to pick the strategy (e.g. IT, AI)")
	refineCmd.Flags().StringP("output", "o", "", "Output file path (default: render to stdout)")
	internal.AddLanguageFlag(refineCmd)
	internal.AddForceFlags(refineCmd)
	internal.AddPromptFlag(refineCmd)
	rootCmd.AddCommand(refineCmd)
}

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rtzll/yt2md/internal"
)

// pathsCmd represents the paths command
var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show paths used by the application",
	Example: `  # Show all application paths
  yt2md paths`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Config directory: %s\n", config.ConfigDir)
		fmt.Printf("Data directory: %s\n", config.DataDir)
		fmt.Printf("Cache directory: %s\n", config.CacheDir)
		fmt.Printf("Temp directory: %s\n", config.TempDir)
		fmt.Printf("Transcripts directory: %s\n", config.TranscriptsDir)
		fmt.Printf("Channels file: %s\n", config.ChannelsFile)

		summaries := config.SummariesPath
		if summaries == "" {
			summaries = "(not set)"
		}
		fmt.Printf("Summaries directory: %s\n", summaries)

		switch {
		case config.IndexBackend == internal.IndexBackendPostgres:
			fmt.Println("Video index: postgres (DATABASE_URL)")
		case config.SummariesPath != "":
			fmt.Printf("Video index: %s\n", internal.NewFileIndex(config.SummariesPath).Path())
		}
		if config.LogFile != "" {
			fmt.Printf("Log file: %s\n", config.LogFile)
		}
		if config.DriveCredentials != "" {
			fmt.Printf("Drive credentials: %s\n", filepath.Clean(config.DriveCredentials))
		}
	},
}

func init() {
	rootCmd.AddCommand(pathsCmd)
}

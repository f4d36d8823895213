package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"

	"github.com/rtzll/yt2md/internal"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run an MCP server exposing transcripts and note refinement",
	Long: `Run a Model Context Protocol (MCP) server that exposes yt2md functionality as tools.

The MCP server provides three tools:
- get_youtube_metadata: Extract video metadata as formatted text
- get_transcript: Fetch captions or fall back to transcribing the audio
- refine_transcript: Rewrite a transcript into a structured Markdown note

Concurrent requests for the same video share one transcript fetch.

Transport options:
- stdio (default): Standard MCP transport via stdin/stdout
- http: HTTP transport on specified port (use --port to configure)`,
	Example: `  # Run MCP server with stdio transport (e.g. for Claude Desktop)
  yt2md mcp

  # Run MCP server with HTTP transport on port 8080
  yt2md mcp --transport=http --port=8080

  # Set up Claude Desktop integration
  yt2md mcp setup-claude`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		// MCP uses stdio protocol, so disable verbose logging
		config.Verbose = false
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		mcpServer := internal.NewMCPServer(app, version)
		if transport != "http" {
			app.UI().Debugf("Starting yt2md MCP server on stdio")
		}

		// Start the server (this will block until context is cancelled)
		return mcpServer.Start(cmd.Context(), transport, port)
	},
}

// setupClaudeCmd registers yt2md in Claude Desktop's config file
var setupClaudeCmd = &cobra.Command{
	Use:   "setup-claude",
	Short: "Configure Claude Desktop to use the yt2md MCP server",
	Long: `Register yt2md as an MCP server in claude_desktop_config.json.

Other servers and settings in the file are kept. The entry runs this binary
with "mcp" and passes the XDG base directories, the channel list and the
summaries path so the server sees the same configuration as the CLI.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		name, _ := cmd.Flags().GetString("name")
		path, err := claudeDesktopConfigPath()
		if err != nil {
			return fmt.Errorf("getting Claude Desktop config path: %w", err)
		}
		entry, err := mcpServerEntry(configFile)
		if err != nil {
			return err
		}
		if err := registerMCPServer(path, name, entry); err != nil {
			return err
		}
		fmt.Printf("Registered MCP server %q in %s\n", name, path)
		fmt.Println("Restart Claude Desktop to use it")
		return nil
	},
}

// mcpServerConfig is one entry under mcpServers
type mcpServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env,omitempty"`
}

func mcpServerEntry(configFile string) (mcpServerConfig, error) {
	execPath, err := os.Executable()
	if err != nil {
		return mcpServerConfig{}, fmt.Errorf("getting executable path: %w", err)
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return mcpServerConfig{}, fmt.Errorf("resolving executable path: %w", err)
	}

	args := []string{"mcp"}
	if configFile != "" {
		abs, err := filepath.Abs(configFile)
		if err != nil {
			return mcpServerConfig{}, err
		}
		args = append(args, "--config", abs)
	}

	// Claude Desktop starts servers with a minimal environment
	env := map[string]string{
		"XDG_DATA_HOME":   xdg.DataHome,
		"XDG_CONFIG_HOME": xdg.ConfigHome,
		"XDG_CACHE_HOME":  xdg.CacheHome,
	}
	if config.SummariesPath != "" {
		env["SUMMARIES_PATH"] = config.SummariesPath
	}
	if config.ChannelsFile != "" {
		env["YT2MD_CHANNELS_FILE"] = config.ChannelsFile
	}
	return mcpServerConfig{Command: execPath, Args: args, Env: env}, nil
}

// registerMCPServer adds or replaces one server entry. Unknown top-level
// keys and other servers are written back untouched.
func registerMCPServer(path, name string, entry mcpServerConfig) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("config for Claude Desktop not found at %s", path)
	}
	if err != nil {
		return fmt.Errorf("reading existing config: %w", err)
	}

	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing existing config: %w", err)
	}
	servers := map[string]json.RawMessage{}
	if raw, ok := doc["mcpServers"]; ok {
		if err := json.Unmarshal(raw, &servers); err != nil {
			return fmt.Errorf("parsing mcpServers: %w", err)
		}
	}

	if servers[name], err = json.Marshal(entry); err != nil {
		return err
	}
	if doc["mcpServers"], err = json.Marshal(servers); err != nil {
		return err
	}

	data, err = json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// claudeDesktopConfigPath returns the platform-specific config path for Claude Desktop
func claudeDesktopConfigPath() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(homeDir, "Library", "Application Support", "Claude", "claude_desktop_config.json"), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		return filepath.Join(appData, "Claude", "claude_desktop_config.json"), nil
	case "linux":
		return filepath.Join(xdg.ConfigHome, "Claude", "claude_desktop_config.json"), nil
	default:
		return "", fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

func init() {
	mcpCmd.Flags().String("transport", "stdio", "Transport protocol (stdio or http)")
	mcpCmd.Flags().Int("port", 8080, "Port for HTTP transport (only used with --transport=http)")
	setupClaudeCmd.Flags().String("name", "yt2md", "Server name in mcpServers")
	mcpCmd.AddCommand(setupClaudeCmd)
	rootCmd.AddCommand(mcpCmd)
}

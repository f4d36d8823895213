package internal

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// SupportedLanguages are the transcript languages accepted by --language
var SupportedLanguages = []string{"en", "pl", "es"}

// AddRunFlags adds the flags that select and process videos
func AddRunFlags(cmd *cobra.Command) {
	cmd.Flags().Int("days", 3, "Number of days to look back for videos")
	cmd.Flags().String("category", "", "Category of channels to process")
	cmd.Flags().String("url", "", "Process a specific YouTube video URL instead of channel videos")
	cmd.Flags().String("channel", "", "Process videos only from this channel (name or id)")
	cmd.Flags().Bool("skip-verification", false, "Skip checking if video was already processed and don't update index")
	cmd.Flags().Bool("kindle", false, "Send long notes to Kindle (or resend an existing note with --url)")
	cmd.Flags().Bool("print", false, "Render saved notes in the terminal")
	AddLanguageFlag(cmd)
	AddForceFlags(cmd)
}

// AddLanguageFlag adds --language
func AddLanguageFlag(cmd *cobra.Command) {
	cmd.Flags().String("language", "en", "Transcript language code ("+strings.Join(SupportedLanguages, ", ")+")")
}

// AddForceFlags adds the provider family switches
func AddForceFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("ollama", false, "Use only the local Ollama model")
	cmd.Flags().Bool("cloud", false, "Use only cloud models (wins over --ollama)")
}

// AddPromptFlag adds --prompt
func AddPromptFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("prompt", "p", "", "Custom prompt template (string or file path)")
}

// HandlePromptFlag copies an explicit --prompt into the config
func HandlePromptFlag(cmd *cobra.Command, config *Config) error {
	promptFlag := cmd.Flags().Lookup("prompt")
	if promptFlag == nil || !promptFlag.Changed {
		return nil
	}

	prompt, err := cmd.Flags().GetString("prompt")
	if err != nil {
		return fmt.Errorf("failed to get prompt flag: %w", err)
	}
	if prompt == "" {
		return nil
	}
	config.Prompt = prompt
	return nil
}

// HandleOutputFlags applies -v, -q, --log-file and --skip-verification to
// the config. Flags that a command does not define are ignored.
func HandleOutputFlags(cmd *cobra.Command, config *Config) error {
	flags := cmd.Flags()
	if f := flags.Lookup("verbose"); f != nil && f.Changed {
		verbose, err := flags.GetBool("verbose")
		if err != nil {
			return fmt.Errorf("failed to get verbose flag: %w", err)
		}
		config.Verbose = verbose
	}
	if f := flags.Lookup("quiet"); f != nil {
		quiet, err := flags.GetBool("quiet")
		if err != nil {
			return fmt.Errorf("failed to get quiet flag: %w", err)
		}
		config.Quiet = quiet
	}
	if f := flags.Lookup("log-file"); f != nil && f.Value.String() != "" {
		config.LogFile = expandHome(f.Value.String())
	}
	if f := flags.Lookup("skip-verification"); f != nil {
		skip, err := flags.GetBool("skip-verification")
		if err != nil {
			return fmt.Errorf("failed to get skip-verification flag: %w", err)
		}
		config.SkipVerification = skip
	}
	return nil
}

// ForceFlagsFrom reads --cloud and --ollama
func ForceFlagsFrom(cmd *cobra.Command) ForceFlags {
	cloud, _ := cmd.Flags().GetBool("cloud")
	local, _ := cmd.Flags().GetBool("ollama")
	return ForceFlags{CloudOnly: cloud, LocalOnly: local}
}

// ValidateLanguage rejects language codes the prompts are not written for
func ValidateLanguage(code string) error {
	for _, l := range SupportedLanguages {
		if code == l {
			return nil
		}
	}
	return fmt.Errorf("unsupported language %q (use one of %s)", code, strings.Join(SupportedLanguages, ", "))
}

// RunOptionsFrom builds RunOptions from the run flags
func RunOptionsFrom(cmd *cobra.Command) (RunOptions, error) {
	flags := cmd.Flags()
	opts := RunOptions{Force: ForceFlagsFrom(cmd)}
	opts.Days, _ = flags.GetInt("days")
	opts.URL, _ = flags.GetString("url")
	opts.Category, _ = flags.GetString("category")
	opts.Channel, _ = flags.GetString("channel")
	opts.Language, _ = flags.GetString("language")
	opts.Kindle, _ = flags.GetBool("kindle")
	opts.Print, _ = flags.GetBool("print")

	if opts.Days < 1 {
		return opts, fmt.Errorf("--days must be positive, got %d", opts.Days)
	}
	if err := ValidateLanguage(opts.Language); err != nil {
		return opts, err
	}
	if opts.URL != "" && opts.Channel != "" {
		return opts, fmt.Errorf("--url and --channel cannot be combined")
	}
	return opts, nil
}

// ValidateWhisperRequirements checks that the configured speech-to-text
// backend can run
func ValidateWhisperRequirements(config *Config) error {
	switch config.WhisperBackend {
	case "", WhisperBackendLocal:
		return nil
	case WhisperBackendOpenAI:
		if config.OpenAIAPIKey == "" {
			return fmt.Errorf("whisper backend %q needs OPENAI_API_KEY", WhisperBackendOpenAI)
		}
		return nil
	default:
		return fmt.Errorf("unknown whisper backend %q (use %s or %s)", config.WhisperBackend, WhisperBackendLocal, WhisperBackendOpenAI)
	}
}

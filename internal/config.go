package internal

import (
	"context"
	"embed"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/lrstanley/go-ytdlp"
	"github.com/spf13/viper"
)

// CommandRunner executes external commands
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// DefaultCommandRunner implements CommandRunner
type DefaultCommandRunner struct{}

func (r *DefaultCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

const appName = "yt2md"

// Index backends
const (
	IndexBackendFile     = "file"
	IndexBackendPostgres = "postgres"
)

// Speech-to-text backends for the audio fallback
const (
	WhisperBackendLocal  = "local"
	WhisperBackendOpenAI = "openai"
)

// Config holds application settings
type Config struct {
	// Credentials
	GeminiAPIKey     string
	PerplexityAPIKey string
	YouTubeAPIKey    string
	OpenAIAPIKey     string

	// LLM providers
	GeminiModel           string
	GeminiUseInteractions bool
	PerplexityModel       string
	OllamaModel           string
	OllamaBaseURL         string
	LLMTimeout            time.Duration
	Prompt                string

	// Output
	SummariesPath  string
	TranscriptsDir string
	ChannelsFile   string
	ChannelsMaxAge time.Duration

	// Enumeration
	Days              int
	MaxVideos         int
	MaxPages          int
	SkipShorts        bool
	ShortsMaxDuration time.Duration

	// Transcript acquisition
	TranscriptAttempts   int
	TranscriptRetryDelay time.Duration
	FailureThreshold     int
	CookiesFromBrowser   string
	Audio                AudioFallbackConfig
	WhisperBackend       string
	WhisperModel         string
	WhisperDevice        string

	// Delivery
	DriveFolderID    string
	DriveCredentials string
	KindleEmail      string
	KindleMinWords   int
	KindleAutoSend   bool
	SMTP             SMTPConfig

	// Index
	IndexBackend string
	DatabaseURL  string

	// Run switches set from command-line flags
	SkipVerification bool
	Verbose          bool
	Quiet            bool
	LogFile          string

	// Fixed XDG paths (not configurable)
	ConfigDir string
	DataDir   string
	CacheDir  string
	TempDir   string
}

//go:embed config.toml prompt.txt channels.yaml
var defaultFS embed.FS

// envBindings maps config keys to the environment variables that set them
// in addition to the YT2MD_ prefixed form
var envBindings = map[string]string{
	"gemini_api_key":                "GEMINI_API_KEY",
	"perplexity_api_key":            "PERPLEXITY_API_KEY",
	"youtube_api_key":               "YOUTUBE_API_KEY",
	"openai_api_key":                "OPENAI_API_KEY",
	"ollama.model":                  "OLLAMA_MODEL",
	"ollama.base_url":               "OLLAMA_BASE_URL",
	"summaries_path":                "SUMMARIES_PATH",
	"audio.enabled":                 "ENABLE_AUDIO_FALLBACK",
	"audio.download_delay_seconds":  "AUDIO_DOWNLOAD_DELAY_SECONDS",
	"audio.max_size_mb":             "MAX_AUDIO_SIZE_MB",
	"audio.min_duration_seconds":    "MIN_VIDEO_DURATION_SECONDS",
	"audio.retries_403":             "AUDIO_DOWNLOAD_403_RETRIES",
	"audio.retry_403_delay_seconds": "AUDIO_DOWNLOAD_403_RETRY_DELAY_SECONDS",
	"audio.cache_dir":               "AUDIO_CACHE_DIR",
	"cookies_from_browser":          "COOKIES_FROM_BROWSER",
	"whisper.model":                 "WHISPER_MODEL",
	"whisper.device":                "WHISPER_DEVICE",
	"transcript.failure_threshold":  "TRANSCRIPT_FAILURE_THRESHOLD",
	"drive.folder_id":               "GOOGLE_DRIVE_FOLDER_ID",
	"drive.credentials":             "GOOGLE_DRIVE_CREDENTIALS",
	"kindle.email":                  "KINDLE_EMAIL",
	"kindle.min_words":              "KINDLE_MIN_WORDS",
	"email.address":                 "EMAIL_ADDRESS",
	"email.password":                "EMAIL_PASSWORD",
	"email.smtp_server":             "EMAIL_SMTP_SERVER",
	"email.smtp_port":               "EMAIL_SMTP_PORT",
	"index.database_url":            "DATABASE_URL",
}

// ensureDefaultFile checks if a file exists in the specified directory
// and creates it from the embedded default if it doesn't exist
func ensureDefaultFile(configDir, embedFilename, description string) error {
	filePath := filepath.Join(configDir, embedFilename)

	if FileExists(filePath) {
		return nil
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	defaultContent, err := defaultFS.ReadFile(embedFilename)
	if err != nil {
		return fmt.Errorf("reading embedded default %s: %w", description, err)
	}

	if err := os.WriteFile(filePath, defaultContent, 0644); err != nil {
		return fmt.Errorf("writing default %s: %w", description, err)
	}

	fmt.Fprintf(os.Stderr, "Created default %s at %s\n", description, filePath)
	return nil
}

// EnsureDefaultConfig checks if a config file exists in the XDG config directory
// and creates it from the embedded default if it doesn't exist
func EnsureDefaultConfig(configDir string) error {
	return ensureDefaultFile(configDir, "config.toml", "configuration")
}

// EnsureDefaultChannels writes the embedded channels.yaml if the configured
// file does not exist yet
func EnsureDefaultChannels(channelsFile string) error {
	if FileExists(channelsFile) {
		return nil
	}
	if filepath.Base(channelsFile) == "channels.yaml" {
		return ensureDefaultFile(filepath.Dir(channelsFile), "channels.yaml", "channel list")
	}
	content, err := defaultFS.ReadFile("channels.yaml")
	if err != nil {
		return fmt.Errorf("reading embedded default channel list: %w", err)
	}
	if err := EnsureDirs(filepath.Dir(channelsFile)); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(channelsFile, content, 0644)
}

// ParseBool accepts true/1/yes/on in any case. Anything else is false.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

// InitConfig initializes Viper and loads configuration. configFile replaces
// the XDG lookup when set.
func InitConfig(ctx context.Context, configFile string) *Config {
	// Ensure yt-dlp is installed
	ytdlp.MustInstall(ctx, nil)
	return LoadConfig(newViper(configFile))
}

func newViper(configFile string) *viper.Viper {
	configDir := filepath.Join(xdg.ConfigHome, appName)

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(expandHome(configFile))
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("YT2MD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		_ = v.BindEnv(key, "YT2MD_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Warning: Error reading config file: %v\n", err)
		}
	}
	return v
}

func setDefaults(v *viper.Viper) {
	configDir := filepath.Join(xdg.ConfigHome, appName)
	dataDir := filepath.Join(xdg.DataHome, appName)
	cacheDir := filepath.Join(xdg.CacheHome, appName)

	v.SetDefault("gemini.model", DefaultGeminiModel)
	v.SetDefault("gemini.use_interactions", false)
	v.SetDefault("perplexity.model", DefaultPerplexityModel)
	v.SetDefault("ollama.model", DefaultOllamaModel)
	v.SetDefault("ollama.base_url", DefaultOllamaBaseURL)
	v.SetDefault("llm_timeout", 10*time.Minute)
	v.SetDefault("prompt", "")

	v.SetDefault("transcripts_dir", filepath.Join(dataDir, "transcripts"))
	v.SetDefault("channels_file", filepath.Join(configDir, "channels.yaml"))
	v.SetDefault("channels_max_age", DefaultChannelsMaxAge)

	v.SetDefault("days", 3)
	v.SetDefault("max_videos", DefaultMaxVideos)
	v.SetDefault("max_pages", DefaultMaxPages)
	v.SetDefault("skip_shorts", "false")
	v.SetDefault("shorts_max_duration", DefaultShortsMaxDuration)

	v.SetDefault("transcript.attempts", DefaultTranscriptAttempts)
	v.SetDefault("transcript.retry_delay", DefaultTranscriptRetryDelay)
	v.SetDefault("transcript.failure_threshold", DefaultFailureThreshold)

	v.SetDefault("audio.enabled", "true")
	v.SetDefault("audio.download_delay_seconds", int(DefaultAudioDownloadDelay/time.Second))
	v.SetDefault("audio.max_size_mb", DefaultMaxAudioSizeMB)
	v.SetDefault("audio.min_duration_seconds", int(DefaultMinVideoDuration/time.Second))
	v.SetDefault("audio.retries_403", DefaultAudio403Retries)
	v.SetDefault("audio.retry_403_delay_seconds", int(DefaultAudio403RetryDelay/time.Second))
	v.SetDefault("audio.cache_dir", filepath.Join(cacheDir, "audio"))

	v.SetDefault("whisper.backend", WhisperBackendLocal)
	v.SetDefault("whisper.model", DefaultWhisperModel)
	v.SetDefault("whisper.device", DefaultWhisperDevice)

	v.SetDefault("kindle.min_words", DefaultKindleMinWords)
	v.SetDefault("kindle.auto_send", "false")
	v.SetDefault("email.smtp_server", DefaultSMTPServer)
	v.SetDefault("email.smtp_port", DefaultSMTPPort)

	v.SetDefault("index.backend", IndexBackendFile)
	v.SetDefault("verbose", false)
}

// LoadConfig builds a Config from an initialized viper instance
func LoadConfig(v *viper.Viper) *Config {
	configDir := filepath.Join(xdg.ConfigHome, appName)
	dataDir := filepath.Join(xdg.DataHome, appName)
	cacheDir := filepath.Join(xdg.CacheHome, appName)

	config := &Config{
		GeminiAPIKey:     v.GetString("gemini_api_key"),
		PerplexityAPIKey: v.GetString("perplexity_api_key"),
		YouTubeAPIKey:    v.GetString("youtube_api_key"),
		OpenAIAPIKey:     v.GetString("openai_api_key"),

		GeminiModel:           v.GetString("gemini.model"),
		GeminiUseInteractions: ParseBool(v.GetString("gemini.use_interactions")),
		PerplexityModel:       v.GetString("perplexity.model"),
		OllamaModel:           v.GetString("ollama.model"),
		OllamaBaseURL:         v.GetString("ollama.base_url"),
		LLMTimeout:            v.GetDuration("llm_timeout"),
		Prompt:                v.GetString("prompt"),

		SummariesPath:  v.GetString("summaries_path"),
		TranscriptsDir: v.GetString("transcripts_dir"),
		ChannelsFile:   v.GetString("channels_file"),
		ChannelsMaxAge: v.GetDuration("channels_max_age"),

		Days:              v.GetInt("days"),
		MaxVideos:         v.GetInt("max_videos"),
		MaxPages:          v.GetInt("max_pages"),
		SkipShorts:        ParseBool(v.GetString("skip_shorts")),
		ShortsMaxDuration: v.GetDuration("shorts_max_duration"),

		TranscriptAttempts:   v.GetInt("transcript.attempts"),
		TranscriptRetryDelay: v.GetDuration("transcript.retry_delay"),
		FailureThreshold:     v.GetInt("transcript.failure_threshold"),
		CookiesFromBrowser:   strings.ToLower(v.GetString("cookies_from_browser")),
		Audio: AudioFallbackConfig{
			Enabled:          ParseBool(v.GetString("audio.enabled")),
			CacheDir:         v.GetString("audio.cache_dir"),
			DownloadDelay:    time.Duration(v.GetInt("audio.download_delay_seconds")) * time.Second,
			MaxAudioSizeMB:   v.GetInt("audio.max_size_mb"),
			MinVideoDuration: time.Duration(v.GetInt("audio.min_duration_seconds")) * time.Second,
			Retries403:       v.GetInt("audio.retries_403"),
			Retry403Delay:    time.Duration(v.GetInt("audio.retry_403_delay_seconds")) * time.Second,
		},
		WhisperBackend: strings.ToLower(v.GetString("whisper.backend")),
		WhisperModel:   v.GetString("whisper.model"),
		WhisperDevice:  v.GetString("whisper.device"),

		DriveFolderID:    v.GetString("drive.folder_id"),
		DriveCredentials: v.GetString("drive.credentials"),
		KindleEmail:      v.GetString("kindle.email"),
		KindleMinWords:   v.GetInt("kindle.min_words"),
		KindleAutoSend:   ParseBool(v.GetString("kindle.auto_send")),
		SMTP: SMTPConfig{
			From:     v.GetString("email.address"),
			Password: v.GetString("email.password"),
			Server:   v.GetString("email.smtp_server"),
			Port:     v.GetInt("email.smtp_port"),
		},

		IndexBackend: strings.ToLower(v.GetString("index.backend")),
		DatabaseURL:  v.GetString("index.database_url"),

		Verbose: v.GetBool("verbose"),

		ConfigDir: configDir,
		DataDir:   dataDir,
		CacheDir:  cacheDir,
		TempDir:   filepath.Join(cacheDir, "tmp"),
	}

	config.SummariesPath = expandHome(config.SummariesPath)
	config.TranscriptsDir = expandHome(config.TranscriptsDir)
	config.ChannelsFile = expandHome(config.ChannelsFile)
	config.DriveCredentials = expandHome(config.DriveCredentials)
	config.Audio.CacheDir = expandHome(config.Audio.CacheDir)

	if config.Verbose && v.ConfigFileUsed() != "" {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", v.ConfigFileUsed())
	}

	return config
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// ProviderSettings builds the LLM provider defaults from the config
func (c *Config) ProviderSettings() ProviderSettings {
	return ProviderSettings{
		Gemini: GeminiConfig{
			APIKey:          c.GeminiAPIKey,
			Model:           c.GeminiModel,
			UseInteractions: c.GeminiUseInteractions,
			Timeout:         c.LLMTimeout,
		},
		Perplexity: PerplexityConfig{
			APIKey:  c.PerplexityAPIKey,
			Model:   c.PerplexityModel,
			Timeout: c.LLMTimeout,
		},
		Ollama: OllamaConfig{
			BaseURL: c.OllamaBaseURL,
			Model:   c.OllamaModel,
			Timeout: c.LLMTimeout,
		},
	}
}

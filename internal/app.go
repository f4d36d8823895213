package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNoResult is returned when every LLM strategy failed for a video
var ErrNoResult = errors.New("no LLM produced a result")

// TranscriptProvider turns a video URL into transcript text
type TranscriptProvider interface {
	Acquire(ctx context.Context, videoURL, languageCode string) (string, error)
}

// Analyzer refines a transcript into one or more documents
type Analyzer interface {
	AnalyzeByLength(ctx context.Context, transcript, category, outputLanguage string, force ForceFlags) AnalysisResults
}

// VideoLister enumerates recent channel uploads and looks up single videos
type VideoLister interface {
	ListVideos(ctx context.Context, ch Channel, opts ListOptions) ([]Video, error)
	VideoDetails(ctx context.Context, videoID string) (Video, error)
	Flush()
}

// MetadataSource fetches video metadata without the Data API
type MetadataSource interface {
	Metadata(ctx context.Context, videoURL string) (*VideoMetadata, error)
}

// App holds the application state and dependencies
type App struct {
	config  *Config
	ui      UIManager
	out     io.Writer
	runID   string
	tempDir string
	logger  *FileLogger

	channels    *ChannelConfigStore
	transcripts TranscriptProvider
	failures    *FailureState
	analyzer    Analyzer
	lister      VideoLister
	metadata    MetadataSource
	index       VideoIndex
	notes       *NoteWriter
	uploader    NoteUploader
	kindle      *KindleSender

	closers []io.Closer
	now     func() time.Time
}

// AppOption customizes App creation
type AppOption func(*App)

// WithUI sets the console UI
func WithUI(ui UIManager) AppOption {
	return func(a *App) { a.ui = ui }
}

// WithOutput sets where rendered notes are printed
func WithOutput(w io.Writer) AppOption {
	return func(a *App) { a.out = w }
}

// WithTranscriptProvider replaces the caption/audio acquisition pipeline
func WithTranscriptProvider(p TranscriptProvider) AppOption {
	return func(a *App) { a.transcripts = p }
}

// WithAnalyzer replaces the LLM router
func WithAnalyzer(an Analyzer) AppOption {
	return func(a *App) { a.analyzer = an }
}

// WithVideoLister replaces the YouTube Data API lister
func WithVideoLister(l VideoLister) AppOption {
	return func(a *App) { a.lister = l }
}

// WithMetadataSource replaces the yt-dlp metadata lookup
func WithMetadataSource(m MetadataSource) AppOption {
	return func(a *App) { a.metadata = m }
}

// WithIndex replaces the processed-video index
func WithIndex(idx VideoIndex) AppOption {
	return func(a *App) { a.index = idx }
}

// WithUploader sets where saved notes are copied
func WithUploader(u NoteUploader) AppOption {
	return func(a *App) { a.uploader = u }
}

// WithKindle sets the Kindle sender
func WithKindle(k *KindleSender) AppOption {
	return func(a *App) { a.kindle = k }
}

// NewApp initializes the application. Components that are not replaced by
// options are built from config; optional ones (Drive, Kindle, the Data API
// lister) stay nil when their settings are missing.
func NewApp(ctx context.Context, config *Config, options ...AppOption) (*App, error) {
	app := &App{
		config:   config,
		out:      os.Stdout,
		runID:    uuid.NewString(),
		channels: NewChannelConfigStore(config.ChannelsFile, config.ChannelsMaxAge),
		notes:    NewNoteWriter(config.SummariesPath),
		now:      time.Now,
	}
	for _, option := range options {
		option(app)
	}
	if config.TempDir != "" {
		app.tempDir = filepath.Join(config.TempDir, app.runID)
	}

	if app.ui == nil {
		ui := NewUIManager(config.Verbose, config.Quiet)
		if config.LogFile != "" {
			logger, err := OpenFileLogger(config.LogFile, app.runID)
			if err != nil {
				return nil, err
			}
			app.logger = logger
			app.closers = append(app.closers, logger)
			ui.MirrorTo(logger)
		}
		app.ui = ui
	}

	if err := app.build(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

// build wires the default implementations of every component left unset
func (app *App) build(ctx context.Context) error {
	config := app.config
	cmdRunner := &DefaultCommandRunner{}
	youtube := NewYouTube(filepath.Join(config.CacheDir, "subs"), config.CookiesFromBrowser, app.ui)

	if app.metadata == nil {
		app.metadata = youtube
	}

	if app.index == nil {
		idx, err := app.openIndex(ctx)
		if err != nil {
			return err
		}
		app.index = idx
	}
	if app.index != nil && config.SkipVerification {
		app.index = readOnlyIndex{app.index}
	}

	if app.analyzer == nil {
		prompts, err := NewPromptManager(config.Prompt)
		if err != nil {
			return fmt.Errorf("loading prompt: %w", err)
		}
		factory := NewStrategyFactory(config.ProviderSettings(),
			WithStrategyUI(app.ui), WithPromptManager(prompts))
		app.analyzer = NewRouter(app.channels, factory, app.ui)
	}

	if app.transcripts == nil {
		app.failures = NewFailureState(config.FailureThreshold)
		fallback := NewAudioFallback(config.Audio, youtube, app.speechToText(cmdRunner), app.ui)
		var recorder StatusRecorder
		if app.index != nil {
			recorder = app.index
		}
		app.transcripts = NewTranscriptAcquirer(youtube, fallback, app.failures, recorder, app.ui, AcquirerConfig{
			MaxAttempts: config.TranscriptAttempts,
			RetryDelay:  config.TranscriptRetryDelay,
		})
	}

	if app.lister == nil && config.YouTubeAPIKey != "" {
		uploads := NewUploadsCache(filepath.Join(config.CacheDir, "uploads_playlists.json"))
		lister, err := NewChannelLister(ctx, config.YouTubeAPIKey, uploads, app.ui)
		if err != nil {
			return err
		}
		app.lister = lister
	}

	if app.uploader == nil && config.DriveCredentials != "" {
		uploader, err := NewDriveUploader(ctx, config.DriveCredentials, config.DriveFolderID)
		if err != nil {
			app.ui.Warnf("Google Drive upload disabled: %v", err)
		} else {
			app.uploader = uploader
		}
	}

	if app.kindle == nil && config.KindleEmail != "" {
		mailer, err := NewSMTPMailer(config.SMTP, app.ui)
		if err == nil {
			app.kindle, err = NewKindleSender(cmdRunner, mailer, config.KindleEmail, config.KindleMinWords, app.tempDir, app.ui)
		}
		if err != nil {
			app.ui.Debugf("Kindle delivery disabled: %v", err)
		}
	}
	return nil
}

func (app *App) openIndex(ctx context.Context) (VideoIndex, error) {
	switch app.config.IndexBackend {
	case IndexBackendPostgres:
		idx, err := OpenPostgresIndex(ctx, app.config.DatabaseURL)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, idx)
		return idx, nil
	case "", IndexBackendFile:
		if app.config.SummariesPath == "" {
			return nil, nil
		}
		return NewFileIndex(app.config.SummariesPath), nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", app.config.IndexBackend)
	}
}

func (app *App) speechToText(cmdRunner CommandRunner) SpeechToText {
	if app.config.WhisperBackend == WhisperBackendOpenAI {
		client := NewOpenAIClient(app.config.OpenAIAPIKey, "", app.config.LLMTimeout)
		return NewOpenAIWhisper(client, NewAudio(cmdRunner, app.tempDir, app.ui), WhisperLimit, app.ui)
	}
	return NewLocalWhisper(cmdRunner, app.config.WhisperModel, app.config.WhisperDevice, app.tempDir, app.ui)
}

// Close removes the run's temp directory and releases the log file and
// database connection
func (app *App) Close() error {
	var errs []error
	if err := CleanupTempDir(app.tempDir); err != nil {
		errs = append(errs, err)
	}
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	app.closers = nil
	return errors.Join(errs...)
}

// UI exposes the console for commands
func (app *App) UI() UIManager {
	return app.ui
}

// Transcript returns the cached transcript for a video or acquires and
// caches a new one
func (app *App) Transcript(ctx context.Context, videoURL, languageCode string) (string, error) {
	_, videoID, err := ParseArg(videoURL)
	if err != nil {
		return "", err
	}
	if text, ok := LoadTranscript(videoID, app.config.TranscriptsDir); ok {
		app.ui.Debugf("Found existing transcript for %s", videoID)
		return text, nil
	}

	text, err := app.transcripts.Acquire(ctx, videoURL, firstNonEmpty(languageCode, "en"))
	if err != nil {
		return "", err
	}
	if _, err := SaveTranscript(videoID, text, app.config.TranscriptsDir); err != nil {
		app.ui.Warnf("%v", err)
	}
	return text, nil
}

// Metadata gets video metadata through yt-dlp
func (app *App) Metadata(ctx context.Context, videoURL string) (*VideoMetadata, error) {
	return app.metadata.Metadata(ctx, videoURL)
}

// Refine runs the length/category router over a transcript
func (app *App) Refine(ctx context.Context, transcript, category, outputLanguage string, force ForceFlags) (AnalysisResults, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, ErrEmptyTranscript
	}
	results := app.analyzer.AnalyzeByLength(ctx, transcript, category, firstNonEmpty(outputLanguage, "English"), force)
	if len(results) == 0 {
		return nil, ErrNoResult
	}
	return results, nil
}

// ProcessOptions are the per-video switches of a run
type ProcessOptions struct {
	Force  ForceFlags
	Kindle bool
	Print  bool
}

// ProcessVideo acquires a transcript, refines it and saves every result.
// Drive upload and Kindle delivery are best-effort.
func (app *App) ProcessVideo(ctx context.Context, video Video, opts ProcessOptions) ([]SavedNote, error) {
	app.ui.Infof("Processing video: %s by %s with URL: %s", video.Title, video.Author, video.URL)

	transcript, err := app.Transcript(ctx, video.URL, video.LanguageCode)
	if err != nil {
		return nil, err
	}
	app.ui.Infof("Transcript length: %d words", WordCount(transcript))

	start := app.now()
	results := app.analyzer.AnalyzeByLength(ctx, transcript, video.Category, firstNonEmpty(video.OutputLanguage, "English"), opts.Force)
	elapsed := app.now().Sub(start)
	app.ui.Infof("Transcript analysis completed in %d min %.2f sec", int(elapsed.Minutes()), math.Mod(elapsed.Seconds(), 60))
	if len(results) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoResult, video.ID)
	}

	var saved []SavedNote
	for _, key := range []ResultKey{ResultCloud, ResultLocal} {
		out, ok := results[key]
		if !ok {
			continue
		}
		note := Note{
			Video:       video,
			Body:        out.Text,
			Description: out.Description,
			Suffix:      NoteSuffix(key, out.ModelName, app.config.SkipVerification),
		}
		path, err := app.notes.Save(note)
		if err != nil {
			if errors.Is(err, ErrNoSummariesPath) {
				return saved, err
			}
			app.ui.Errorf("Saving %s result for %s: %v", key, video.Title, err)
			continue
		}
		app.ui.Successf("Saved %s result to: %s", key, path)
		saved = append(saved, SavedNote{Path: path, Words: WordCount(out.Text)})

		if app.index != nil {
			if err := app.index.Record(ctx, video.ID, path); err != nil {
				app.ui.Warnf("Updating video index: %v", err)
			}
		}
		app.upload(ctx, path)

		if opts.Print {
			app.print(out.Text)
		}
	}

	if opts.Kindle || app.config.KindleAutoSend {
		app.deliver(ctx, saved)
	}
	return saved, nil
}

func (app *App) upload(ctx context.Context, path string) {
	if app.uploader == nil {
		return
	}
	id, err := app.uploader.Upload(ctx, path)
	if err != nil {
		app.ui.Warnf("Google Drive upload failed: %v", err)
		return
	}
	app.ui.Debugf("Uploaded %s to Google Drive (%s)", filepath.Base(path), id)
}

func (app *App) deliver(ctx context.Context, notes []SavedNote) {
	if len(notes) == 0 {
		return
	}
	if app.kindle == nil {
		app.ui.Warnf("Kindle delivery requested but kindle.email or email settings are missing")
		return
	}
	sent, failed := app.kindle.AutoSend(ctx, notes)
	if sent+failed > 0 {
		app.ui.Infof("Kindle delivery: %d sent, %d failed", sent, failed)
	}
}

func (app *App) print(body string) {
	rendered, err := RenderMarkdown(body)
	if err != nil {
		app.ui.Debugf("Rendering markdown: %v", err)
		rendered = body
	}
	fmt.Fprintln(app.out, rendered)
}

// RunOptions select which videos a run processes
type RunOptions struct {
	URL      string
	Language string
	Category string
	Channel  string
	Days     int
	Force    ForceFlags
	Kindle   bool
	Print    bool
}

// RunReport summarizes a finished run
type RunReport struct {
	Videos  int
	Failed  int
	Saved   []SavedNote
	Elapsed time.Duration
}

// Run collects videos and processes them one at a time. A failing video is
// logged and skipped.
func (app *App) Run(ctx context.Context, opts RunOptions) (RunReport, error) {
	start := app.now()
	report := RunReport{}

	if opts.URL != "" && opts.Kindle && app.kindle != nil && app.index != nil && !app.config.SkipVerification {
		if _, videoID, err := ParseArg(opts.URL); err == nil {
			sent, err := app.kindle.ResendLatest(ctx, app.index, videoID)
			if err != nil {
				app.ui.Warnf("Resending existing note to Kindle: %v", err)
			}
			if sent {
				app.ui.Successf("Sent existing note for %s to Kindle", videoID)
				return report, nil
			}
		}
	}

	videos, err := app.CollectVideos(ctx, opts)
	if err != nil {
		return report, err
	}
	report.Videos = len(videos)
	if len(videos) == 0 {
		app.ui.Infof("No videos to process.")
		return report, nil
	}
	app.printSummary(videos)

	bar := app.ui.NewProgressBar(len(videos), "Processing videos")
	popts := ProcessOptions{Force: opts.Force, Kindle: opts.Kindle, Print: opts.Print}
	for _, video := range videos {
		if ctx.Err() != nil {
			break
		}
		saved, err := app.ProcessVideo(ctx, video, popts)
		report.Saved = append(report.Saved, saved...)
		if err != nil {
			report.Failed++
			app.ui.Errorf("Error processing video %s: %v", video.Title, err)
			if errors.Is(err, ErrNoSummariesPath) {
				bar.Finish()
				return report, err
			}
		}
		bar.Add(1)
	}
	bar.Finish()

	report.Elapsed = app.now().Sub(start)
	app.ui.Successf("Processed %d videos in %s, saved %d files",
		report.Videos, report.Elapsed.Round(time.Second), len(report.Saved))
	return report, ctx.Err()
}

// CollectVideos resolves the run's inputs into videos: a single URL, one
// channel, a category, or every configured channel
func (app *App) CollectVideos(ctx context.Context, opts RunOptions) ([]Video, error) {
	var processed map[string]bool
	if app.index != nil && !app.config.SkipVerification {
		ids, err := app.index.ProcessedIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading video index: %w", err)
		}
		processed = ids
	}

	if opts.URL != "" {
		return app.collectURL(ctx, opts, processed)
	}

	var channels []Channel
	var err error
	switch {
	case opts.Category != "":
		channels, err = app.channels.ChannelsByCategory(opts.Category)
		if err != nil {
			return nil, err
		}
		if len(channels) == 0 {
			app.ui.Warnf("No channels found for category: %s", opts.Category)
			return nil, nil
		}
	case opts.Channel == "":
		app.ui.Infof("Processing videos from all channels")
		channels, err = app.channels.AllChannels()
		if err != nil {
			return nil, err
		}
	}
	if opts.Channel != "" {
		channels, err = app.filterChannel(channels, opts)
		if err != nil || len(channels) == 0 {
			return nil, err
		}
	}

	if app.lister == nil {
		return nil, ErrMissingYouTubeKey
	}

	listOpts := ListOptions{
		Days:              firstPositive(opts.Days, app.config.Days),
		Processed:         processed,
		MaxPages:          app.config.MaxPages,
		MaxVideos:         app.config.MaxVideos,
		SkipShorts:        app.config.SkipShorts,
		ShortsMaxDuration: app.config.ShortsMaxDuration,
	}
	var videos []Video
	defer app.lister.Flush()
	for _, ch := range channels {
		if ctx.Err() != nil {
			return videos, ctx.Err()
		}
		app.ui.Debugf("Getting videos from channel: %s", ch.Name)
		found, err := app.lister.ListVideos(ctx, ch, listOpts)
		if err != nil {
			app.ui.Errorf("Listing videos for %s: %v", ch.Name, err)
			continue
		}
		app.ui.Debugf("Found %d videos from %s in the last %d days", len(found), ch.Name, listOpts.Days)
		videos = append(videos, found...)
	}
	return videos, nil
}

// filterChannel narrows channels to the one named by opts.Channel. With no
// category given the whole configuration is searched.
func (app *App) filterChannel(channels []Channel, opts RunOptions) ([]Channel, error) {
	if opts.Category == "" {
		ch, err := app.channels.FindChannel(opts.Channel)
		if err != nil {
			return nil, err
		}
		app.ui.Infof("Processing channel: %s", ch.Name)
		return []Channel{ch}, nil
	}
	for _, ch := range channels {
		if strings.EqualFold(ch.Name, opts.Channel) || ch.ID == opts.Channel {
			app.ui.Infof("Processing channel: %s in %s category...", ch.Name, opts.Category)
			return []Channel{ch}, nil
		}
	}
	app.ui.Warnf("Channel '%s' not found in category '%s'", opts.Channel, opts.Category)
	return nil, nil
}

func (app *App) collectURL(ctx context.Context, opts RunOptions, processed map[string]bool) ([]Video, error) {
	videoURL, videoID, err := ParseArg(opts.URL)
	if err != nil {
		return nil, err
	}
	app.ui.Infof("Processing single video URL: %s", videoURL)
	if processed[videoID] {
		app.ui.Warnf("Video %s was already processed", videoID)
		return nil, nil
	}

	video, err := app.videoDetails(ctx, videoURL, videoID)
	if err != nil {
		return nil, fmt.Errorf("getting video details: %w", err)
	}
	video.LanguageCode = firstNonEmpty(opts.Language, "en")
	video.OutputLanguage = OutputLanguageFor(video.LanguageCode)
	video.Category = app.channels.CanonicalCategory(opts.Category)
	return []Video{video}, nil
}

// videoDetails prefers the Data API and falls back to yt-dlp metadata
func (app *App) videoDetails(ctx context.Context, videoURL, videoID string) (Video, error) {
	if app.lister != nil {
		video, err := app.lister.VideoDetails(ctx, videoID)
		if err == nil {
			return video, nil
		}
		app.ui.Debugf("YouTube API lookup failed, using yt-dlp: %v", err)
	}
	meta, err := app.metadata.Metadata(ctx, videoURL)
	if err != nil {
		return Video{}, err
	}
	return Video{
		ID:        videoID,
		URL:       VideoURL(videoID),
		Title:     meta.Title,
		Author:    meta.Author(),
		Published: meta.Published(),
	}, nil
}

// printSummary lists the videos about to be processed by category and author
func (app *App) printSummary(videos []Video) {
	byCategory := map[string]map[string][]Video{}
	for _, v := range videos {
		category := firstNonEmpty(v.Category, "Uncategorized")
		if byCategory[category] == nil {
			byCategory[category] = map[string][]Video{}
		}
		byCategory[category][v.Author] = append(byCategory[category][v.Author], v)
	}

	rule := strings.Repeat("=", 60)
	app.ui.Infof("%s", rule)
	app.ui.Infof("SUMMARY OF VIDEOS TO PROCESS:")
	app.ui.Infof("%s", rule)
	for _, category := range sortedKeys(byCategory) {
		authors := byCategory[category]
		count := 0
		for _, vs := range authors {
			count += len(vs)
		}
		app.ui.Infof("Category: %s (%d videos)", category, count)
		for _, author := range sortedKeys(authors) {
			app.ui.Infof("  Author: %s (%d videos)", author, len(authors[author]))
			for i, v := range authors[author] {
				app.ui.Infof("    %d. %s", i+1, v.Title)
				app.ui.Infof("       %s", v.URL)
			}
		}
	}
	app.ui.Infof("%s", rule)
	app.ui.Infof("Total videos to process: %d", len(videos))
	app.ui.Infof("%s", rule)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

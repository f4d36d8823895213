package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// Enumeration defaults
const (
	DefaultMaxPages          = 100
	DefaultMaxVideos         = 10
	DefaultShortsMaxDuration = 120 * time.Second
	DefaultAPIRequestSpacing = 200 * time.Millisecond

	pageSize = 50
)

// ErrMissingYouTubeKey is returned when channel enumeration has no API key
var ErrMissingYouTubeKey = errors.New("YOUTUBE_API_KEY is not set")

// UploadsCache maps channel ids to their uploads playlist id. It is loaded
// lazily and written back only when new entries were added.
type UploadsCache struct {
	path string

	mu      sync.Mutex
	loaded  bool
	dirty   bool
	entries map[string]string
}

// NewUploadsCache creates a cache backed by a JSON file
func NewUploadsCache(path string) *UploadsCache {
	return &UploadsCache{path: path, entries: map[string]string{}}
}

func (c *UploadsCache) load() error {
	if c.loaded {
		return nil
	}
	c.loaded = true
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading uploads cache: %w", err)
	}
	if err := json.Unmarshal(data, &c.entries); err != nil {
		return fmt.Errorf("parsing uploads cache: %w", err)
	}
	if c.entries == nil {
		c.entries = map[string]string{}
	}
	return nil
}

// Get returns the cached playlist id for a channel
func (c *UploadsCache) Get(channelID string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.load(); err != nil {
		return "", false, err
	}
	id, ok := c.entries[channelID]
	return id, ok, nil
}

// Put stores a playlist id
func (c *UploadsCache) Put(channelID, playlistID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.load()
	if c.entries[channelID] == playlistID {
		return
	}
	c.entries[channelID] = playlistID
	c.dirty = true
}

// Save writes the cache if anything changed since it was loaded
func (c *UploadsCache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}
	if err := EnsureDirs(filepath.Dir(c.path)); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding uploads cache: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("writing uploads cache: %w", err)
	}
	c.dirty = false
	return nil
}

// ListOptions controls which videos ListVideos returns
type ListOptions struct {
	Days              int
	Processed         map[string]bool
	MaxPages          int
	MaxVideos         int
	SkipShorts        bool
	ShortsMaxDuration time.Duration
}

func (o ListOptions) withDefaults() ListOptions {
	if o.Days <= 0 {
		o.Days = 3
	}
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.MaxVideos <= 0 {
		o.MaxVideos = DefaultMaxVideos
	}
	if o.ShortsMaxDuration <= 0 {
		o.ShortsMaxDuration = DefaultShortsMaxDuration
	}
	return o
}

// ChannelLister enumerates recent channel uploads through the YouTube Data API
type ChannelLister struct {
	service *youtube.Service
	uploads *UploadsCache
	limiter *rate.Limiter
	ui      UIManager
	now     func() time.Time
}

// NewChannelLister creates a lister. Extra client options are passed to the
// YouTube service (tests point it at a local endpoint).
func NewChannelLister(ctx context.Context, apiKey string, uploads *UploadsCache, ui UIManager, opts ...option.ClientOption) (*ChannelLister, error) {
	if apiKey == "" {
		return nil, ErrMissingYouTubeKey
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &ChannelLister{
		service: service,
		uploads: uploads,
		limiter: rate.NewLimiter(rate.Every(DefaultAPIRequestSpacing), 1),
		ui:      ui,
		now:     time.Now,
	}, nil
}

// SetRequestSpacing changes the minimum gap between API calls
func (l *ChannelLister) SetRequestSpacing(d time.Duration) {
	if d <= 0 {
		l.limiter = rate.NewLimiter(rate.Inf, 1)
		return
	}
	l.limiter = rate.NewLimiter(rate.Every(d), 1)
}

func (l *ChannelLister) wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// ListVideos returns unprocessed videos published by ch within the window,
// newest first. API errors end enumeration early and return what was found.
func (l *ChannelLister) ListVideos(ctx context.Context, ch Channel, opts ListOptions) ([]Video, error) {
	opts = opts.withDefaults()
	l.ui.Debugf("Fetching videos from %s (%s) for last %d days (max %d videos)", ch.Name, ch.ID, opts.Days, opts.MaxVideos)

	since := l.now().UTC().AddDate(0, 0, -opts.Days)

	var (
		videos []Video
		calls  int
		err    error
	)
	playlistID, perr := l.uploadsPlaylist(ctx, ch.ID)
	if perr != nil {
		l.ui.Warnf("Falling back to search API for channel %s: %v", ch.Name, perr)
		videos, calls, err = l.collectViaSearch(ctx, ch, since, opts)
	} else {
		videos, calls, err = l.collectFromPlaylist(ctx, ch, playlistID, since, opts)
	}
	if err != nil {
		return nil, err
	}

	l.ui.Debugf("Made %d API calls for channel %s, collected %d videos", calls, ch.Name, len(videos))
	return videos, nil
}

// Flush writes newly resolved uploads playlist ids to the cache file. It is
// called once after every channel has been listed.
func (l *ChannelLister) Flush() {
	if l.uploads == nil {
		return
	}
	if err := l.uploads.Save(); err != nil {
		l.ui.Warnf("Failed to persist uploads playlist cache: %v", err)
	}
}

func (l *ChannelLister) uploadsPlaylist(ctx context.Context, channelID string) (string, error) {
	if l.uploads != nil {
		id, ok, err := l.uploads.Get(channelID)
		if err != nil {
			l.ui.Warnf("%v", err)
		}
		if ok {
			return id, nil
		}
	}

	if err := l.wait(ctx); err != nil {
		return "", err
	}
	resp, err := l.service.Channels.List([]string{"contentDetails"}).
		Id(channelID).
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("resolving uploads playlist: %w", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].ContentDetails == nil ||
		resp.Items[0].ContentDetails.RelatedPlaylists == nil ||
		resp.Items[0].ContentDetails.RelatedPlaylists.Uploads == "" {
		return "", fmt.Errorf("no uploads playlist for channel %s", channelID)
	}

	id := resp.Items[0].ContentDetails.RelatedPlaylists.Uploads
	if l.uploads != nil {
		l.uploads.Put(channelID, id)
	}
	return id, nil
}

type candidate struct {
	id        string
	title     string
	published time.Time
}

func (l *ChannelLister) collectFromPlaylist(ctx context.Context, ch Channel, playlistID string, since time.Time, opts ListOptions) ([]Video, int, error) {
	var videos []Video
	pageToken := ""
	calls := 0

	for page := 1; page <= opts.MaxPages && len(videos) < opts.MaxVideos; page++ {
		if err := l.wait(ctx); err != nil {
			return nil, calls, err
		}
		l.ui.Debugf("Fetching playlistItems page %d for %s", page, ch.Name)
		resp, err := l.service.PlaylistItems.List([]string{"snippet", "contentDetails"}).
			PlaylistId(playlistID).
			MaxResults(pageSize).
			PageToken(pageToken).
			Context(ctx).
			Do()
		calls++
		if err != nil {
			if ctx.Err() != nil {
				return nil, calls, ctx.Err()
			}
			l.ui.Errorf("YouTube API error (playlistItems) for channel %s: %v", ch.Name, err)
			break
		}
		if len(resp.Items) == 0 {
			break
		}

		var staged []candidate
		allOlder := true
		for _, item := range resp.Items {
			if item.ContentDetails == nil || item.ContentDetails.VideoId == "" {
				continue
			}
			publishedRaw := item.ContentDetails.VideoPublishedAt
			title := ""
			if item.Snippet != nil {
				title = item.Snippet.Title
				if publishedRaw == "" {
					publishedRaw = item.Snippet.PublishedAt
				}
			}
			c, ok := l.stage(item.ContentDetails.VideoId, title, publishedRaw, since, opts)
			if c.published.IsZero() {
				continue
			}
			if !c.published.Before(since) {
				allOlder = false
			}
			if ok {
				staged = append(staged, c)
			}
		}

		videos = l.accept(ctx, ch, staged, videos, opts, &calls)
		if len(videos) >= opts.MaxVideos {
			break
		}
		if resp.NextPageToken == "" {
			break
		}
		if allOlder {
			l.ui.Debugf("All items on page %d for %s are older than the window, stopping", page, ch.Name)
			break
		}
		pageToken = resp.NextPageToken
	}
	return videos, calls, nil
}

func (l *ChannelLister) collectViaSearch(ctx context.Context, ch Channel, since time.Time, opts ListOptions) ([]Video, int, error) {
	var videos []Video
	pageToken := ""
	calls := 0

	for page := 1; page <= opts.MaxPages && len(videos) < opts.MaxVideos; page++ {
		if err := l.wait(ctx); err != nil {
			return nil, calls, err
		}
		resp, err := l.service.Search.List([]string{"snippet"}).
			ChannelId(ch.ID).
			Type("video").
			Order("date").
			PublishedAfter(since.Format(time.RFC3339)).
			MaxResults(pageSize).
			PageToken(pageToken).
			Context(ctx).
			Do()
		calls++
		if err != nil {
			if ctx.Err() != nil {
				return nil, calls, ctx.Err()
			}
			l.ui.Errorf("YouTube API error (search) for channel %s: %v", ch.Name, err)
			break
		}
		if len(resp.Items) == 0 {
			break
		}

		var staged []candidate
		for _, item := range resp.Items {
			if item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
				continue
			}
			if c, ok := l.stage(item.Id.VideoId, item.Snippet.Title, item.Snippet.PublishedAt, since, opts); ok {
				staged = append(staged, c)
			}
		}

		videos = l.accept(ctx, ch, staged, videos, opts, &calls)
		if len(videos) >= opts.MaxVideos || resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	return videos, calls, nil
}

// stage parses one item and reports whether it is inside the window and not
// yet processed. The returned candidate has a zero date when unparsable.
func (l *ChannelLister) stage(videoID, title, publishedRaw string, since time.Time, opts ListOptions) (candidate, bool) {
	published, err := time.Parse(time.RFC3339, publishedRaw)
	if err != nil {
		l.ui.Debugf("Could not parse publish date %q for video %s", publishedRaw, videoID)
		return candidate{}, false
	}
	c := candidate{id: videoID, title: firstNonEmpty(title, "(untitled video)"), published: published}
	if published.Before(since) {
		return c, false
	}
	if opts.Processed[videoID] {
		l.ui.Debugf("Video %s already processed, skipping", videoID)
		return c, false
	}
	return c, true
}

// accept applies the shorts and title filters and the per-channel cap
func (l *ChannelLister) accept(ctx context.Context, ch Channel, staged []candidate, videos []Video, opts ListOptions, calls *int) []Video {
	var durations map[string]time.Duration
	if opts.SkipShorts && len(staged) > 0 {
		ids := make([]string, len(staged))
		for i, c := range staged {
			ids[i] = c.id
		}
		var n int
		durations, n = l.videoDurations(ctx, ids)
		*calls += n
	}

	for _, c := range staged {
		if len(videos) >= opts.MaxVideos {
			l.ui.Debugf("Reached maximum videos limit (%d) for channel %s", opts.MaxVideos, ch.Name)
			break
		}
		if d, ok := durations[c.id]; ok && d <= opts.ShortsMaxDuration {
			l.ui.Debugf("Skipping short video %q (%s)", c.title, d)
			continue
		}
		if !ch.MatchesTitle(c.title) {
			l.ui.Debugf("Skipping %q, no title filter matches", c.title)
			continue
		}
		videos = append(videos, Video{
			ID:             c.id,
			URL:            VideoURL(c.id),
			Title:          c.title,
			Author:         ch.Name,
			Published:      c.published,
			LanguageCode:   ch.LanguageCode,
			OutputLanguage: ch.OutputLanguage,
			Category:       ch.Category,
		})
	}
	return videos
}

// videoDurations looks durations up in batches of 50. Videos whose duration
// is unknown are missing from the result.
func (l *ChannelLister) videoDurations(ctx context.Context, ids []string) (map[string]time.Duration, int) {
	durations := make(map[string]time.Duration, len(ids))
	calls := 0
	for start := 0; start < len(ids); start += pageSize {
		batch := ids[start:min(start+pageSize, len(ids))]
		if err := l.wait(ctx); err != nil {
			break
		}
		resp, err := l.service.Videos.List([]string{"contentDetails"}).Id(batch...).Context(ctx).Do()
		calls++
		if err != nil {
			l.ui.Errorf("YouTube API error fetching durations: %v", err)
			break
		}
		for _, v := range resp.Items {
			if v.ContentDetails == nil {
				continue
			}
			// live and upcoming entries report P0D; their length is unknown
			if d, ok := ParseISO8601Duration(v.ContentDetails.Duration); ok && d > 0 {
				durations[v.Id] = d
			}
		}
	}
	return durations, calls
}

// VideoDetails fetches title, channel and publish date of a single video
func (l *ChannelLister) VideoDetails(ctx context.Context, videoID string) (Video, error) {
	if err := l.wait(ctx); err != nil {
		return Video{}, err
	}
	resp, err := l.service.Videos.List([]string{"snippet"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return Video{}, fmt.Errorf("fetching video details: %w", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet == nil {
		return Video{}, fmt.Errorf("video %s not found", videoID)
	}
	s := resp.Items[0].Snippet
	published, _ := time.Parse(time.RFC3339, s.PublishedAt)
	return Video{
		ID:        videoID,
		URL:       VideoURL(videoID),
		Title:     s.Title,
		Author:    s.ChannelTitle,
		Published: published,
	}, nil
}

var iso8601Duration = regexp.MustCompile(`^P(?:(\d+)D)?T?(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// ParseISO8601Duration parses YouTube durations such as PT1H2M3S or P1DT2H
func ParseISO8601Duration(s string) (time.Duration, bool) {
	if s == "" || s == "P" || s == "PT" {
		return 0, false
	}
	m := iso8601Duration.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
	var d time.Duration
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, false
		}
		d += time.Duration(n) * unit
	}
	return d, true
}

package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/option"
)

type fakeYouTubeAPI struct {
	mu       sync.Mutex
	calls    map[string]int
	channels any
	pages    map[string]any // keyed by page token
	search   any
	videos   map[string]string // id -> ISO duration
}

func (f *fakeYouTubeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	endpoint := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	f.calls[endpoint]++

	var body any
	switch endpoint {
	case "channels":
		body = f.channels
	case "playlistItems":
		body = f.pages[r.URL.Query().Get("pageToken")]
	case "search":
		body = f.search
	case "videos":
		var items []map[string]any
		for _, id := range r.URL.Query()["id"] {
			for _, one := range strings.Split(id, ",") {
				if d, ok := f.videos[one]; ok {
					items = append(items, map[string]any{
						"id":             one,
						"contentDetails": map[string]any{"duration": d},
						"snippet": map[string]any{
							"title":        "Title " + one,
							"channelTitle": "Some Channel",
							"publishedAt":  "2025-06-01T08:00:00Z",
						},
					})
				}
			}
		}
		body = map[string]any{"items": items}
	}
	if body == nil {
		http.Error(w, `{"error":{"code":403,"message":"forbidden"}}`, http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeYouTubeAPI) count(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[endpoint]
}

func playlistItem(id, title, published string) map[string]any {
	return map[string]any{
		"snippet":        map[string]any{"title": title, "publishedAt": "2000-01-01T00:00:00Z"},
		"contentDetails": map[string]any{"videoId": id, "videoPublishedAt": published},
	}
}

var listerNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func newTestLister(t *testing.T, api *fakeYouTubeAPI) (*ChannelLister, *UploadsCache) {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	cache := NewUploadsCache(filepath.Join(t.TempDir(), "uploads.json"))
	lister, err := NewChannelLister(context.Background(), "key", cache, quietUI(),
		option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatal(err)
	}
	lister.SetRequestSpacing(0)
	lister.now = func() time.Time { return listerNow }
	return lister, cache
}

var testChannel = Channel{
	ID:             "UC1",
	Name:           "Chan",
	LanguageCode:   "pl",
	OutputLanguage: "Polish",
	Category:       "Tech",
}

func TestChannelLister_Playlist(t *testing.T) {
	api := &fakeYouTubeAPI{
		channels: map[string]any{"items": []any{map[string]any{
			"id":             "UC1",
			"contentDetails": map[string]any{"relatedPlaylists": map[string]any{"uploads": "UU1"}},
		}}},
		pages: map[string]any{
			"": map[string]any{
				"nextPageToken": "p2",
				"items": []any{
					playlistItem("new00000001", "Newest", "2025-06-10T08:00:00Z"),
					playlistItem("done0000001", "Already done", "2025-06-09T08:00:00Z"),
					map[string]any{"contentDetails": map[string]any{}},
					playlistItem("bad00000001", "Bad date", "yesterday"),
				},
			},
			"p2": map[string]any{
				"nextPageToken": "p3",
				"items": []any{
					playlistItem("mid00000001", "Middle", "2025-06-08T08:00:00Z"),
					playlistItem("old00000001", "Old", "2025-05-01T08:00:00Z"),
				},
			},
			"p3": map[string]any{
				"nextPageToken": "p4",
				"items": []any{playlistItem("old00000002", "Older", "2025-04-01T08:00:00Z")},
			},
		},
	}
	lister, cache := newTestLister(t, api)

	videos, err := lister.ListVideos(context.Background(), testChannel, ListOptions{
		Days:      7,
		Processed: map[string]bool{"done0000001": true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(videos) != 2 || videos[0].ID != "new00000001" || videos[1].ID != "mid00000001" {
		t.Fatalf("videos = %+v", videos)
	}
	v := videos[0]
	if v.Author != "Chan" || v.Category != "Tech" || v.LanguageCode != "pl" || v.URL != VideoURL("new00000001") {
		t.Errorf("channel fields not applied: %+v", v)
	}
	if !v.Published.Equal(time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("videoPublishedAt should win over snippet date, got %v", v.Published)
	}
	if got := api.count("playlistItems"); got != 3 {
		t.Errorf("playlistItems calls = %d, want 3 (stop on an all-old page)", got)
	}

	// the uploads playlist is cached once listing is flushed
	if FileExists(cache.path) {
		t.Error("uploads cache written before Flush")
	}
	lister.Flush()
	if id, ok, _ := NewUploadsCache(cache.path).Get("UC1"); !ok || id != "UU1" {
		t.Errorf("uploads cache = %q, %v", id, ok)
	}
	if _, err := lister.ListVideos(context.Background(), testChannel, ListOptions{Days: 7}); err != nil {
		t.Fatal(err)
	}
	if got := api.count("channels"); got != 1 {
		t.Errorf("channels calls = %d, want cached lookup", got)
	}
}

func TestChannelLister_MaxVideosAndFilters(t *testing.T) {
	api := &fakeYouTubeAPI{
		channels: map[string]any{"items": []any{map[string]any{
			"contentDetails": map[string]any{"relatedPlaylists": map[string]any{"uploads": "UU1"}},
		}}},
		pages: map[string]any{"": map[string]any{"items": []any{
			playlistItem("short000001", "Bitcoin short", "2025-06-10T08:00:00Z"),
			playlistItem("btc00000001", "Bitcoin update", "2025-06-10T07:00:00Z"),
			playlistItem("cook0000001", "Cooking", "2025-06-10T06:00:00Z"),
			playlistItem("eth00000001", "ETHEREUM news", "2025-06-10T05:00:00Z"),
			playlistItem("unk00000001", "bitcoin, no duration", "2025-06-10T04:00:00Z"),
		}}},
		videos: map[string]string{
			"short000001": "PT2M",
			"btc00000001": "PT15M3S",
			"cook0000001": "PT20M",
			"eth00000001": "PT1H",
		},
	}
	lister, _ := newTestLister(t, api)

	ch := testChannel
	ch.TitleFilters = []string{"bitcoin", "ethereum"}
	videos, err := lister.ListVideos(context.Background(), ch, ListOptions{Days: 1, MaxVideos: 2, SkipShorts: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(videos) != 2 || videos[0].ID != "btc00000001" || videos[1].ID != "eth00000001" {
		t.Fatalf("videos = %+v", videos)
	}
	if got := api.count("videos"); got != 1 {
		t.Errorf("durations should be fetched in one batch, got %d calls", got)
	}
}

func TestChannelLister_ZeroDurationIsNotShort(t *testing.T) {
	api := &fakeYouTubeAPI{
		channels: map[string]any{"items": []any{map[string]any{
			"contentDetails": map[string]any{"relatedPlaylists": map[string]any{"uploads": "UU1"}},
		}}},
		pages: map[string]any{"": map[string]any{"items": []any{
			playlistItem("live0000001", "Live stream", "2025-06-10T08:00:00Z"),
			playlistItem("short000001", "Short", "2025-06-10T07:00:00Z"),
		}}},
		videos: map[string]string{
			"live0000001": "P0D",
			"short000001": "PT45S",
		},
	}
	lister, _ := newTestLister(t, api)

	videos, err := lister.ListVideos(context.Background(), testChannel, ListOptions{Days: 1, SkipShorts: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(videos) != 1 || videos[0].ID != "live0000001" {
		t.Fatalf("videos = %+v", videos)
	}
}

func TestChannelLister_SearchFallback(t *testing.T) {
	api := &fakeYouTubeAPI{
		search: map[string]any{"items": []any{
			map[string]any{
				"id":      map[string]any{"videoId": "srch0000001"},
				"snippet": map[string]any{"title": "Found", "publishedAt": "2025-06-09T08:00:00Z"},
			},
			map[string]any{"id": map[string]any{"channelId": "x"}},
		}},
	}
	lister, _ := newTestLister(t, api)

	videos, err := lister.ListVideos(context.Background(), testChannel, ListOptions{Days: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(videos) != 1 || videos[0].ID != "srch0000001" || videos[0].Title != "Found" {
		t.Fatalf("videos = %+v", videos)
	}
}

func TestChannelLister_APIErrorReturnsCollected(t *testing.T) {
	api := &fakeYouTubeAPI{
		channels: map[string]any{"items": []any{map[string]any{
			"contentDetails": map[string]any{"relatedPlaylists": map[string]any{"uploads": "UU1"}},
		}}},
		pages: map[string]any{"": map[string]any{
			"nextPageToken": "missing",
			"items":         []any{playlistItem("first000001", "First", "2025-06-10T08:00:00Z")},
		}},
	}
	lister, _ := newTestLister(t, api)

	videos, err := lister.ListVideos(context.Background(), testChannel, ListOptions{Days: 3})
	if err != nil {
		t.Fatalf("API errors should not fail enumeration: %v", err)
	}
	if len(videos) != 1 {
		t.Errorf("videos = %+v", videos)
	}
}

func TestChannelLister_VideoDetails(t *testing.T) {
	api := &fakeYouTubeAPI{videos: map[string]string{"abc123def45": "PT5M"}}
	lister, _ := newTestLister(t, api)

	v, err := lister.VideoDetails(context.Background(), "abc123def45")
	if err != nil {
		t.Fatal(err)
	}
	if v.Title != "Title abc123def45" || v.Author != "Some Channel" || v.Published.IsZero() {
		t.Errorf("details = %+v", v)
	}
	if _, err := lister.VideoDetails(context.Background(), "nothere0000"); err == nil {
		t.Error("expected an error for an unknown video")
	}
}

func TestNewChannelLister_NoKey(t *testing.T) {
	if _, err := NewChannelLister(context.Background(), "", nil, quietUI()); err != ErrMissingYouTubeKey {
		t.Errorf("err = %v", err)
	}
}

func TestParseISO8601Duration(t *testing.T) {
	tests := map[string]time.Duration{
		"PT15S":    15 * time.Second,
		"PT2M":     2 * time.Minute,
		"PT1H2M3S": time.Hour + 2*time.Minute + 3*time.Second,
		"P1DT1H":   25 * time.Hour,
		"PT0S":     0,
		"PT10M0S":  10 * time.Minute,
		"P0D":      0,
	}
	for in, want := range tests {
		got, ok := ParseISO8601Duration(in)
		if !ok || got != want {
			t.Errorf("ParseISO8601Duration(%q) = %v, %v; want %v", in, got, ok, want)
		}
	}
	for _, bad := range []string{"", "PT", "1H", "PTxM"} {
		if _, ok := ParseISO8601Duration(bad); ok {
			t.Errorf("ParseISO8601Duration(%q) should fail", bad)
		}
	}
}

package internal

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultChannelsMaxAge is how long a parsed channels.yaml is trusted
// without checking the file again
const DefaultChannelsMaxAge = 5 * time.Minute

const strategiesKey = "llm_strategies"

// ErrUnknownChannel is returned when --channel names no configured channel
var ErrUnknownChannel = errors.New("channel not found in configuration")

// ChannelsDocument is the parsed channels.yaml
type ChannelsDocument struct {
	// Categories lists category names in file order
	Categories []string
	Channels   map[string][]Channel
	Strategies map[string]StrategyConfig
}

// ParseChannelsYAML parses a channels document. Every top-level key other
// than llm_strategies is a category holding a list of channels.
func ParseChannelsYAML(data []byte) (*ChannelsDocument, error) {
	doc := &ChannelsDocument{
		Channels:   map[string][]Channel{},
		Strategies: map[string]StrategyConfig{},
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing channels config: %w", err)
	}
	if len(root.Content) == 0 {
		return doc, nil
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parsing channels config: expected a mapping at the top level")
	}

	for i := 0; i+1 < len(top.Content); i += 2 {
		key, value := top.Content[i].Value, top.Content[i+1]
		if key == strategiesKey {
			if err := value.Decode(&doc.Strategies); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", strategiesKey, err)
			}
			continue
		}
		if value.Kind != yaml.SequenceNode {
			continue
		}

		var channels []Channel
		if err := value.Decode(&channels); err != nil {
			return nil, fmt.Errorf("parsing category %q: %w", key, err)
		}
		for j := range channels {
			ch := &channels[j]
			if ch.ID == "" {
				return nil, fmt.Errorf("category %q: channel %d has no id", key, j+1)
			}
			ch.Category = key
			ch.LanguageCode = firstNonEmpty(ch.LanguageCode, "en")
			ch.OutputLanguage = firstNonEmpty(ch.OutputLanguage, OutputLanguageFor(ch.LanguageCode))
			ch.Name = firstNonEmpty(ch.Name, ch.ID)
		}
		doc.Categories = append(doc.Categories, key)
		doc.Channels[key] = channels
	}

	for name, cfg := range doc.Strategies {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", strategiesKey, name, err)
		}
	}
	return doc, nil
}

// ChannelConfigStore reads channels.yaml through an in-memory cache that is
// refreshed when the file changes or the cached copy gets too old
type ChannelConfigStore struct {
	path   string
	maxAge time.Duration
	now    func() time.Time

	mu       sync.Mutex
	doc      *ChannelsDocument
	loadedAt time.Time
	modTime  time.Time
}

// NewChannelConfigStore creates a store for the file at path
func NewChannelConfigStore(path string, maxAge time.Duration) *ChannelConfigStore {
	if maxAge <= 0 {
		maxAge = DefaultChannelsMaxAge
	}
	return &ChannelConfigStore{path: path, maxAge: maxAge, now: time.Now}
}

// Path returns the backing file
func (s *ChannelConfigStore) Path() string {
	return s.path
}

// Document returns the parsed file, reloading it if needed
func (s *ChannelConfigStore) Document() (*ChannelsDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading channels config: %w", err)
	}
	if s.doc != nil && !info.ModTime().After(s.modTime) && s.now().Sub(s.loadedAt) < s.maxAge {
		return s.doc, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading channels config: %w", err)
	}
	doc, err := ParseChannelsYAML(data)
	if err != nil {
		return nil, err
	}
	s.doc = doc
	s.modTime = info.ModTime()
	s.loadedAt = s.now()
	return doc, nil
}

// Categories returns the configured category names in file order
func (s *ChannelConfigStore) Categories() ([]string, error) {
	doc, err := s.Document()
	if err != nil {
		return nil, err
	}
	return append([]string(nil), doc.Categories...), nil
}

// ChannelsByCategory returns the channels of one category. Unknown
// categories yield an empty list. Matching ignores case.
func (s *ChannelConfigStore) ChannelsByCategory(category string) ([]Channel, error) {
	doc, err := s.Document()
	if err != nil {
		return nil, err
	}
	for _, name := range doc.Categories {
		if strings.EqualFold(name, category) {
			return append([]Channel(nil), doc.Channels[name]...), nil
		}
	}
	return nil, nil
}

// AllChannels returns every channel, grouped by category in file order
func (s *ChannelConfigStore) AllChannels() ([]Channel, error) {
	doc, err := s.Document()
	if err != nil {
		return nil, err
	}
	var all []Channel
	for _, name := range doc.Categories {
		all = append(all, doc.Channels[name]...)
	}
	return all, nil
}

// FindChannel looks a channel up by name or id, ignoring case
func (s *ChannelConfigStore) FindChannel(nameOrID string) (Channel, error) {
	all, err := s.AllChannels()
	if err != nil {
		return Channel{}, err
	}
	for _, ch := range all {
		if strings.EqualFold(ch.Name, nameOrID) || ch.ID == nameOrID {
			return ch, nil
		}
	}
	return Channel{}, fmt.Errorf("%w: %q", ErrUnknownChannel, nameOrID)
}

// CanonicalCategory returns the spelling a category has in the file, matching
// channel categories and llm_strategies keys without regard to case. Names
// that are not configured come back unchanged.
func (s *ChannelConfigStore) CanonicalCategory(category string) string {
	if category == "" {
		return ""
	}
	doc, err := s.Document()
	if err != nil {
		return category
	}
	for _, name := range doc.Categories {
		if strings.EqualFold(name, category) {
			return name
		}
	}
	for name := range doc.Strategies {
		if name != "default" && strings.EqualFold(name, category) {
			return name
		}
	}
	return category
}

// StrategyConfig implements StrategyConfigSource: the default block with
// the category's block merged on top
func (s *ChannelConfigStore) StrategyConfig(category string) (StrategyConfig, error) {
	doc, err := s.Document()
	if err != nil {
		return StrategyConfig{}, err
	}
	cfg := StrategyConfig{}.Merge(doc.Strategies["default"])
	if category == "" || category == "default" {
		return cfg, nil
	}
	if override, ok := doc.Strategies[category]; ok {
		cfg = cfg.Merge(override)
	}
	return cfg, nil
}

// OutputLanguageFor maps a transcript language code to the language notes
// are written in
func OutputLanguageFor(languageCode string) string {
	switch strings.ToLower(languageCode) {
	case "en":
		return "English"
	case "es":
		return "Spanish"
	default:
		return "Polish"
	}
}

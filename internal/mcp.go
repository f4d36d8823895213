package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/singleflight"
)

// MCPServer exposes transcript acquisition and refinement as MCP tools
type MCPServer struct {
	app       *App
	mcpServer *server.MCPServer
	inflight  singleflight.Group
}

// NewMCPServer creates a new MCP server instance
func NewMCPServer(app *App, version string) *MCPServer {
	mcpServer := server.NewMCPServer(
		"yt2md-server",
		version,
		server.WithToolCapabilities(true),
	)

	s := &MCPServer{
		app:       app,
		mcpServer: mcpServer,
	}
	s.registerTools()
	return s
}

func (s *MCPServer) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("get_youtube_metadata",
		mcp.WithDescription("Get video metadata: title, channel, duration, description and which caption languages exist."),
		mcp.WithString("url",
			mcp.Description("YouTube video URL or ID"),
			mcp.Required(),
		),
	), s.handleGetMetadata)

	s.mcpServer.AddTool(mcp.NewTool("get_transcript",
		mcp.WithDescription("Get the transcript of a YouTube video. Uses published captions and falls back to downloading the audio and transcribing it locally, which can take several minutes."),
		mcp.WithString("url",
			mcp.Description("YouTube video URL or ID"),
			mcp.Required(),
		),
		mcp.WithString("language",
			mcp.Description("Transcript language code"),
			mcp.Enum(SupportedLanguages...),
			mcp.DefaultString("en"),
		),
	), s.handleGetTranscript)

	s.mcpServer.AddTool(mcp.NewTool("refine_transcript",
		mcp.WithDescription("Rewrite a transcript into a structured Markdown note with the configured LLM strategy for its length and category. Pass either a transcript or a video URL."),
		mcp.WithString("transcript",
			mcp.Description("Raw transcript text"),
		),
		mcp.WithString("url",
			mcp.Description("YouTube video URL or ID to fetch the transcript from"),
		),
		mcp.WithString("category",
			mcp.Description("Content category used to pick the strategy (e.g. IT, AI)"),
		),
		mcp.WithString("language",
			mcp.Description("Transcript language code; the note is written in the matching output language"),
			mcp.Enum(SupportedLanguages...),
			mcp.DefaultString("en"),
		),
		mcp.WithString("mode",
			mcp.Description("Provider family: auto, cloud or local"),
			mcp.Enum("auto", "cloud", "local"),
			mcp.DefaultString("auto"),
		),
	), s.handleRefineTranscript)
}

func (s *MCPServer) handleGetMetadata(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	arg, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError("url parameter is required and must be a string"), nil
	}
	videoURL, _, err := ParseArg(arg)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("invalid url", err), nil
	}

	metadata, err := s.app.Metadata(ctx, videoURL)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("metadata error", err), nil
	}

	var buf strings.Builder
	fmt.Fprintf(&buf, "Title: %s\n", metadata.Title)
	fmt.Fprintf(&buf, "Channel: %s\n", metadata.Author())
	if published := metadata.Published(); !published.IsZero() {
		fmt.Fprintf(&buf, "Published: %s\n", published.Format("2006-01-02"))
	}
	fmt.Fprintf(&buf, "Duration: %.0f seconds\n", metadata.Duration)
	fmt.Fprintf(&buf, "Description: %s\n", metadata.Description)
	fmt.Fprintf(&buf, "Has Captions: %t\n", metadata.HasCaptions())
	if langs := captionLanguages(metadata); len(langs) > 0 {
		fmt.Fprintf(&buf, "Caption Languages: %s\n", strings.Join(langs, ", "))
	}
	if len(metadata.Tags) > 0 {
		fmt.Fprintf(&buf, "Tags: %s\n", strings.Join(metadata.Tags, ", "))
	}
	if len(metadata.Categories) > 0 {
		fmt.Fprintf(&buf, "Categories: %s\n", strings.Join(metadata.Categories, ", "))
	}
	for _, ch := range metadata.Chapters {
		fmt.Fprintf(&buf, "Chapter (%.0f-%.0f): %s\n", ch.StartTime, ch.EndTime, ch.Title)
	}

	return mcp.NewToolResultText(buf.String()), nil
}

func captionLanguages(m *VideoMetadata) []string {
	var langs []string
	for _, code := range SupportedLanguages {
		if m.HasCaptionLanguage(code) {
			langs = append(langs, code)
		}
	}
	return langs
}

func (s *MCPServer) handleGetTranscript(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	arg, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError("url parameter is required and must be a string"), nil
	}
	lang := request.GetString("language", "en")

	transcript, err := s.transcript(ctx, arg, lang)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("no transcript available", err), nil
	}
	return mcp.NewToolResultText(transcript), nil
}

// transcript collapses concurrent requests for the same video so the audio
// fallback runs at most once per video and language
func (s *MCPServer) transcript(ctx context.Context, arg, lang string) (string, error) {
	videoURL, videoID, err := ParseArg(arg)
	if err != nil {
		return "", err
	}
	if err := ValidateLanguage(lang); err != nil {
		return "", err
	}
	v, err, _ := s.inflight.Do(videoID+"/"+lang, func() (any, error) {
		return s.app.Transcript(ctx, videoURL, lang)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *MCPServer) handleRefineTranscript(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	transcript := request.GetString("transcript", "")
	arg := request.GetString("url", "")
	lang := request.GetString("language", "en")

	if strings.TrimSpace(transcript) == "" {
		if arg == "" {
			return mcp.NewToolResultError("either transcript or url is required"), nil
		}
		var err error
		transcript, err = s.transcript(ctx, arg, lang)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("no transcript available", err), nil
		}
	}

	var force ForceFlags
	switch request.GetString("mode", "auto") {
	case "cloud":
		force.CloudOnly = true
	case "local":
		force.LocalOnly = true
	}

	results, err := s.app.Refine(ctx, transcript, request.GetString("category", ""), OutputLanguageFor(lang), force)
	if err != nil {
		if errors.Is(err, ErrNoResult) {
			return mcp.NewToolResultError("all LLM strategies failed for this transcript"), nil
		}
		return mcp.NewToolResultErrorFromErr("refine failed", err), nil
	}

	var buf strings.Builder
	for _, key := range []ResultKey{ResultCloud, ResultLocal} {
		out, ok := results[key]
		if !ok {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n---\n\n")
		}
		fmt.Fprintf(&buf, "<!-- %s: %s -->\n", key, out.ModelName)
		if out.Description != "" && out.Description != NoDescription {
			fmt.Fprintf(&buf, "> %s\n\n", out.Description)
		}
		buf.WriteString(out.Text)
	}
	return mcp.NewToolResultText(buf.String()), nil
}

// Start starts the MCP server using the specified transport
func (s *MCPServer) Start(ctx context.Context, transport string, port int) error {
	if transport == "http" {
		httpServer := server.NewStreamableHTTPServer(s.mcpServer)
		addr := fmt.Sprintf(":%d", port)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.app.UI().Infof("MCP server listening on %s", addr)
		errCh := make(chan error, 1)
		go func() { errCh <- httpServer.Start(addr) }()
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return httpServer.Shutdown(context.Background())
		}
	}

	return server.ServeStdio(s.mcpServer)
}


package internal

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
)

// UIManager handles all user interface concerns (progress, leveled log output)
type UIManager interface {
	// Progress bars
	NewProgressBar(total int, description string) ProgressBar
	NewSpinner(description string) ProgressBar

	// Leveled output. Debugf is shown only in verbose mode, everything
	// below Errorf is hidden in quiet mode.
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Successf(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)

	IsVerbose() bool
}

// ProgressBar interface abstracts progress bar operations
type ProgressBar interface {
	Add(n int)
	Set(current int)
	Describe(description string)
	Finish()
}

// StandardUIManager writes colored, leveled messages to a terminal and
// optionally mirrors them to a log file
type StandardUIManager struct {
	verbose bool
	quiet   bool
	out     io.Writer
	profile termenv.Profile
	mirror  *FileLogger
	mu      sync.Mutex
}

// NewUIManager creates a UI writing to stderr
func NewUIManager(verbose, quiet bool) *StandardUIManager {
	profile := termenv.Ascii
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		profile = termenv.EnvColorProfile()
	}
	return &StandardUIManager{
		verbose: verbose,
		quiet:   quiet,
		out:     os.Stderr,
		profile: profile,
	}
}

// NewUIManagerWithWriter creates an uncolored UI writing to w
func NewUIManagerWithWriter(w io.Writer, verbose, quiet bool) *StandardUIManager {
	return &StandardUIManager{
		verbose: verbose,
		quiet:   quiet,
		out:     w,
		profile: termenv.Ascii,
	}
}

// MirrorTo copies every message, regardless of level, to the file logger
func (ui *StandardUIManager) MirrorTo(l *FileLogger) {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	ui.mirror = l
}

func (ui *StandardUIManager) IsVerbose() bool {
	return ui.verbose
}

// Progress Bar Methods
func (ui *StandardUIManager) NewProgressBar(total int, description string) ProgressBar {
	if ui.quiet {
		return &SilentProgressBar{bar: progressbar.DefaultSilent(int64(total))}
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(ui.out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
	return &VisibleProgressBar{bar: bar}
}

// NewSpinner creates an indeterminate progress indicator
func (ui *StandardUIManager) NewSpinner(description string) ProgressBar {
	if ui.quiet {
		return &SilentProgressBar{bar: progressbar.DefaultSilent(-1)}
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(ui.out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	return &VisibleProgressBar{bar: bar}
}

// Leveled Output Methods
func (ui *StandardUIManager) Debugf(format string, args ...any) {
	ui.logf("DEBUG", "8", !ui.verbose || ui.quiet, format, args...)
}

func (ui *StandardUIManager) Infof(format string, args ...any) {
	ui.logf("INFO", "", ui.quiet, format, args...)
}

func (ui *StandardUIManager) Successf(format string, args ...any) {
	ui.logf("INFO", "2", ui.quiet, format, args...)
}

func (ui *StandardUIManager) Warnf(format string, args ...any) {
	ui.logf("WARN", "3", ui.quiet, format, args...)
}

func (ui *StandardUIManager) Errorf(format string, args ...any) {
	ui.logf("ERROR", "1", false, format, args...)
}

func (ui *StandardUIManager) logf(level, color string, hidden bool, format string, args ...any) {
	msg := strings.TrimRight(fmt.Sprintf(format, args...), "\n")

	ui.mu.Lock()
	defer ui.mu.Unlock()

	if ui.mirror != nil {
		ui.mirror.Printf(level, "%s", msg)
	}
	if hidden {
		return
	}

	tag := termenv.String(fmt.Sprintf("%-5s", level))
	text := termenv.String(msg)
	if color != "" {
		c := ui.profile.Color(color)
		tag = tag.Foreground(c).Bold()
		text = text.Foreground(c)
	}
	fmt.Fprintf(ui.out, "%s %s\n", tag, text)
}

// VisibleProgressBar wraps the actual progress bar
type VisibleProgressBar struct {
	bar *progressbar.ProgressBar
}

func (v *VisibleProgressBar) Add(n int) {
	_ = v.bar.Add(n)
}

func (v *VisibleProgressBar) Set(current int) {
	_ = v.bar.Set(current)
}

func (v *VisibleProgressBar) Describe(description string) {
	v.bar.Describe(description)
}

func (v *VisibleProgressBar) Finish() {
	_ = v.bar.Finish()
}

// SilentProgressBar implements a silent progress bar
type SilentProgressBar struct {
	bar *progressbar.ProgressBar
}

func (s *SilentProgressBar) Add(n int) {
	_ = s.bar.Add(n)
}

func (s *SilentProgressBar) Set(current int) {
	_ = s.bar.Set(current)
}

func (s *SilentProgressBar) Describe(description string) {
	// Do nothing for silent mode
}

func (s *SilentProgressBar) Finish() {
	_ = s.bar.Finish()
}

package internal

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rtzll/yt2md/internal/retry"
)

// Kindle delivery defaults
const (
	KindleTag             = "#Summaries/ToKindle"
	DefaultKindleMinWords = 2000
	DefaultSMTPServer     = "smtp.gmail.com"
	DefaultSMTPPort       = 587
	DefaultEmailAttempts  = 3
	DefaultEmailRetryWait = 2 * time.Second

	kindleSubject = "Kindle Delivery"
)

var (
	ErrKindleNotConfigured = errors.New("KINDLE_EMAIL is not set")
	ErrEmailNotConfigured  = errors.New("EMAIL_ADDRESS and EMAIL_PASSWORD must be set")
	ErrPandocFailed        = errors.New("pandoc conversion failed")
)

// Email is an outgoing message with file attachments
type Email struct {
	To          []string
	Subject     string
	Body        string
	Attachments []string
}

// Mailer sends email
type Mailer interface {
	Send(ctx context.Context, msg Email) error
}

// SMTPConfig holds the sending account
type SMTPConfig struct {
	From     string
	Password string
	Server   string
	Port     int
	Attempts int
	// RetryWait grows linearly with the attempt number
	RetryWait time.Duration
}

type smtpTransport func(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends mail through an SMTP server with STARTTLS
type SMTPMailer struct {
	cfg       SMTPConfig
	ui        UIManager
	transport smtpTransport
	sleep     retry.SleepFunc
}

// NewSMTPMailer validates cfg and fills in defaults
func NewSMTPMailer(cfg SMTPConfig, ui UIManager) (*SMTPMailer, error) {
	if cfg.From == "" || cfg.Password == "" {
		return nil, ErrEmailNotConfigured
	}
	cfg.Server = firstNonEmpty(cfg.Server, DefaultSMTPServer)
	if cfg.Port <= 0 {
		cfg.Port = DefaultSMTPPort
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultEmailAttempts
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = DefaultEmailRetryWait
	}
	return &SMTPMailer{cfg: cfg, ui: ui, transport: sendSMTP, sleep: retry.Sleep}, nil
}

// Send builds the MIME message and delivers it. Authentication failures
// are not retried.
func (m *SMTPMailer) Send(ctx context.Context, msg Email) error {
	if len(msg.To) == 0 {
		return errors.New("no recipients")
	}
	raw, err := buildMessage(m.cfg.From, msg)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(m.cfg.Server, strconv.Itoa(m.cfg.Port))
	auth := smtp.PlainAuth("", m.cfg.From, m.cfg.Password, m.cfg.Server)
	cfg := retry.Config{
		MaxAttempts: m.cfg.Attempts,
		Backoff:     retry.Linear(m.cfg.RetryWait),
		Sleep:       m.sleep,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			m.ui.Warnf("SMTP error on attempt %d: %v", attempt, err)
		},
	}
	err = retry.Do(ctx, cfg, isRetryableSMTPError, func(ctx context.Context, attempt int) error {
		return m.transport(ctx, addr, auth, m.cfg.From, msg.To, raw)
	})
	if err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	m.ui.Debugf("Email sent to %s", strings.Join(msg.To, ", "))
	return nil
}

func isRetryableSMTPError(err error) bool {
	var tp *textproto.Error
	if errors.As(err, &tp) {
		// 535 bad credentials, 534 auth mechanism rejected
		return tp.Code != 535 && tp.Code != 534
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func sendSMTP(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	dialer := &net.Dialer{Timeout: 30 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	host, _, _ := net.SplitHostPort(addr)
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if err := c.Auth(auth); err != nil {
		return err
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildMessage(from string, msg Email) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := textproto.MIMEHeader{}
	header.Set("From", from)
	header.Set("To", strings.Join(msg.To, ", "))
	header.Set("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header.Set("Date", time.Now().Format(time.RFC1123Z))
	header.Set("MIME-Version", "1.0")
	header.Set("Content-Type", "multipart/mixed; boundary="+mw.Boundary())

	var out bytes.Buffer
	keys := make([]string, 0, len(header))
	for k := range header {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&out, "%s: %s\r\n", k, header.Get(k))
	}
	out.WriteString("\r\n")

	text, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/plain; charset=utf-8"},
		"Content-Transfer-Encoding": {"8bit"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := text.Write([]byte(msg.Body)); err != nil {
		return nil, err
	}

	for _, path := range msg.Attachments {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("attachment %s: %w", path, err)
		}
		name := filepath.Base(path)
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {attachmentType(name)},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": name})},
		})
		if err != nil {
			return nil, err
		}
		if err := writeBase64Lines(part, data); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	out.Write(buf.Bytes())
	return out.Bytes(), nil
}

func attachmentType(name string) string {
	if strings.EqualFold(filepath.Ext(name), ".epub") {
		return "application/epub+zip"
	}
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func writeBase64Lines(w interface{ Write([]byte) (int, error) }, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 0 {
		n := min(76, len(encoded))
		if _, err := w.Write([]byte(encoded[:n] + "\r\n")); err != nil {
			return err
		}
		encoded = encoded[n:]
	}
	return nil
}

// SavedNote is a note written during this run
type SavedNote struct {
	Path  string
	Words int
}

// KindleSender converts notes to EPUB and mails them to a Kindle address
type KindleSender struct {
	cmdRunner CommandRunner
	mailer    Mailer
	recipient string
	minWords  int
	tempDir   string
	ui        UIManager
}

// NewKindleSender creates a sender. minWords below 1 uses the default.
func NewKindleSender(runner CommandRunner, mailer Mailer, recipient string, minWords int, tempDir string, ui UIManager) (*KindleSender, error) {
	if recipient == "" {
		return nil, ErrKindleNotConfigured
	}
	if minWords < 1 {
		minWords = DefaultKindleMinWords
	}
	return &KindleSender{
		cmdRunner: runner,
		mailer:    mailer,
		recipient: recipient,
		minWords:  minWords,
		tempDir:   tempDir,
		ui:        ui,
	}, nil
}

// ConvertToEPUB runs pandoc and returns the EPUB path inside dir
func (k *KindleSender) ConvertToEPUB(ctx context.Context, mdPath, dir string) (string, error) {
	if !FileExists(mdPath) {
		return "", fmt.Errorf("markdown file not found: %s", mdPath)
	}
	stem := strings.TrimSuffix(filepath.Base(mdPath), filepath.Ext(mdPath))
	out := filepath.Join(dir, stem+".epub")
	args := []string{
		mdPath,
		"-o", out,
		"--to", "epub3",
		"--standalone",
		"--split-level=1",
		"--toc-depth=3",
		"--toc",
		"-M", "identifier=urn:uuid:" + uuid.NewString(),
	}
	k.ui.Debugf("Converting %s to EPUB", filepath.Base(mdPath))
	if output, err := k.cmdRunner.Run(ctx, "pandoc", args...); err != nil {
		return "", fmt.Errorf("%w: %v: %s", ErrPandocFailed, err, lastErrorLine(string(output)))
	}
	if !FileExists(out) {
		return "", fmt.Errorf("%w: no output file", ErrPandocFailed)
	}
	return out, nil
}

// Send converts one note, mails it and tags it
func (k *KindleSender) Send(ctx context.Context, mdPath, body string) error {
	if err := EnsureDirs(k.tempDir); err != nil {
		return fmt.Errorf("creating temp directory: %w", err)
	}
	dir, err := os.MkdirTemp(k.tempDir, "epub-")
	if err != nil {
		return fmt.Errorf("creating epub directory: %w", err)
	}
	defer os.RemoveAll(dir)

	epub, err := k.ConvertToEPUB(ctx, mdPath, dir)
	if err != nil {
		return err
	}
	if err := k.mailer.Send(ctx, Email{
		To:          []string{k.recipient},
		Subject:     kindleSubject,
		Body:        body,
		Attachments: []string{epub},
	}); err != nil {
		return err
	}
	if err := AddFrontMatterTag(mdPath, KindleTag); err != nil {
		k.ui.Warnf("Sent %s but could not tag it: %v", filepath.Base(mdPath), err)
	}
	return nil
}

// AutoSend mails every note at or above the word threshold
func (k *KindleSender) AutoSend(ctx context.Context, notes []SavedNote) (sent, failed int) {
	for _, n := range notes {
		status := "SKIP"
		if n.Words >= k.minWords {
			status = "SEND"
		}
		k.ui.Debugf("Kindle threshold check: %s = %d words [%s, threshold=%d]", filepath.Base(n.Path), n.Words, status, k.minWords)
		if status == "SKIP" {
			continue
		}
		if err := k.Send(ctx, n.Path, fmt.Sprintf("Auto-sent long note (%d words).", n.Words)); err != nil {
			k.ui.Errorf("Kindle delivery failed for %s: %v", filepath.Base(n.Path), err)
			failed++
			continue
		}
		k.ui.Successf("Sent to Kindle: %s", filepath.Base(n.Path))
		sent++
	}
	return sent, failed
}

// SendAll mails every note regardless of length
func (k *KindleSender) SendAll(ctx context.Context, paths []string) (sent, failed int) {
	for _, p := range paths {
		if err := k.Send(ctx, p, "Delivered processed note."); err != nil {
			k.ui.Errorf("Kindle delivery failed for %s: %v", filepath.Base(p), err)
			failed++
			continue
		}
		k.ui.Successf("Sent to Kindle: %s", filepath.Base(p))
		sent++
	}
	return sent, failed
}

// ResendLatest mails the newest existing note of an already processed
// video. It reports false when there is nothing to resend.
func (k *KindleSender) ResendLatest(ctx context.Context, index VideoIndex, videoID string) (bool, error) {
	files, err := NoteFiles(ctx, index, videoID)
	if err != nil || len(files) == 0 {
		return false, err
	}
	latest, latestMod := "", time.Time{}
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestMod) {
			latest, latestMod = f, info.ModTime()
		}
	}
	if latest == "" {
		return false, nil
	}
	if err := k.Send(ctx, latest, "Resent existing note."); err != nil {
		return false, err
	}
	k.ui.Successf("Resent to Kindle: %s", filepath.Base(latest))
	return true, nil
}

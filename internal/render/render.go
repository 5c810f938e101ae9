// Package render turns completion text into a PNG card for picture mode.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/rs/zerolog"

	"github.com/s33g/discord-relay/internal/config"
	"github.com/s33g/discord-relay/internal/metrics"
	"github.com/s33g/discord-relay/internal/telemetry"
)

var (
	// ErrRender wraps every rendering failure
	ErrRender = errors.New("render failed")
	// ErrEmptyImage is returned when the rasterizer produced no bytes
	ErrEmptyImage = errors.New("rasterizer returned an empty image")
)

const (
	// MessageSelector identifies the card element inside the document
	MessageSelector = "#message"
	// StylesheetURL is the only remote resource the document loads besides the avatar
	StylesheetURL = "https://cdn.jsdelivr.net/npm/@tabler/core@1.0.0-beta17/dist/css/tabler.min.css"
)

var templateTag = regexp.MustCompile(`</*template>`)

const documentTemplate = `<html>
<link rel="stylesheet" href="{{.Stylesheet}}">
<style> body { background-color: white; } </style>
<div class="toast show" id="message">
  <div class="toast-header">
    <span class="avatar avatar-xs me-2" style="background-image: url({{.AvatarURL}})"></span>
    <strong class="me-auto">{{.Title}}</strong>
  </div>
  <div class="toast-body">
    {{.Body}}
  </div>
</div>
<script>
  const message = document.getElementById('message');
  document.getElementsByTagName('html')[0].style.height = message.offsetHeight;
  document.getElementsByTagName('html')[0].style.width = message.offsetWidth;
</script>
</html>`

// The body is trusted markup once sanitized, so no HTML escaping is applied.
var document = template.Must(template.New("document").Parse(documentTemplate))

// Image is a rendered reply
type Image struct {
	Data        []byte
	ContentType string
	Name        string
}

// Rasterizer turns an HTML document into PNG bytes
type Rasterizer interface {
	Rasterize(ctx context.Context, html string) ([]byte, error)
}

// Sanitize converts newlines to <br> and strips <template> and </template> tags
func Sanitize(text string) string {
	text = strings.ReplaceAll(text, "\n", "<br>")
	return templateTag.ReplaceAllString(text, "")
}

// Renderer builds the card document and hands it to a Rasterizer
type Renderer struct {
	title      string
	avatarURL  string
	timeout    time.Duration
	rasterizer Rasterizer
	logger     zerolog.Logger
}

// NewRenderer creates a renderer for the given settings
func NewRenderer(cfg config.RenderConfig, rasterizer Rasterizer, logger zerolog.Logger) *Renderer {
	return &Renderer{
		title:      cfg.Title,
		avatarURL:  cfg.AvatarURL,
		timeout:    cfg.Timeout(),
		rasterizer: rasterizer,
		logger:     logger,
	}
}

// Document returns the full HTML card for text
func (r *Renderer) Document(text string) (string, error) {
	var buf bytes.Buffer
	err := document.Execute(&buf, struct {
		Stylesheet string
		Title      string
		AvatarURL  string
		Body       string
	}{
		Stylesheet: StylesheetURL,
		Title:      r.title,
		AvatarURL:  r.avatarURL,
		Body:       Sanitize(text),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRender, err)
	}
	return buf.String(), nil
}

// Render rasterizes text into a PNG image
func (r *Renderer) Render(ctx context.Context, text string) (img *Image, err error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ctx, span := telemetry.StartSpan(ctx, "render.card")
	defer func() { telemetry.End(span, err) }()

	start := time.Now()
	defer func() {
		metrics.RecordRender(err == nil, time.Since(start).Seconds())
	}()

	html, err := r.Document(text)
	if err != nil {
		return nil, err
	}

	data, err := r.rasterizer.Rasterize(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrRender, ErrEmptyImage)
	}

	r.logger.Debug().
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("Rendered reply card")

	return &Image{
		Data:        data,
		ContentType: "image/png",
		Name:        "reply.png",
	}, nil
}

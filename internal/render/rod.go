package render

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"

	"github.com/s33g/discord-relay/internal/config"
)

// RodRasterizer renders documents in a shared headless Chromium
type RodRasterizer struct {
	bin      string
	headless bool
	allowed  map[string]bool
	logger   zerolog.Logger

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// NewRodRasterizer creates a rasterizer. The browser is launched on first use.
func NewRodRasterizer(cfg config.RenderConfig, logger zerolog.Logger) *RodRasterizer {
	allowed := make(map[string]bool)
	for _, raw := range []string{StylesheetURL, cfg.AvatarURL} {
		if u, err := url.Parse(raw); err == nil && raw != "" {
			allowed[u.String()] = true
		}
	}

	return &RodRasterizer{
		bin:      cfg.BrowserBin,
		headless: cfg.Headless,
		allowed:  allowed,
		logger:   logger,
	}
}

// Rasterize loads html into a fresh page and screenshots the message card
func (r *RodRasterizer) Rasterize(ctx context.Context, html string) ([]byte, error) {
	browser, err := r.connect()
	if err != nil {
		return nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		// The browser is gone; the next call launches a fresh one
		r.discard(browser)
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()

	page = page.Context(ctx)

	// Completion text is untrusted markup: only the card's own resources may load
	router := page.HijackRequests()
	if err := router.Add("*", "", r.filter); err != nil {
		return nil, fmt.Errorf("failed to intercept requests: %w", err)
	}
	go router.Run()
	defer func() { _ = router.Stop() }()

	if err := page.SetDocumentContent(html); err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("page load timeout: %w", err)
	}

	el, err := page.Element(MessageSelector)
	if err != nil {
		return nil, fmt.Errorf("element not found: %s: %w", MessageSelector, err)
	}

	data, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 100)
	if err != nil {
		return nil, fmt.Errorf("element screenshot failed: %w", err)
	}

	return data, nil
}

func (r *RodRasterizer) connect() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return r.browser, nil
	}

	path := r.bin
	if path == "" {
		found, ok := launcher.LookPath()
		if !ok {
			return nil, errors.New("Chrome/Chromium not found - set render.browser_bin")
		}
		path = found
	}

	l := launcher.New().
		Bin(path).
		Headless(r.headless).
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-dev-shm-usage")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	r.logger.Info().Str("bin", path).Bool("headless", r.headless).Msg("Browser launched")

	r.launcher = l
	r.browser = browser
	return browser, nil
}

func (r *RodRasterizer) filter(h *rod.Hijack) {
	u := h.Request.URL()
	if r.allows(u) {
		h.ContinueRequest(&proto.FetchContinueRequest{})
		return
	}
	if u != nil {
		r.logger.Debug().Str("url", u.String()).Msg("Blocked request from card")
	}
	h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
}

func (r *RodRasterizer) allows(u *url.URL) bool {
	return u != nil && r.allowed[u.String()]
}

// discard forgets browser if it is still the shared one and kills its process
func (r *RodRasterizer) discard(browser *rod.Browser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != browser {
		return
	}
	r.logger.Warn().Msg("Browser unreachable, relaunching on next render")

	r.browser = nil
	if r.launcher != nil {
		r.launcher.Kill()
		r.launcher = nil
	}
}

// Close shuts down the browser if it was launched
func (r *RodRasterizer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		_ = r.browser.Close()
		r.browser = nil
	}
	if r.launcher != nil {
		r.launcher.Kill()
		r.launcher = nil
	}
}

package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/google/uuid"

	"webresearch/internal/logging"
)

// RodConfig holds Chrome launch settings.
type RodConfig struct {
	Bin            string // Chrome binary; empty lets the launcher find or download one
	ControlURL     string // connect to an existing DevTools endpoint instead of launching
	Headless       bool
	Stealth        bool     // open pages through go-rod/stealth
	BlockResources []string // images, fonts, media, stylesheets
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
}

// RodFactory launches one Chrome process and gives every worker its own
// incognito browser context, so cookies and storage never leak between fetches.
type RodFactory struct {
	cfg RodConfig

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// NewRodFactory launches (or connects to) Chrome.
func NewRodFactory(ctx context.Context, cfg RodConfig) (*RodFactory, error) {
	if cfg.ViewportWidth == 0 {
		cfg.ViewportWidth = 1366
	}
	if cfg.ViewportHeight == 0 {
		cfg.ViewportHeight = 900
	}

	controlURL := cfg.ControlURL
	var l *launcher.Launcher
	if controlURL == "" {
		l = launcher.New().Headless(cfg.Headless)
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		l = l.Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch chrome: %w", err)
		}
		controlURL = u
		logging.Pool("launched chrome (headless=%v)", cfg.Headless)
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("browser: connect to chrome: %w", err)
	}
	// The launch context only scopes the connection handshake.
	b = b.Context(context.Background())

	return &RodFactory{cfg: cfg, browser: b, lnch: l}, nil
}

// NewWorker opens an isolated incognito context with a single page.
func (f *RodFactory) NewWorker(ctx context.Context) (Worker, error) {
	f.mu.Lock()
	b := f.browser
	f.mu.Unlock()
	if b == nil {
		return nil, errors.New("browser: factory closed")
	}

	incognito, err := b.Incognito()
	if err != nil {
		return nil, fmt.Errorf("browser: incognito context: %w", err)
	}

	var page *rod.Page
	if f.cfg.Stealth {
		page, err = stealth.Page(incognito)
	} else {
		page, err = incognito.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("browser: create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             f.cfg.ViewportWidth,
		Height:            f.cfg.ViewportHeight,
		DeviceScaleFactor: 1.0,
	}).Call(page); err != nil {
		logging.PoolDebug("set viewport: %v", err)
	}
	if f.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: f.cfg.UserAgent}); err != nil {
			logging.PoolDebug("set user agent: %v", err)
		}
	}

	w := &rodWorker{id: "w-" + uuid.NewString()[:8], ctxBrowser: incognito, page: page}
	if len(f.cfg.BlockResources) > 0 {
		w.router = blockResources(page, f.cfg.BlockResources)
	}
	return w, nil
}

// Close shuts Chrome down.
func (f *RodFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if f.browser != nil {
		err = f.browser.Close()
		f.browser = nil
	}
	if f.lnch != nil {
		f.lnch.Kill()
		f.lnch.Cleanup()
		f.lnch = nil
	}
	return err
}

type rodWorker struct {
	id         string
	ctxBrowser *rod.Browser
	page       *rod.Page
	router     *rod.HijackRouter
}

func (w *rodWorker) ID() string { return w.id }

func (w *rodWorker) Render(ctx context.Context, req RenderRequest) (string, error) {
	navTimeout := req.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 15 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()

	page := w.page.Context(navCtx)
	if err := page.Navigate(req.URL); err != nil {
		return "", w.classify(ctx, fmt.Errorf("navigate %s: %w", req.URL, err))
	}
	if err := page.WaitLoad(); err != nil {
		logging.PoolDebug("wait load %s: %v", req.URL, err)
	}

	if req.WaitForSelector != "" {
		grace := req.SelectorGrace
		if grace <= 0 {
			grace = 2 * time.Second
		}
		selCtx, selCancel := context.WithTimeout(navCtx, grace)
		if _, err := w.page.Context(selCtx).Element(req.WaitForSelector); err != nil {
			logging.PoolDebug("selector %q not ready on %s after %v; continuing", req.WaitForSelector, req.URL, grace)
		}
		selCancel()
	}

	html, err := page.HTML()
	if err != nil {
		return "", w.classify(ctx, fmt.Errorf("read html %s: %w", req.URL, err))
	}
	return html, nil
}

// classify tags the error as ErrWorkerBroken when the page no longer answers
// even though the caller's context is still live.
func (w *rodWorker) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	probeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, perr := w.page.Context(probeCtx).Info(); perr != nil {
		return fmt.Errorf("%w: %w", ErrWorkerBroken, err)
	}
	return err
}

func (w *rodWorker) Close() error {
	if w.router != nil {
		_ = w.router.Stop()
	}
	if w.page != nil {
		_ = w.page.Close()
	}
	if w.ctxBrowser != nil {
		return w.ctxBrowser.Close()
	}
	return nil
}

// blockResources fails requests for the listed resource classes.
func blockResources(page *rod.Page, types []string) *rod.HijackRouter {
	block := make(map[proto.NetworkResourceType]bool, len(types))
	for _, t := range types {
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "images", "image":
			block[proto.NetworkResourceTypeImage] = true
		case "fonts", "font":
			block[proto.NetworkResourceTypeFont] = true
		case "media":
			block[proto.NetworkResourceTypeMedia] = true
		case "stylesheets", "stylesheet":
			block[proto.NetworkResourceTypeStylesheet] = true
		}
	}

	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if block[h.Request.Type()] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}

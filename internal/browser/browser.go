// Package browser captures screenshots of published pages with headless
// Chrome.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/FranksOps/bubblescope/internal/domain"
)

// Config controls the browser and the capture viewport.
type Config struct {
	// ExecPath is the Chrome binary. Empty lets chromedp find one.
	ExecPath string
	// NoSandbox is needed when running as root inside containers.
	NoSandbox bool
	Width     int64
	Height    int64
	Scale     float64
	// NavTimeout bounds page navigation (default 60s).
	NavTimeout time.Duration
	// Noise lists selectors removed from the page before capture.
	Noise []string
}

func (c *Config) setDefaults() {
	if c.Width <= 0 {
		c.Width = 1080
	}
	if c.Height <= 0 {
		c.Height = 1080
	}
	if c.Scale <= 0 {
		c.Scale = 2
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 60 * time.Second
	}
}

// Capturer owns one browser process and opens a fresh tab per capture.
type Capturer struct {
	cfg         Config
	allocCancel context.CancelFunc
	browser     context.Context
	cancel      context.CancelFunc
	logger      *slog.Logger

	once     sync.Once
	startErr error
}

// New prepares the browser allocator. The browser process itself is
// launched on the first capture.
func New(cfg Config, logger *slog.Logger) *Capturer {
	cfg.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("hide-scrollbars", true),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}

	alloc, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browser, cancel := chromedp.NewContext(alloc, chromedp.WithLogf(func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	}))
	return &Capturer{
		cfg:         cfg,
		allocCancel: allocCancel,
		browser:     browser,
		cancel:      cancel,
		logger:      logger,
	}
}

// Close shuts the browser down.
func (c *Capturer) Close() error {
	c.cancel()
	c.allocCancel()
	return nil
}

// start launches the browser. The first Run on the root context owns the
// process, so it must not carry a timeout.
func (c *Capturer) start() error {
	c.once.Do(func() {
		c.startErr = chromedp.Run(c.browser)
	})
	return c.startErr
}

// Capture loads url, waits settle for scripts to finish drawing, removes the
// configured noise elements and returns a PNG. When selector matches an
// element only that element is captured, otherwise the whole viewport.
func (c *Capturer) Capture(ctx context.Context, url, selector string, settle time.Duration) ([]byte, error) {
	if err := c.start(); err != nil {
		return nil, fmt.Errorf("browser: start: %w", err)
	}

	tab, cancel := chromedp.NewContext(c.browser)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	start := time.Now()
	if err := chromedp.Run(tab); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("browser: open tab: %w", err)
	}

	nav, navCancel := context.WithTimeout(tab, c.cfg.NavTimeout)
	err := chromedp.Run(nav,
		chromedp.EmulateViewport(c.cfg.Width, c.cfg.Height, chromedp.EmulateScale(c.cfg.Scale)),
		chromedp.Navigate(url),
	)
	timedOut := errors.Is(nav.Err(), context.DeadlineExceeded)
	navCancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if timedOut {
			return nil, fmt.Errorf("browser: navigate %s: %w", url, domain.ErrRenderTimeout)
		}
		return nil, fmt.Errorf("browser: navigate %s: %w", url, err)
	}

	var removed int
	actions := []chromedp.Action{chromedp.Sleep(settle)}
	if len(c.cfg.Noise) > 0 {
		actions = append(actions, chromedp.Evaluate(noiseScript(c.cfg.Noise), &removed))
	}

	var found bool
	if selector != "" {
		actions = append(actions, chromedp.Evaluate(existsScript(selector), &found))
	}
	if err := chromedp.Run(tab, actions...); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("browser: prepare %s: %w", url, err)
	}

	var buf []byte
	shot := chromedp.CaptureScreenshot(&buf)
	if found {
		shot = chromedp.Screenshot(selector, &buf, chromedp.ByQuery, chromedp.NodeVisible)
	}
	if err := chromedp.Run(tab, shot); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("browser: screenshot %s: %w", url, err)
	}

	c.logger.Debug("captured page", "url", url, "selector", selector, "element", found,
		"noise_removed", removed, "bytes", len(buf), "duration", time.Since(start))
	return buf, nil
}

func noiseScript(selectors []string) string {
	b, _ := json.Marshal(selectors)
	return fmt.Sprintf(`(() => {
	let n = 0;
	for (const s of %s) {
		document.querySelectorAll(s).forEach((e) => { e.remove(); n++; });
	}
	return n;
})()`, b)
}

func existsScript(selector string) string {
	b, _ := json.Marshal(selector)
	return fmt.Sprintf(`document.querySelector(%s) !== null`, b)
}

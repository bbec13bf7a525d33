// Package browser drives the live site through a Chromium instance. It is
// the only package that talks CDP; everything above it sees the page
// capability interface and the interception event stream.
package browser

import (
	"context"
	"fmt"
	"net/http"

	"studydrive/internal/config"
	"studydrive/internal/intercept"
	"studydrive/internal/logger"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Driver owns the browser connection and the single automation page.
type Driver struct {
	cfg      config.BrowserConfig
	browser  *rod.Browser
	page     *rod.Page
	router   *rod.HijackRouter
	launched *launcher.Launcher
}

// NewDriver creates an unconnected driver.
func NewDriver(cfg config.BrowserConfig) *Driver {
	return &Driver{cfg: cfg}
}

// Start connects to the browser. An explicit control URL attaches to an
// already-running instance; otherwise a local Chromium is launched.
func (d *Driver) Start(ctx context.Context) error {
	controlURL := d.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(d.cfg.Headless)
		url, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch chromium: %w", err)
		}
		d.launched = l
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to browser: %w", err)
	}
	d.browser = browser

	logger.Get().Info("Browser connected", zap.Bool("headless", d.cfg.Headless))
	return nil
}

// OpenPage navigates a fresh page to url and returns its capability
// wrapper. Interception must be attached before navigation so the quiz
// start request is never missed.
func (d *Driver) OpenPage(ctx context.Context, url string, observer *intercept.Observer) (*LivePage, error) {
	if d.browser == nil {
		return nil, fmt.Errorf("browser not started")
	}

	page, err := d.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	d.page = page

	if observer != nil {
		if err := d.attachInterceptor(page, observer); err != nil {
			return nil, err
		}
	}

	if err := page.Context(ctx).Timeout(d.cfg.NavTimeout).Navigate(url); err != nil {
		return nil, fmt.Errorf("navigate to %s: %w", url, err)
	}

	return &LivePage{page: page, cfg: d.cfg}, nil
}

// attachInterceptor hijacks the platform's gateway responses and feeds
// their bodies to the observer. The request is forwarded untouched; only
// the response body is read.
func (d *Driver) attachInterceptor(page *rod.Page, observer *intercept.Observer) error {
	router := page.HijackRequests()
	err := router.Add("*aistudy.zhihuishu.com/gateway/t/v1/exam/*", "", func(hijack *rod.Hijack) {
		url := hijack.Request.URL().String()
		if !intercept.Matches(url) {
			hijack.ContinueRequest(&proto.FetchContinueRequest{})
			return
		}
		if err := hijack.LoadResponse(http.DefaultClient, true); err != nil {
			logger.Get().Warn("Failed to load hijacked response", zap.String("url", url), zap.Error(err))
			return
		}
		observer.Observe(url, []byte(hijack.Response.Body()))
	})
	if err != nil {
		return fmt.Errorf("add hijack route: %w", err)
	}

	d.router = router
	go router.Run()
	return nil
}

// Close stops interception, disconnects, and kills a launched browser.
func (d *Driver) Close() error {
	if d.router != nil {
		_ = d.router.Stop()
	}
	if d.browser != nil {
		if err := d.browser.Close(); err != nil {
			return err
		}
	}
	if d.launched != nil {
		d.launched.Cleanup()
	}
	return nil
}

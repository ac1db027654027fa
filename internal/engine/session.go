package engine

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/zulandar/stagehand/internal/launch"
	"github.com/zulandar/stagehand/internal/models"
)

// OpenRequest bundles everything needed to set up one browser session.
type OpenRequest struct {
	Spec      launch.LaunchSpec
	Cookies   []models.Cookie
	Target    string
	TracePath string
}

// Session is an open browser session. Close releases the browser and, when
// tracing was requested, flushes the trace to the request's TracePath.
// Acquire and release always pair: any error path inside Open tears down
// whatever was already created.
type Session interface {
	Driver
	Close() error
}

// Opener creates sessions. The playwright launcher is the production
// implementation; tests substitute a fake.
type Opener interface {
	Open(ctx context.Context, req OpenRequest) (Session, error)
}

// Launcher owns the Playwright runtime and opens real browser sessions.
type Launcher struct {
	mu sync.Mutex
	pw *playwright.Playwright
}

// NewLauncher creates an uninitialized Launcher; the Playwright runtime is
// started lazily on first open.
func NewLauncher() *Launcher {
	return &Launcher{}
}

// runtime starts (or returns) the shared Playwright instance.
func (l *Launcher) runtime() (*playwright.Playwright, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pw != nil {
		return l.pw, nil
	}

	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if err := playwright.Install(opts); err != nil {
		return nil, fmt.Errorf("engine: install playwright: %w", err)
	}
	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("engine: start playwright: %w", err)
	}
	l.pw = pw
	return pw, nil
}

// Stop shuts down the Playwright runtime.
func (l *Launcher) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pw == nil {
		return nil
	}
	err := l.pw.Stop()
	l.pw = nil
	return err
}

// Open implements Opener. All setup failures here are fatal to the run and
// propagate to the caller after tearing down partial state.
func (l *Launcher) Open(ctx context.Context, req OpenRequest) (Session, error) {
	pw, err := l.runtime()
	if err != nil {
		return nil, err
	}

	browserType := pw.Chromium
	switch req.Spec.Browser {
	case "firefox":
		browserType = pw.Firefox
	case "webkit":
		browserType = pw.WebKit
	}

	browser, err := browserType.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(req.Spec.Headless),
	})
	if err != nil {
		return nil, fmt.Errorf("engine: launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  req.Spec.ViewportWidth,
			Height: req.Spec.ViewportHeight,
		},
	}
	if ua := req.Spec.Headers["User-Agent"]; ua != "" {
		contextOpts.UserAgent = playwright.String(ua)
	}
	if len(req.Spec.Headers) > 0 {
		headers := make(map[string]string, len(req.Spec.Headers))
		for k, v := range req.Spec.Headers {
			if k == "User-Agent" {
				continue
			}
			headers[k] = v
		}
		if len(headers) > 0 {
			contextOpts.ExtraHttpHeaders = headers
		}
	}
	if req.Spec.Fingerprint.TouchEnabled {
		contextOpts.HasTouch = playwright.Bool(true)
	}
	if req.Spec.Fingerprint.DevicePixelRatio > 0 {
		contextOpts.DeviceScaleFactor = playwright.Float(req.Spec.Fingerprint.DevicePixelRatio)
	}
	if req.Spec.Proxy != nil {
		contextOpts.Proxy = &playwright.Proxy{
			Server:   req.Spec.Proxy.Server,
			Username: playwright.String(req.Spec.Proxy.Username),
			Password: playwright.String(req.Spec.Proxy.Password),
		}
	}

	browserCtx, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("engine: create context: %w", err)
	}

	if js := fingerprintScript(req.Spec.Fingerprint); js != "" {
		if err := browserCtx.AddInitScript(playwright.Script{Content: playwright.String(js)}); err != nil {
			browserCtx.Close()
			browser.Close()
			return nil, fmt.Errorf("engine: apply fingerprint: %w", err)
		}
	}

	if err := applyCookies(browserCtx, req.Cookies, req.Target); err != nil {
		browserCtx.Close()
		browser.Close()
		return nil, fmt.Errorf("engine: apply cookies: %w", err)
	}

	tracing := false
	if req.TracePath != "" {
		if err := browserCtx.Tracing().Start(playwright.TracingStartOptions{
			Screenshots: playwright.Bool(true),
			Snapshots:   playwright.Bool(true),
		}); err != nil {
			browserCtx.Close()
			browser.Close()
			return nil, fmt.Errorf("engine: start tracing: %w", err)
		}
		tracing = true
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		browserCtx.Close()
		browser.Close()
		return nil, fmt.Errorf("engine: create page: %w", err)
	}

	return &pwSession{
		browser:   browser,
		context:   browserCtx,
		page:      page,
		tracing:   tracing,
		tracePath: req.TracePath,
	}, nil
}

// applyCookies attaches cookies to the context scoped to the target's
// scheme and host, falling back to https://<domain> when no target is
// given. Malformed entries are skipped individually.
func applyCookies(browserCtx playwright.BrowserContext, cookies []models.Cookie, target string) error {
	if len(cookies) == 0 {
		return nil
	}

	scope := ""
	if target != "" {
		if u, err := url.Parse(target); err == nil && u.Scheme != "" && u.Host != "" {
			scope = u.Scheme + "://" + u.Host
		}
	}

	var toAdd []playwright.OptionalCookie
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		cookieURL := scope
		if cookieURL == "" {
			if c.Domain == "" {
				continue
			}
			cookieURL = "https://" + strings.TrimPrefix(c.Domain, ".")
		}
		oc := playwright.OptionalCookie{
			Name:  c.Name,
			Value: c.Value,
			URL:   playwright.String(cookieURL),
		}
		if c.Expires > 0 {
			oc.Expires = playwright.Float(c.Expires)
		}
		if c.HTTPOnly {
			oc.HttpOnly = playwright.Bool(true)
		}
		if c.Secure {
			oc.Secure = playwright.Bool(true)
		}
		toAdd = append(toAdd, oc)
	}
	if len(toAdd) == 0 {
		return nil
	}
	return browserCtx.AddCookies(toAdd)
}

// fingerprintScript renders the context init script that overrides the
// navigator surface to match the emulated device.
func fingerprintScript(fp models.Fingerprint) string {
	var b strings.Builder
	if fp.HardwareThreads > 0 {
		fmt.Fprintf(&b, "Object.defineProperty(navigator, 'hardwareConcurrency', {get: () => %d});\n", fp.HardwareThreads)
	}
	if fp.DeviceMemoryGB > 0 {
		fmt.Fprintf(&b, "Object.defineProperty(navigator, 'deviceMemory', {get: () => %d});\n", fp.DeviceMemoryGB)
	}
	if len(fp.Languages) > 0 {
		quoted := make([]string, len(fp.Languages))
		for i, l := range fp.Languages {
			quoted[i] = fmt.Sprintf("%q", l)
		}
		fmt.Fprintf(&b, "Object.defineProperty(navigator, 'languages', {get: () => [%s]});\n", strings.Join(quoted, ","))
	}
	if fp.GPUVendor != "" || fp.GPURenderer != "" {
		fmt.Fprintf(&b, `const origGetParameter = WebGLRenderingContext.prototype.getParameter;
WebGLRenderingContext.prototype.getParameter = function(p) {
  if (p === 37445) { return %q; }
  if (p === 37446) { return %q; }
  return origGetParameter.call(this, p);
};
`, fp.GPUVendor, fp.GPURenderer)
	}
	return b.String()
}

// pwSession is the playwright-backed Session.
type pwSession struct {
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page

	tracing   bool
	tracePath string
}

// Navigate implements Driver. The step succeeds once the document reaches
// DOMContentLoaded.
func (s *pwSession) Navigate(url string) error {
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// Click implements Driver.
func (s *pwSession) Click(selector string, timeout time.Duration) error {
	return s.page.Click(selector, playwright.PageClickOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

// Type implements Driver.
func (s *pwSession) Type(selector, text string, timeout time.Duration) error {
	return s.page.Fill(selector, text, playwright.PageFillOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

// Scroll implements Driver by scrolling to the bottom of the document.
func (s *pwSession) Scroll() error {
	_, err := s.page.Evaluate("window.scrollTo(0, document.body.scrollHeight)")
	return err
}

// Close flushes the trace (when recording) and releases every browser
// resource. Cleanup continues past individual errors; the first one wins.
func (s *pwSession) Close() error {
	var firstErr error
	if s.tracing {
		if err := s.context.Tracing().Stop(s.tracePath); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop tracing: %w", err)
		}
	}
	if err := s.page.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.context.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.browser.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

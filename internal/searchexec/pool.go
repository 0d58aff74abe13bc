package searchexec

import (
	"context"
	"sync"
	"time"

	"github.com/aipp-workbench/engine/internal/engineerr"
	"github.com/playwright-community/playwright-go"
)

// PagePool is a bounded pool of reusable pages, each launched with the
// engine's persisted fingerprint, anti-detection init script, and launch
// hardening args. With no pool (a nil *PagePool), the search/fetch paths
// skip the browser stage and start at the HTTP stage (see fetch.go).
type PagePool struct {
	fingerprint FingerprintConfig
	proxy       ProxyConfig
	maxSize     int

	mu      sync.Mutex
	closed  bool
	created int
	pw      *playwright.Playwright
	idle    chan *PooledPage
}

// PooledPage wraps one browser/context/page triple checked out of the pool.
type PooledPage struct {
	Browser playwright.Browser
	Context playwright.BrowserContext
	Page    playwright.Page
}

func (p *PooledPage) close() {
	if p.Page != nil {
		p.Page.Close()
	}
	if p.Context != nil {
		p.Context.Close()
	}
	if p.Browser != nil {
		p.Browser.Close()
	}
}

// NewPagePool starts Playwright and builds an empty bounded pool. maxSize<=0
// means no pooling: every Acquire launches a standalone page and Release
// closes it immediately.
func NewPagePool(fingerprint FingerprintConfig, proxy ProxyConfig, maxSize int) (*PagePool, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindInternal, "start playwright", err)
	}
	return &PagePool{
		fingerprint: fingerprint,
		proxy:       proxy,
		maxSize:     maxSize,
		pw:          pw,
		idle:        make(chan *PooledPage, max(1, maxSize)),
	}, nil
}

// Acquire borrows a page from the pool, launching a new one if there's
// capacity, or blocking for a returned page otherwise.
func (p *PagePool) Acquire(ctx context.Context) (*PooledPage, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, engineerr.New(engineerr.KindInternal, "page pool is closed")
	}
	select {
	case page := <-p.idle:
		p.mu.Unlock()
		return page, nil
	default:
	}
	if p.maxSize <= 0 || p.created < p.maxSize {
		p.created++
		p.mu.Unlock()
		page, err := p.launch(ctx)
		if err != nil {
			p.mu.Lock()
			p.created--
			p.mu.Unlock()
			return nil, err
		}
		return page, nil
	}
	p.mu.Unlock()

	select {
	case page := <-p.idle:
		return page, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a page to the pool, or closes it if the pool is full or
// closed.
func (p *PagePool) Release(page *PooledPage) {
	if page == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.maxSize <= 0 {
		page.close()
		p.created--
		return
	}
	select {
	case p.idle <- page:
	default:
		page.close()
		p.created--
	}
}

// Close tears down every pooled page and stops Playwright.
func (p *PagePool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.idle)
	for page := range p.idle {
		page.close()
	}
	p.created = 0
	if err := p.pw.Stop(); err != nil {
		return engineerr.Wrap(engineerr.KindInternal, "stop playwright", err)
	}
	return nil
}

func (p *PagePool) launch(ctx context.Context) (*PooledPage, error) {
	useProxy := ProbeProxy(p.proxy)

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args:     append([]string{}, LaunchArgs...),
		Timeout:  playwright.Float(float64(30 * time.Second / time.Millisecond)),
	}
	if useProxy {
		launchOpts.Proxy = &playwright.Proxy{Server: p.proxy.Server}
	}

	browser, err := p.pw.Chromium.Launch(launchOpts)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindInternal, "launch browser", err)
	}

	hour := time.Now().Hour()
	colorScheme := playwright.ColorSchemeLight
	if PreferDarkColorScheme(hour) {
		colorScheme = playwright.ColorSchemeDark
	}

	browserContext, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(p.fingerprint.UserAgent),
		Viewport: &playwright.Size{
			Width:  p.fingerprint.ViewportWidth,
			Height: p.fingerprint.ViewportHeight,
		},
		Locale:      playwright.String(p.fingerprint.Locale),
		ColorScheme: colorScheme,
	})
	if err != nil {
		browser.Close()
		return nil, engineerr.Wrap(engineerr.KindInternal, "create browser context", err)
	}
	if err := browserContext.AddInitScript(playwright.Script{Content: playwright.String(AntiDetectionScript)}); err != nil {
		browserContext.Close()
		browser.Close()
		return nil, engineerr.Wrap(engineerr.KindInternal, "inject anti-detection script", err)
	}

	page, err := browserContext.NewPage()
	if err != nil {
		browserContext.Close()
		browser.Close()
		return nil, engineerr.Wrap(engineerr.KindInternal, "open page", err)
	}

	return &PooledPage{Browser: browser, Context: browserContext, Page: page}, nil
}

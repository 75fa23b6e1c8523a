// Package renderer implements the browser session used for shelf traversal,
// backed by headless Chrome via chromedp. Unlike a one-shot fetcher, a session
// keeps a single tab alive across calls so pagination clicks preserve page
// state between shelves.
package renderer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/shelfwatch/price-crawler/internal/catalog"
)

// nextControlSelector matches the pagination forward control across the
// storefronts we crawl: explicit rel=next links plus the class-name
// conventions, including the Romanian "următoarea".
const nextControlSelector = `a[rel='next'], [class*='next'], [class*='urmato']`

// Config controls the browser session.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	Headless          bool
}

// Session is a live headless-Chrome tab implementing catalog.Renderer. It is
// bound to one traversal at a time and is not safe for concurrent use.
type Session struct {
	cfg         Config
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	logger      *zap.Logger
}

// NewSession starts a browser and opens the tab the session will drive.
func NewSession(cfg Config, logger *zap.Logger) (*Session, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("browser warmup: %w", err)
	}

	return &Session{
		cfg:         cfg,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		logger:      logger,
	}, nil
}

// Close tears down the tab and the browser process.
func (s *Session) Close(ctx context.Context) error {
	s.tabCancel()
	s.allocCancel()
	return nil
}

// Navigate loads a URL in the session tab and waits for the body to be ready.
func (s *Session) Navigate(ctx context.Context, url string) error {
	actions := []chromedp.Action{
		s.userAgentAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
	}
	if err := s.run(ctx, actions...); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// CurrentURL reports the tab's location after any client-side redirects.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var u string
	if err := s.run(ctx, chromedp.Location(&u)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return u, nil
}

// PageSource snapshots the rendered DOM.
func (s *Session) PageSource(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read page source: %w", err)
	}
	return html, nil
}

// nextControl wraps the DOM node chromedp resolved for the pagination control.
type nextControl struct {
	node *cdp.Node
}

func (c *nextControl) Disabled() bool {
	if _, ok := nodeAttribute(c.node, "disabled"); ok {
		return true
	}
	class, _ := nodeAttribute(c.node, "class")
	class = strings.ToLower(class)
	return strings.Contains(class, "disabled") || strings.Contains(class, "inactive")
}

// nodeAttribute reads one attribute from the node's flat name/value pair
// slice.
func nodeAttribute(node *cdp.Node, name string) (string, bool) {
	for i := 0; i+1 < len(node.Attributes); i += 2 {
		if node.Attributes[i] == name {
			return node.Attributes[i+1], true
		}
	}
	return "", false
}

// FindNextPageControl looks for a pagination forward control in the current
// page. A nil control means the shelf is the last page.
func (s *Session) FindNextPageControl(ctx context.Context) (catalog.NextControl, error) {
	var nodes []*cdp.Node
	err := s.run(ctx, chromedp.Nodes(nextControlSelector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return nil, fmt.Errorf("query next-page control: %w", err)
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return &nextControl{node: nodes[0]}, nil
}

// Click scrolls the control into view and clicks it, then waits for the next
// page's body. Interception by overlays surfaces as an error the caller may
// retry.
func (s *Session) Click(ctx context.Context, control catalog.NextControl) error {
	nc, ok := control.(*nextControl)
	if !ok {
		return fmt.Errorf("unexpected control type %T", control)
	}
	ids := []cdp.NodeID{nc.node.NodeID}
	actions := []chromedp.Action{
		chromedp.ScrollIntoView(ids, chromedp.ByNodeID),
		chromedp.Click(ids, chromedp.ByNodeID),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
	}
	if err := s.run(ctx, actions...); err != nil {
		return fmt.Errorf("click next-page control: %w", err)
	}
	return nil
}

// AddCookie installs a cookie for the domain before navigation, used for
// consent banners and currency selection.
func (s *Session) AddCookie(ctx context.Context, domain, name, value string) error {
	action := chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookie(name, value).
			WithDomain(domain).
			WithPath("/").
			Do(ctx)
	})
	if err := s.run(ctx, action); err != nil {
		return fmt.Errorf("set cookie %s: %w", name, err)
	}
	return nil
}

func (s *Session) userAgentAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if s.cfg.UserAgent == "" {
			return nil
		}
		return emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx)
	})
}

// run executes actions in the session tab under the navigation timeout,
// honoring cancellation of the caller's context.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	taskCtx, cancel := context.WithTimeout(s.tabCtx, s.cfg.NavigationTimeout)
	defer cancel()

	stop := forwardCancel(ctx, cancel)
	defer stop()

	return chromedp.Run(taskCtx, actions...)
}

// forwardCancel cancels the tab-scoped context when the caller's context is
// canceled. The returned stop detaches the link; after stop returns, cancel
// is guaranteed not to fire on the caller's behalf.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	stop := context.AfterFunc(parent, cancel)
	return func() { stop() }
}

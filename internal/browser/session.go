// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/kiteauth/internal/config"
	"github.com/xkilldash9x/kiteauth/internal/observability"
)

// ChromeSession is a single browser tab driven over CDP. It implements Page.
type ChromeSession struct {
	id          string
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	cfg         config.BrowserConfig
	logger      *zap.Logger

	mu       sync.Mutex
	isClosed bool
}

var _ Page = (*ChromeSession)(nil)

// NewChromeSession launches a browser process and attaches to its first tab.
// The session outlives ctx only as long as ctx is not canceled; call Close to
// release it explicitly.
func NewChromeSession(ctx context.Context, cfg config.BrowserConfig) (*ChromeSession, error) {
	opts, err := AllocatorOptions(cfg)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.New().String()
	logger := observability.GetLogger().Named("browser").With(zap.String("session_id", sessionID))

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithErrorf(logger.Sugar().Debugf))

	newPageEvents(tabCtx, logger).listen(tabCtx)

	// The first Run starts the browser and creates the target.
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	logger.Info("Browser session started.", zap.Bool("headless", cfg.Headless))
	return &ChromeSession{
		id:          sessionID,
		ctx:         tabCtx,
		cancel:      tabCancel,
		allocCancel: allocCancel,
		cfg:         cfg,
		logger:      logger,
	}, nil
}

// ID returns the session identifier used in logs.
func (s *ChromeSession) ID() string { return s.id }

// Close shuts the tab and the browser process. Safe to call more than once.
func (s *ChromeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed {
		return nil
	}
	s.isClosed = true

	s.logger.Info("Closing browser session.")
	err := chromedp.Cancel(s.ctx)
	s.cancel()
	s.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

// Done is closed when the browser goes away, including when the user closes
// the window.
func (s *ChromeSession) Done() <-chan struct{} { return s.ctx.Done() }

// run executes actions on the tab, bounded by both the session and ctx.
func (s *ChromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	if err := chromedp.Run(opCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.ctx.Err() != nil {
			return fmt.Errorf("browser session closed: %w", s.ctx.Err())
		}
		return err
	}
	return nil
}

func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	s.logger.Info("Navigating.", zap.String("url", url))

	navTimeout := s.cfg.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 60 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()

	if err := s.run(navCtx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		if errors.Is(navCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("navigation to %s timed out after %s: %w", url, navTimeout, err)
		}
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (s *ChromeSession) URL(ctx context.Context) (string, error) {
	var u string
	if err := s.run(ctx, chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

func (s *ChromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page markup: %w", err)
	}
	return html, nil
}

func (s *ChromeSession) Count(ctx context.Context, spec LocatorSpec) (int, error) {
	q, err := spec.Query()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.Evaluate(ctx, fmt.Sprintf("(%s).length", q), &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *ChromeSession) WaitFor(ctx context.Context, spec LocatorSpec) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		n, err := s.Count(ctx, spec)
		if err == nil && n > 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", spec, ctx.Err())
		case <-ticker.C:
		}
	}
}

// elementScript wraps body in a function receiving the index-th match as el.
// It throws when the element is missing so Evaluate reports an error.
func elementScript(spec LocatorSpec, index int, body string) (string, error) {
	expr, err := spec.Element(index)
	if err != nil {
		return "", err
	}
	msg, err := jsoniter.MarshalToString("no element at " + describe(spec, index))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(function(){var el=%s;if(!el){throw new Error(%s);}%s})()`, expr, msg, body), nil
}

func (s *ChromeSession) Value(ctx context.Context, spec LocatorSpec, index int) (string, error) {
	script, err := elementScript(spec, index, `return el.value==null?'':String(el.value);`)
	if err != nil {
		return "", err
	}
	var v string
	if err := s.Evaluate(ctx, script, &v); err != nil {
		return "", err
	}
	return v, nil
}

// setValueBody uses the native value setter so framework-controlled inputs
// observe the write, then dispatches input and change.
const setValueBody = `var v=%s;el.focus();
var proto=Object.getPrototypeOf(el);var d=Object.getOwnPropertyDescriptor(proto,'value');
if(d&&d.set){d.set.call(el,v);}else{el.value=v;}
el.dispatchEvent(new Event('input',{bubbles:true}));
el.dispatchEvent(new Event('change',{bubbles:true}));
return true;`

func (s *ChromeSession) SetValue(ctx context.Context, spec LocatorSpec, index int, value string) error {
	lit, err := jsoniter.MarshalToString(value)
	if err != nil {
		return err
	}
	script, err := elementScript(spec, index, fmt.Sprintf(setValueBody, lit))
	if err != nil {
		return err
	}
	return s.Evaluate(ctx, script, nil)
}

func (s *ChromeSession) Focus(ctx context.Context, spec LocatorSpec, index int) error {
	script, err := elementScript(spec, index, `el.focus();return true;`)
	if err != nil {
		return err
	}
	return s.Evaluate(ctx, script, nil)
}

func (s *ChromeSession) Click(ctx context.Context, spec LocatorSpec, index int) error {
	expr, err := spec.Element(index)
	if err != nil {
		return err
	}
	opCtx, cancel := s.withClickTimeout(ctx)
	defer cancel()
	if err := s.run(opCtx, chromedp.Click(expr, chromedp.ByJSPath)); err != nil {
		return fmt.Errorf("click on %s failed: %w", describe(spec, index), err)
	}
	return nil
}

func (s *ChromeSession) SendKeys(ctx context.Context, spec LocatorSpec, index int, keys string) error {
	expr, err := spec.Element(index)
	if err != nil {
		return err
	}
	opCtx, cancel := s.withClickTimeout(ctx)
	defer cancel()
	if err := s.run(opCtx, chromedp.SendKeys(expr, keys, chromedp.ByJSPath)); err != nil {
		return fmt.Errorf("keystrokes to %s failed: %w", describe(spec, index), err)
	}
	return nil
}

func (s *ChromeSession) Evaluate(ctx context.Context, script string, res interface{}) error {
	if err := s.run(ctx, chromedp.Evaluate(script, res)); err != nil {
		return fmt.Errorf("script evaluation failed: %w", err)
	}
	return nil
}

func (s *ChromeSession) withClickTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.cfg.ClickTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

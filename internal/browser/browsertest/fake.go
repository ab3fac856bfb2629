// Package browsertest provides an in-memory browser.Page for tests.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/xkilldash9x/kiteauth/internal/browser"
)

// Element is a fake DOM element.
type Element struct {
	Value  string
	Keys   string
	Clicks int

	// Injected failures.
	SetValueErr error
	SendKeysErr error
	ClickErr    error
}

// Page is a scripted browser.Page. Elements are keyed by the exact
// LocatorSpec that finds them; a spec with no entry matches nothing.
type Page struct {
	mu       sync.Mutex
	elements map[browser.LocatorSpec][]*Element
	url      string
	markup   string
	calls    []string

	NavigateErr error
	// OnClick and OnKeys run after a successful click or keystroke dispatch.
	OnClick func(p *Page, spec browser.LocatorSpec, index int)
	OnKeys  func(p *Page, spec browser.LocatorSpec, index int, keys string)
	// EvaluateFunc handles Evaluate; without it scripts succeed with no result.
	EvaluateFunc func(script string, res interface{}) error
}

var _ browser.Page = (*Page)(nil)

// NewPage returns an empty fake page.
func NewPage() *Page {
	return &Page{elements: make(map[browser.LocatorSpec][]*Element)}
}

// Add registers elements under spec and returns the first one.
func (p *Page) Add(spec browser.LocatorSpec, elems ...*Element) *Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(elems) == 0 {
		elems = []*Element{{}}
	}
	p.elements[spec] = append(p.elements[spec], elems...)
	return elems[0]
}

// Remove drops every element registered under spec.
func (p *Page) Remove(spec browser.LocatorSpec) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, spec)
}

// SetURL sets the current URL.
func (p *Page) SetURL(u string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = u
}

// SetMarkup sets what HTML returns.
func (p *Page) SetMarkup(html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.markup = html
}

// Calls returns a copy of the recorded operations, e.g. "click css=button[0]".
func (p *Page) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// CallsWithPrefix filters Calls by operation prefix.
func (p *Page) CallsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range p.Calls() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (p *Page) record(format string, args ...interface{}) {
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

func (p *Page) element(spec browser.LocatorSpec, index int) (*Element, error) {
	list := p.elements[spec]
	if index < 0 || index >= len(list) {
		return nil, fmt.Errorf("no element at %s[%d]", spec, index)
	}
	return list[index], nil
}

func (p *Page) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("navigate %s", url)
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.url = url
	return nil
}

func (p *Page) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.markup, nil
}

func (p *Page) Count(_ context.Context, spec browser.LocatorSpec) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("count %s", spec)
	return len(p.elements[spec]), nil
}

// WaitFor returns at once when spec matches, otherwise blocks until ctx ends.
func (p *Page) WaitFor(ctx context.Context, spec browser.LocatorSpec) error {
	p.mu.Lock()
	p.record("wait %s", spec)
	n := len(p.elements[spec])
	p.mu.Unlock()
	if n > 0 {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (p *Page) Value(_ context.Context, spec browser.LocatorSpec, index int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, err := p.element(spec, index)
	if err != nil {
		return "", err
	}
	return el.Value, nil
}

func (p *Page) SetValue(_ context.Context, spec browser.LocatorSpec, index int, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("set %s[%d]=%s", spec, index, value)
	el, err := p.element(spec, index)
	if err != nil {
		return err
	}
	if el.SetValueErr != nil {
		return el.SetValueErr
	}
	el.Value = value
	return nil
}

func (p *Page) Focus(_ context.Context, spec browser.LocatorSpec, index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("focus %s[%d]", spec, index)
	_, err := p.element(spec, index)
	return err
}

func (p *Page) Click(_ context.Context, spec browser.LocatorSpec, index int) error {
	p.mu.Lock()
	p.record("click %s[%d]", spec, index)
	el, err := p.element(spec, index)
	if err == nil && el.ClickErr != nil {
		err = el.ClickErr
	}
	if err == nil {
		el.Clicks++
	}
	hook := p.OnClick
	p.mu.Unlock()

	if err != nil {
		return err
	}
	if hook != nil {
		hook(p, spec, index)
	}
	return nil
}

func (p *Page) SendKeys(_ context.Context, spec browser.LocatorSpec, index int, keys string) error {
	p.mu.Lock()
	p.record("keys %s[%d]=%q", spec, index, keys)
	el, err := p.element(spec, index)
	if err == nil && el.SendKeysErr != nil {
		err = el.SendKeysErr
	}
	if err == nil {
		el.Keys += keys
	}
	hook := p.OnKeys
	p.mu.Unlock()

	if err != nil {
		return err
	}
	if hook != nil {
		hook(p, spec, index, keys)
	}
	return nil
}

func (p *Page) Evaluate(_ context.Context, script string, res interface{}) error {
	p.mu.Lock()
	p.record("eval")
	fn := p.EvaluateFunc
	p.mu.Unlock()
	if fn != nil {
		return fn(script, res)
	}
	return nil
}

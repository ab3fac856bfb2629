// internal/browser/locator.go
package browser

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// Strategy tags how a LocatorSpec selector is interpreted.
type Strategy string

const (
	StrategyCSS      Strategy = "css"
	StrategyXPath    Strategy = "xpath"
	StrategyID       Strategy = "id"
	StrategyName     Strategy = "name"
	StrategyLinkText Strategy = "linktext"
	StrategyJSPath   Strategy = "jspath"
)

// LocatorSpec is a single (strategy, selector) pair.
type LocatorSpec struct {
	Strategy Strategy
	Selector string
}

func CSS(selector string) LocatorSpec   { return LocatorSpec{Strategy: StrategyCSS, Selector: selector} }
func XPath(selector string) LocatorSpec { return LocatorSpec{Strategy: StrategyXPath, Selector: selector} }
func ID(id string) LocatorSpec          { return LocatorSpec{Strategy: StrategyID, Selector: id} }
func Name(name string) LocatorSpec      { return LocatorSpec{Strategy: StrategyName, Selector: name} }

// LinkText matches anchors whose text contains the given fragment.
func LinkText(text string) LocatorSpec { return LocatorSpec{Strategy: StrategyLinkText, Selector: text} }

// JSPath matches the single element a JavaScript expression evaluates to,
// e.g. "document.activeElement".
func JSPath(expr string) LocatorSpec { return LocatorSpec{Strategy: StrategyJSPath, Selector: expr} }

func (l LocatorSpec) String() string {
	return fmt.Sprintf("%s=%s", l.Strategy, l.Selector)
}

// Query returns a JavaScript expression evaluating to an array of the
// elements the locator matches, in document order.
func (l LocatorSpec) Query() (string, error) {
	if l.Strategy == StrategyJSPath {
		if strings.TrimSpace(l.Selector) == "" {
			return "", fmt.Errorf("empty jspath expression")
		}
		return fmt.Sprintf("[%s].filter(Boolean)", l.Selector), nil
	}

	lit, err := jsoniter.MarshalToString(l.Selector)
	if err != nil {
		return "", fmt.Errorf("failed to encode selector %q: %w", l.Selector, err)
	}

	switch l.Strategy {
	case StrategyCSS:
		return fmt.Sprintf("Array.from(document.querySelectorAll(%s))", lit), nil
	case StrategyXPath:
		return fmt.Sprintf(`(function(){var r=document.evaluate(%s,document,null,XPathResult.ORDERED_NODE_SNAPSHOT_TYPE,null);var a=[];for(var i=0;i<r.snapshotLength;i++){a.push(r.snapshotItem(i));}return a;})()`, lit), nil
	case StrategyID:
		return fmt.Sprintf("[document.getElementById(%s)].filter(Boolean)", lit), nil
	case StrategyName:
		return fmt.Sprintf("Array.from(document.getElementsByName(%s))", lit), nil
	case StrategyLinkText:
		return fmt.Sprintf("Array.from(document.querySelectorAll('a')).filter(function(a){return (a.textContent||'').indexOf(%s)!==-1;})", lit), nil
	default:
		return "", fmt.Errorf("unknown locator strategy %q", l.Strategy)
	}
}

// Element returns an expression for the index-th match, suitable for
// chromedp.ByJSPath.
func (l LocatorSpec) Element(index int) (string, error) {
	q, err := l.Query()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(%s)[%d]", q, index), nil
}

// Locators is an ordered list of alternatives for one logical element.
// Earlier entries are preferred.
type Locators []LocatorSpec

func (ls Locators) String() string {
	parts := make([]string, len(ls))
	for i, l := range ls {
		parts[i] = l.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

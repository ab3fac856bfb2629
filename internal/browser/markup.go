// internal/browser/markup.go
package browser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	jsoniter "github.com/json-iterator/go"
)

const (
	payloadMarker       = `{"status"`
	payloadSnippetLimit = 1000
)

// MarkupReport is what InspectMarkup found in a page.
type MarkupReport struct {
	Title string
	// Signature is the first configured error signature present, or "".
	Signature string
	// Payload is an embedded {"status"...} JSON document, truncated to
	// 1000 bytes when it cannot be delimited.
	Payload string
}

// HasError reports whether a provider error signature was found.
func (r MarkupReport) HasError() bool { return r.Signature != "" }

// InspectMarkup parses page HTML and looks for known provider error
// signatures (case-insensitive) and an embedded status payload.
func InspectMarkup(html string, signatures []string) (MarkupReport, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return MarkupReport{}, fmt.Errorf("failed to parse page markup: %w", err)
	}

	report := MarkupReport{Title: strings.TrimSpace(doc.Find("title").First().Text())}

	bodyText := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	haystacks := []string{strings.ToLower(bodyText), strings.ToLower(html)}
	for _, sig := range signatures {
		needle := strings.ToLower(strings.TrimSpace(sig))
		if needle == "" {
			continue
		}
		for _, h := range haystacks {
			if strings.Contains(h, needle) {
				report.Signature = sig
				break
			}
		}
		if report.Signature != "" {
			break
		}
	}

	// Browsers render raw JSON responses inside a <pre>.
	doc.Find("pre").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		report.Payload = extractPayload(s.Text())
		return report.Payload == ""
	})
	if report.Payload == "" {
		report.Payload = extractPayload(doc.Find("body").Text())
	}
	if report.Payload == "" {
		report.Payload = extractPayload(html)
	}
	return report, nil
}

// extractPayload returns the JSON object starting at the first status marker.
func extractPayload(s string) string {
	start := strings.Index(s, payloadMarker)
	if start < 0 {
		return ""
	}
	rest := s[start:]

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				candidate := rest[:i+1]
				if jsoniter.Valid([]byte(candidate)) {
					return truncate(candidate, payloadSnippetLimit)
				}
				return truncate(rest, payloadSnippetLimit)
			}
		}
	}
	return truncate(rest, payloadSnippetLimit)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

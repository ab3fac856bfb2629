// Package otp retrieves one-time passcodes from a mailbox and enters them
// into the verification page.
package otp

import "regexp"

// codePattern matches the first run of 4 to 8 digits standing alone as a word.
var codePattern = regexp.MustCompile(`\b(\d{4,8})\b`)

// Extract returns the first 4 to 8 digit run in text. Any such number
// qualifies, so an order number that precedes the real code wins.
func Extract(text string) (string, bool) {
	m := codePattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

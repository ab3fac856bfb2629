// internal/login/locators.go
package login

import "github.com/xkilldash9x/kiteauth/internal/browser"

// Locators groups the element alternatives the flow looks for.
type Locators struct {
	Username      browser.Locators
	Password      browser.Locators
	Submit        browser.Locators
	RevealMethods browser.Locators
	EmailMethod   browser.Locators
	OtpSubmit     browser.Locators
}

const lowerText = `translate(., 'ABCDEFGHIJKLMNOPQRSTUVWXYZ','abcdefghijklmnopqrstuvwxyz')`

// DefaultLocators matches the Kite login and two-factor pages.
func DefaultLocators() Locators {
	return Locators{
		Username: browser.Locators{
			browser.ID("userid"),
			browser.ID("user_id"),
			browser.Name("userid"),
			browser.Name("user_id"),
			browser.CSS(`input[type="text"]`),
		},
		Password: browser.Locators{
			browser.ID("password"),
			browser.Name("password"),
			browser.CSS(`input[type="password"]`),
		},
		Submit: browser.Locators{
			browser.XPath(`//button[contains(., 'Login') or contains(., 'Log in')]`),
			browser.CSS(`button[type="submit"]`),
			browser.XPath(`//button[contains(@class,'login')]`),
		},
		RevealMethods: browser.Locators{
			browser.XPath(`//a[contains(., 'Problem with Mobile App')]`),
			browser.XPath(`//button[contains(., 'Problem with Mobile App')]`),
			browser.XPath(`//a[contains(., 'Problem') and contains(., 'Mobile App')]`),
		},
		EmailMethod: browser.Locators{
			browser.XPath(`//button[contains(` + lowerText + `, 'email')]`),
			browser.XPath(`//button[contains(` + lowerText + `, 'sms')]`),
			browser.XPath(`//a[contains(` + lowerText + `, 'email')]`),
			browser.XPath(`//div[contains(` + lowerText + `, 'email')]`),
			browser.XPath(`//button[contains(., 'Use Email') or contains(., 'Use SMS') or contains(., 'Use SMS/Email')]`),
			browser.LinkText("Email"),
		},
		OtpSubmit: browser.Locators{
			browser.XPath(`//button[contains(., 'Continue') or contains(., 'Verify') or contains(., 'Submit') or contains(., 'Login')]`),
		},
	}
}

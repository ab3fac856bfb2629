// internal/login/options.go
package login

import (
	"time"

	"github.com/xkilldash9x/kiteauth/internal/config"
	"github.com/xkilldash9x/kiteauth/internal/otp"
)

// Options tunes a Machine. Zero durations disable the corresponding wait.
type Options struct {
	LoginURL        string
	SuccessDomain   string
	SuccessWait     time.Duration
	ErrorSignatures []string
	CheckboxKeyword string

	LocatorTimeout time.Duration
	// ResolveBudget bounds one whole locator resolution; zero leaves only the
	// per-locator waits.
	ResolveBudget  time.Duration
	ClickTimeout   time.Duration
	RevealWait     time.Duration
	SettleDelay    time.Duration

	Window              otp.Window
	OtpTimeout          time.Duration
	PollInterval        time.Duration
	InitialDelay        time.Duration
	RetryWithoutSubject bool

	Locators Locators
}

// defaultRevealWait bounds each "problem with mobile app" locator; the link
// is absent on most runs.
const defaultRevealWait = 4 * time.Second

// OptionsFromConfig maps configuration onto machine options. loginURL is
// resolved by the caller from the portal settings.
func OptionsFromConfig(cfg config.Interface, loginURL string) Options {
	b := cfg.Browser()
	p := cfg.Portal()
	o := cfg.OTP()

	return Options{
		LoginURL:        loginURL,
		SuccessDomain:   p.SuccessDomain,
		SuccessWait:     p.SuccessWait,
		ErrorSignatures: p.ErrorSignatures,
		CheckboxKeyword: p.CheckboxKeyword,

		LocatorTimeout: b.LocatorTimeout,
		ResolveBudget:  b.ResolveBudget,
		ClickTimeout:   b.ClickTimeout,
		RevealWait:     defaultRevealWait,
		SettleDelay:    b.SettleDelay,

		Window: otp.Window{
			Sender:           o.Sender,
			Subject:          o.Subject,
			FreshnessMinutes: o.WindowMinutes,
		},
		OtpTimeout:          o.Timeout,
		PollInterval:        o.PollInterval,
		InitialDelay:        o.InitialDelay,
		RetryWithoutSubject: o.RetryWithoutSubject,

		Locators: DefaultLocators(),
	}
}

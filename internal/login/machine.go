// internal/login/machine.go
package login

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/kiteauth/internal/browser"
	"github.com/xkilldash9x/kiteauth/internal/mailbox"
	"github.com/xkilldash9x/kiteauth/internal/observability"
	"github.com/xkilldash9x/kiteauth/internal/otp"
)

// CodeSource finds an OTP in the mailbox. *otp.Retriever implements it.
type CodeSource interface {
	Poll(ctx context.Context, w otp.Window, timeout, interval time.Duration) (*otp.Match, error)
}

// CodeEntry places an OTP into the page. *otp.Chain implements it.
type CodeEntry interface {
	Enter(ctx context.Context, page browser.Page, code string) (string, error)
}

var errOtpTimeout = errors.New("no OTP message arrived before the timeout")

// providerError is the authoritative failure found in the final page.
type providerError struct {
	signature string
	payload   string
}

func (e *providerError) Error() string {
	return fmt.Sprintf("provider error detected in page: %s", e.signature)
}

// step is one unit of work inside a transition.
type step struct {
	name   string
	policy Policy
	// reason classifies a gating failure.
	reason Reason
	run    func(ctx context.Context, r *run) error
}

// transition moves the flow from one state to the next once all its steps ran.
type transition struct {
	from, to State
	steps    []step
}

// run is the per-call working state.
type run struct {
	cred     Credential
	match    *otp.Match
	strategy string
	finalURL string
}

// Machine runs the login flow against a page.
type Machine struct {
	page     browser.Page
	resolver *browser.Resolver
	filler   *browser.FormFiller
	codes    CodeSource
	entry    CodeEntry
	opts     Options
	logger   *zap.Logger
	table    []transition
}

// NewMachine wires a machine. The page is used for the whole run and is not
// closed by the machine.
func NewMachine(page browser.Page, codes CodeSource, entry CodeEntry, opts Options) *Machine {
	resolver := browser.NewResolver(page, opts.ResolveBudget)
	m := &Machine{
		page:     page,
		resolver: resolver,
		filler:   browser.NewFormFiller(resolver, opts.LocatorTimeout),
		codes:    codes,
		entry:    entry,
		opts:     opts,
		logger:   observability.GetLogger().Named("login"),
	}
	m.table = m.transitions()
	return m
}

// transitions is the declarative flow. Only credential, OTP and final
// verification steps are gating.
func (m *Machine) transitions() []transition {
	return []transition{
		{from: Start, to: CredentialsEntered, steps: []step{
			{name: "navigate", policy: Gating, reason: ReasonNavigationFailed, run: m.navigate},
			{name: "fill username", policy: BestEffort, run: m.fillUsername},
			{name: "toggle checkbox", policy: BestEffort, run: m.toggleCheckbox},
			{name: "fill password", policy: Gating, reason: ReasonCredentialsNotFound, run: m.fillPassword},
		}},
		{from: CredentialsEntered, to: Submitted, steps: []step{
			{name: "submit credentials", policy: BestEffort, run: m.submitCredentials},
		}},
		{from: Submitted, to: TwoFactorMethodSelected, steps: []step{
			{name: "reveal alternate methods", policy: BestEffort, run: m.clickFirst(func(l Locators) browser.Locators { return l.RevealMethods }, m.opts.RevealWait)},
			{name: "select email method", policy: BestEffort, run: m.clickFirst(func(l Locators) browser.Locators { return l.EmailMethod }, m.opts.LocatorTimeout)},
		}},
		{from: TwoFactorMethodSelected, to: OtpEntered, steps: []step{
			{name: "retrieve OTP", policy: Gating, reason: ReasonOtpTimeout, run: m.retrieveCode},
			{name: "enter OTP", policy: Gating, reason: ReasonOtpEntryFailed, run: m.enterCode},
		}},
		{from: OtpEntered, to: Completed, steps: []step{
			{name: "submit OTP", policy: BestEffort, run: m.submitCode},
			{name: "verify", policy: Gating, reason: ReasonProviderError, run: m.verify},
		}},
	}
}

// Run drives the flow to a terminal state.
func (m *Machine) Run(ctx context.Context, cred Credential) Result {
	r := &run{cred: cred}
	state := Start
	trace := []State{state}

	for _, t := range m.table {
		if t.from != state {
			panic(fmt.Sprintf("login: transition table out of order at %s", t.from))
		}
		log := m.logger.With(zap.Stringer("from", t.from), zap.Stringer("to", t.to))
		for _, s := range t.steps {
			err := s.run(ctx, r)
			if err == nil {
				continue
			}
			if s.policy == BestEffort && ctx.Err() == nil {
				log.Warn("Optional step failed; continuing.", zap.String("step", s.name), zap.Error(err))
				continue
			}
			res := m.failure(ctx, s, err)
			res.Code = codeOf(r)
			res.MessageID = messageOf(r)
			res.FinalURL = r.finalURL
			res.Trace = append(trace, terminalState(res.Outcome))
			log.Error("Login aborted.", zap.String("step", s.name), zap.Stringer("result", res), zap.Error(err))
			return res
		}
		state = t.to
		trace = append(trace, state)
		log.Info("Transition complete.")
	}

	return Result{
		Outcome:   OutcomeCompleted,
		Code:      codeOf(r),
		MessageID: messageOf(r),
		Strategy:  r.strategy,
		FinalURL:  r.finalURL,
		Trace:     trace,
	}
}

// failure classifies a step error into a terminal result. A canceled run is
// reported as such whichever step it interrupted.
func (m *Machine) failure(ctx context.Context, s step, err error) Result {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{Outcome: OutcomeAborted, Reason: ReasonCanceled, Detail: ctxErr.Error()}
	}
	if mailbox.IsFatal(err) {
		return Result{Outcome: OutcomeExternalError, Detail: err.Error()}
	}
	res := Result{Outcome: OutcomeAborted, Reason: s.reason, Detail: err.Error()}
	var pe *providerError
	if errors.As(err, &pe) && pe.payload != "" {
		res.Detail = pe.payload
	}
	return res
}

func terminalState(o Outcome) State {
	switch o {
	case OutcomeExternalError:
		return ExternalError
	case OutcomeCompleted:
		return Completed
	}
	return Aborted
}

func codeOf(r *run) string {
	if r.match == nil {
		return ""
	}
	return r.match.Code
}

func messageOf(r *run) string {
	if r.match == nil {
		return ""
	}
	return r.match.MessageID
}

// -- Steps --

func (m *Machine) navigate(ctx context.Context, _ *run) error {
	if err := m.page.Navigate(ctx, m.opts.LoginURL); err != nil {
		return err
	}
	return sleep(ctx, m.opts.SettleDelay)
}

func (m *Machine) fillUsername(ctx context.Context, r *run) error {
	_, err := m.filler.Fill(ctx, m.opts.Locators.Username, r.cred.Username)
	if errors.Is(err, browser.ErrElementNotFound) {
		// The page shows a remembered user id as text instead of an input.
		m.logger.Info("Username field not present; assuming the page already knows the user.")
		return nil
	}
	return err
}

func (m *Machine) toggleCheckbox(ctx context.Context, _ *run) error {
	_, err := m.filler.ToggleCheckboxIfPresent(ctx, m.opts.CheckboxKeyword)
	return err
}

func (m *Machine) fillPassword(ctx context.Context, r *run) error {
	_, err := m.filler.Fill(ctx, m.opts.Locators.Password, r.cred.Password)
	return err
}

func (m *Machine) submitCredentials(ctx context.Context, _ *run) error {
	spec, err := m.resolver.Resolve(ctx, m.opts.Locators.Submit, m.opts.ClickTimeout)
	if err == nil {
		if err = m.page.Click(ctx, spec, 0); err == nil {
			return sleep(ctx, m.opts.SettleDelay)
		}
	}
	m.logger.Info("Submit control not usable; pressing Enter instead.", zap.Error(err))
	if keyErr := m.page.SendKeys(ctx, browser.ActiveElement, 0, browser.KeyEnter); keyErr != nil {
		return errors.Join(err, keyErr)
	}
	return sleep(ctx, m.opts.SettleDelay)
}

// clickFirst returns a step that clicks the first of a locator group to appear.
func (m *Machine) clickFirst(pick func(Locators) browser.Locators, wait time.Duration) func(context.Context, *run) error {
	return func(ctx context.Context, _ *run) error {
		spec, err := m.resolver.Resolve(ctx, pick(m.opts.Locators), wait)
		if err != nil {
			return err
		}
		if err := m.page.Click(ctx, spec, 0); err != nil {
			return err
		}
		m.logger.Debug("Clicked.", zap.Stringer("locator", spec))
		return sleep(ctx, m.opts.SettleDelay/2)
	}
}

func (m *Machine) retrieveCode(ctx context.Context, r *run) error {
	if err := sleep(ctx, m.opts.InitialDelay); err != nil {
		return err
	}

	window := m.opts.Window
	match, err := m.codes.Poll(ctx, window, m.opts.OtpTimeout, m.opts.PollInterval)
	if err != nil {
		return err
	}
	if match == nil && m.opts.RetryWithoutSubject && window.Subject != "" {
		m.logger.Info("No OTP with subject filter; retrying without it.", zap.String("subject", window.Subject))
		window.Subject = ""
		if match, err = m.codes.Poll(ctx, window, m.opts.OtpTimeout, m.opts.PollInterval); err != nil {
			return err
		}
	}
	if match == nil {
		return errOtpTimeout
	}
	r.match = match
	return nil
}

func (m *Machine) enterCode(ctx context.Context, r *run) error {
	strategy, err := m.entry.Enter(ctx, m.page, r.match.Code)
	if err != nil {
		return err
	}
	r.strategy = strategy
	return nil
}

func (m *Machine) submitCode(ctx context.Context, _ *run) error {
	spec, err := m.resolver.Resolve(ctx, m.opts.Locators.OtpSubmit, m.opts.ClickTimeout)
	if err == nil {
		if err = m.page.Click(ctx, spec, 0); err == nil {
			return nil
		}
	}
	if keyErr := m.page.SendKeys(ctx, browser.ActiveElement, 0, browser.KeyEnter); keyErr != nil {
		return errors.Join(err, keyErr)
	}
	return nil
}

// verify waits for the success domain and then checks the markup. A known
// error signature fails the run whatever the URL says; otherwise the run is
// reported successful even without the success URL.
func (m *Machine) verify(ctx context.Context, r *run) error {
	finalURL, reached := browser.WaitForURLContains(ctx, m.page, m.opts.SuccessDomain, m.opts.SuccessWait, 250*time.Millisecond)
	r.finalURL = finalURL
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !reached {
		m.logger.Warn("Success domain not reached; checking page for errors.", zap.String("url", finalURL), zap.String("success_domain", m.opts.SuccessDomain))
	}

	html, err := m.page.HTML(ctx)
	if err != nil {
		m.logger.Warn("Could not read final page markup.", zap.Error(err))
		return nil
	}
	report, err := browser.InspectMarkup(html, m.opts.ErrorSignatures)
	if err != nil {
		m.logger.Warn("Could not parse final page markup.", zap.Error(err))
		return nil
	}
	if report.HasError() {
		m.logger.Error("Provider error in page.", zap.String("signature", report.Signature), zap.String("payload", report.Payload), zap.String("url", finalURL))
		return &providerError{signature: report.Signature, payload: report.Payload}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

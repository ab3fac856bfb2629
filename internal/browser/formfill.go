// internal/browser/formfill.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/kiteauth/internal/observability"
)

// FillOutcome reports what Fill did to the field.
type FillOutcome int

const (
	Filled FillOutcome = iota
	Skipped
)

func (o FillOutcome) String() string {
	if o == Skipped {
		return "skipped"
	}
	return "filled"
}

// FormFiller writes credential fields and toggles consent checkboxes.
type FormFiller struct {
	resolver   *Resolver
	perAttempt time.Duration
	logger     *zap.Logger
}

// NewFormFiller builds a filler that waits up to perAttempt for each locator.
func NewFormFiller(resolver *Resolver, perAttempt time.Duration) *FormFiller {
	return &FormFiller{
		resolver:   resolver,
		perAttempt: perAttempt,
		logger:     observability.GetLogger().Named("formfill"),
	}
}

// Fill resolves the field and writes value unless the field already holds
// something. A prefilled field is left alone so host-page autofill of the
// user id is never overwritten. Resolution failures are returned as is.
func (f *FormFiller) Fill(ctx context.Context, locators Locators, value string) (FillOutcome, error) {
	spec, err := f.resolver.Resolve(ctx, locators, f.perAttempt)
	if err != nil {
		return Filled, err
	}

	page := f.resolver.Page()
	current, err := page.Value(ctx, spec, 0)
	if err != nil {
		return Filled, fmt.Errorf("failed to read %s: %w", spec, err)
	}
	if strings.TrimSpace(current) != "" {
		f.logger.Info("Field already populated, leaving it unchanged.", zap.Stringer("locator", spec))
		return Skipped, nil
	}

	// SetValue replaces the whole value, which clears the field in the same write.
	if err := page.SetValue(ctx, spec, 0, value); err != nil {
		return Filled, fmt.Errorf("failed to write %s: %w", spec, err)
	}
	f.logger.Debug("Field filled.", zap.Stringer("locator", spec))
	return Filled, nil
}

const toggleCheckboxScript = `(function(keyword){
  keyword = keyword.toLowerCase();
  var toggled = 0;
  var boxes = document.querySelectorAll('input[type="checkbox"]');
  for (var i = 0; i < boxes.length; i++) {
    var cb = boxes[i];
    if (cb.checked || cb.disabled) { continue; }
    var style = window.getComputedStyle(cb);
    if (style.display === 'none' || style.visibility === 'hidden') { continue; }
    var text = [cb.getAttribute('aria-label'), cb.id, cb.name];
    if (cb.id) {
      var lbl = document.querySelector('label[for="' + CSS.escape(cb.id) + '"]');
      if (lbl) { text.push(lbl.textContent); }
    }
    var wrap = cb.closest('label');
    if (wrap) { text.push(wrap.textContent); }
    if (cb.parentElement) { text.push(cb.parentElement.textContent); }
    if (text.join(' ').toLowerCase().indexOf(keyword) === -1) { continue; }
    cb.checked = true;
    cb.dispatchEvent(new Event('change', { bubbles: true }));
    cb.dispatchEvent(new Event('click', { bubbles: true }));
    toggled++;
  }
  return toggled;
})(%s)`

// ToggleCheckboxIfPresent checks every visible, unchecked checkbox whose
// label text contains keyword (case-insensitive). It mutates the checked
// property directly and dispatches change and click, since the host page
// reacts to events rather than the property. It returns how many boxes were
// toggled; zero is not an error.
func (f *FormFiller) ToggleCheckboxIfPresent(ctx context.Context, keyword string) (int, error) {
	if keyword == "" {
		return 0, nil
	}
	lit, err := jsoniter.MarshalToString(keyword)
	if err != nil {
		return 0, err
	}

	var toggled int
	if err := f.resolver.Page().Evaluate(ctx, fmt.Sprintf(toggleCheckboxScript, lit), &toggled); err != nil {
		return 0, fmt.Errorf("checkbox toggle script failed: %w", err)
	}
	if toggled > 0 {
		f.logger.Info("Toggled checkbox(es).", zap.String("keyword", keyword), zap.Int("count", toggled))
	}
	return toggled, nil
}

// ToggleCheckboxScript exposes the generated script for a keyword so fakes
// can recognize it.
func ToggleCheckboxScript(keyword string) string {
	lit, _ := jsoniter.MarshalToString(keyword)
	return fmt.Sprintf(toggleCheckboxScript, lit)
}

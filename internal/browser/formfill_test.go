// internal/browser/formfill_test.go
package browser_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/kiteauth/internal/browser"
	"github.com/xkilldash9x/kiteauth/internal/browser/browsertest"
)

func newFiller(page browser.Page) *browser.FormFiller {
	return browser.NewFormFiller(browser.NewResolver(page, 0), attempt)
}

func TestFormFiller_Fill(t *testing.T) {
	useTestLogger(t)
	ctx := context.Background()
	username := browser.Locators{browser.ID("userid"), browser.CSS(`input[type="text"]`)}

	t.Run("writes an empty field", func(t *testing.T) {
		page := browsertest.NewPage()
		el := page.Add(browser.CSS(`input[type="text"]`))

		outcome, err := newFiller(page).Fill(ctx, username, "AB1234")
		require.NoError(t, err)
		assert.Equal(t, browser.Filled, outcome)
		assert.Equal(t, "AB1234", el.Value)
	})

	t.Run("refilling a filled field is a no-op", func(t *testing.T) {
		page := browsertest.NewPage()
		el := page.Add(browser.ID("userid"))
		f := newFiller(page)

		_, err := f.Fill(ctx, username, "AB1234")
		require.NoError(t, err)
		writes := len(page.CallsWithPrefix("set"))

		outcome, err := f.Fill(ctx, username, "AB1234")
		require.NoError(t, err)
		assert.Equal(t, browser.Skipped, outcome)
		assert.Equal(t, "AB1234", el.Value)
		assert.Len(t, page.CallsWithPrefix("set"), writes)
	})

	t.Run("prefilled value is preserved", func(t *testing.T) {
		page := browsertest.NewPage()
		el := page.Add(browser.ID("userid"), &browsertest.Element{Value: "XY9999"})

		outcome, err := newFiller(page).Fill(ctx, username, "AB1234")
		require.NoError(t, err)
		assert.Equal(t, browser.Skipped, outcome)
		assert.Equal(t, "XY9999", el.Value)
	})

	t.Run("missing field is returned", func(t *testing.T) {
		_, err := newFiller(browsertest.NewPage()).Fill(ctx, username, "AB1234")
		assert.ErrorIs(t, err, browser.ErrElementNotFound)
	})

	t.Run("write failure is returned", func(t *testing.T) {
		page := browsertest.NewPage()
		page.Add(browser.ID("userid"), &browsertest.Element{SetValueErr: errors.New("detached")})

		_, err := newFiller(page).Fill(ctx, username, "AB1234")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "detached")
	})
}

func TestFormFiller_ToggleCheckboxIfPresent(t *testing.T) {
	useTestLogger(t)
	ctx := context.Background()

	t.Run("reports toggled count", func(t *testing.T) {
		page := browsertest.NewPage()
		var script string
		page.EvaluateFunc = func(s string, res interface{}) error {
			script = s
			*(res.(*int)) = 1
			return nil
		}

		n, err := newFiller(page).ToggleCheckboxIfPresent(ctx, "kite web")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, browser.ToggleCheckboxScript("kite web"), script)
		assert.True(t, strings.Contains(script, "dispatchEvent(new Event('change'"))
	})

	t.Run("absence is not an error", func(t *testing.T) {
		n, err := newFiller(browsertest.NewPage()).ToggleCheckboxIfPresent(ctx, "kite web")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("empty keyword skips the script", func(t *testing.T) {
		page := browsertest.NewPage()
		n, err := newFiller(page).ToggleCheckboxIfPresent(ctx, "")
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Empty(t, page.CallsWithPrefix("eval"))
	})

	t.Run("script errors are returned", func(t *testing.T) {
		page := browsertest.NewPage()
		page.EvaluateFunc = func(string, interface{}) error { return errors.New("boom") }
		_, err := newFiller(page).ToggleCheckboxIfPresent(ctx, "kite web")
		assert.Error(t, err)
	})
}

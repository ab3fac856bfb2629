// internal/browser/session_test.go
package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/kiteauth/internal/config"
	"github.com/xkilldash9x/kiteauth/internal/observability"
)

const sessionTestTimeout = 45 * time.Second

const loginFixture = `<html><body>
<form>
  <input id="userid" name="userid" type="text">
  <input id="pw" name="password" type="password">
  <input class="otp" id="otp1"><input class="otp" id="otp2">
  <a href="#email">Use Email instead</a>
  <label><input type="checkbox" id="remember"> Remember me on Kite Web</label>
  <label><input type="checkbox" id="hidden" style="display:none"> Kite Web (hidden)</label>
  <button type="submit" onclick="return false">Login</button>
</form>
<div><input type="checkbox" id="other"> Newsletter</div>
<script>
  window.events = [];
  var u = document.getElementById('userid');
  u.addEventListener('input', function (e) { window.events.push('input:' + e.target.value); });
  u.addEventListener('change', function (e) { window.events.push('change:' + e.target.value); });
  document.getElementById('remember').addEventListener('change', function () { window.events.push('remember'); });
</script>
</body></html>`

// chromePath finds a browser binary or skips the test.
func chromePath(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("browser tests are skipped in short mode")
	}
	if p := os.Getenv("KITEAUTH_TEST_CHROME"); p != "" {
		return p
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell", "chrome"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("no Chrome or Chromium binary found; set KITEAUTH_TEST_CHROME to run browser tests")
	return ""
}

// newTestSession starts a headless session on the login fixture.
func newTestSession(t *testing.T) (*ChromeSession, context.Context) {
	t.Helper()
	chrome := chromePath(t)

	observability.SetLogger(zaptest.NewLogger(t))
	t.Cleanup(observability.ResetForTest)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, loginFixture)
	}))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithTimeout(context.Background(), sessionTestTimeout)
	t.Cleanup(cancel)

	session, err := NewChromeSession(ctx, config.BrowserConfig{
		Headless:          true,
		ExecPath:          chrome,
		UserDataDir:       t.TempDir(),
		NavigationTimeout: 20 * time.Second,
		ClickTimeout:      5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, session.Close()) })

	require.NoError(t, session.Navigate(ctx, server.URL))
	return session, ctx
}

func TestChromeSession(t *testing.T) {
	session, ctx := newTestSession(t)

	t.Run("count per strategy", func(t *testing.T) {
		cases := []struct {
			spec LocatorSpec
			want int
		}{
			{CSS("input.otp"), 2},
			{XPath("//input[@class='otp']"), 2},
			{ID("userid"), 1},
			{ID("missing"), 0},
			{Name("password"), 1},
			{LinkText("Email"), 1},
			{LinkText("SMS"), 0},
			{JSPath("document.body"), 1},
			{JSPath("document.querySelector('#nope')"), 0},
		}
		for _, tc := range cases {
			n, err := session.Count(ctx, tc.spec)
			require.NoError(t, err, tc.spec.String())
			assert.Equal(t, tc.want, n, tc.spec.String())
		}
	})

	t.Run("set value writes then notifies", func(t *testing.T) {
		require.NoError(t, session.SetValue(ctx, ID("userid"), 0, "AB1234"))

		v, err := session.Value(ctx, ID("userid"), 0)
		require.NoError(t, err)
		assert.Equal(t, "AB1234", v)

		var events []string
		require.NoError(t, session.Evaluate(ctx, "window.events", &events))
		assert.Equal(t, []string{"input:AB1234", "change:AB1234"}, events)
	})

	t.Run("index selects among matches", func(t *testing.T) {
		require.NoError(t, session.SetValue(ctx, CSS("input.otp"), 1, "9"))
		v, err := session.Value(ctx, ID("otp2"), 0)
		require.NoError(t, err)
		assert.Equal(t, "9", v)
	})

	t.Run("missing element is an error", func(t *testing.T) {
		err := session.SetValue(ctx, ID("missing"), 0, "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no element at")
	})

	t.Run("keystrokes reach the input", func(t *testing.T) {
		require.NoError(t, session.SendKeys(ctx, ID("otp1"), 0, "7"))
		v, err := session.Value(ctx, ID("otp1"), 0)
		require.NoError(t, err)
		assert.Equal(t, "7", v)
	})

	t.Run("checkbox toggle matches visible labelled boxes once", func(t *testing.T) {
		filler := NewFormFiller(NewResolver(session, 0), time.Second)

		n, err := filler.ToggleCheckboxIfPresent(ctx, "kite web")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		var checked map[string]bool
		require.NoError(t, session.Evaluate(ctx, `({
			remember: document.getElementById('remember').checked,
			hidden: document.getElementById('hidden').checked,
			other: document.getElementById('other').checked
		})`, &checked))
		assert.Equal(t, map[string]bool{"remember": true, "hidden": false, "other": false}, checked)

		n, err = filler.ToggleCheckboxIfPresent(ctx, "kite web")
		require.NoError(t, err)
		assert.Zero(t, n, "checked boxes are left alone")
	})

	t.Run("resolver and filler against the live page", func(t *testing.T) {
		resolver := NewResolver(session, 5*time.Second)
		spec, err := resolver.Resolve(ctx, Locators{ID("user_id"), Name("userid")}, 300*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, Name("userid"), spec)

		outcome, err := NewFormFiller(resolver, time.Second).Fill(ctx, Locators{ID("pw")}, "secret")
		require.NoError(t, err)
		assert.Equal(t, Filled, outcome)
	})

	t.Run("click follows the link", func(t *testing.T) {
		require.NoError(t, session.Click(ctx, LinkText("Email"), 0))
		u, reached := WaitForURLContains(ctx, session, "#email", 5*time.Second, 50*time.Millisecond)
		assert.True(t, reached, u)

		html, err := session.HTML(ctx)
		require.NoError(t, err)
		assert.Contains(t, html, "Remember me on Kite Web")
	})
}

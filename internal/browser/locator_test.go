// internal/browser/locator_test.go
package browser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocatorSpecQuery(t *testing.T) {
	tests := []struct {
		name     string
		spec     LocatorSpec
		contains []string
	}{
		{"css", CSS(`input[type="password"]`), []string{"document.querySelectorAll", `"input[type=\"password\"]"`}},
		{"xpath", XPath("//button[contains(., 'Login')]"), []string{"document.evaluate", "ORDERED_NODE_SNAPSHOT_TYPE", `"//button[contains(., 'Login')]"`}},
		{"id", ID("userid"), []string{`document.getElementById("userid")`}},
		{"name", Name("user_id"), []string{`document.getElementsByName("user_id")`}},
		{"link text", LinkText("Email"), []string{"querySelectorAll('a')", `"Email"`}},
		{"jspath", JSPath("document.activeElement"), []string{"[document.activeElement].filter(Boolean)"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := tt.spec.Query()
			require.NoError(t, err)
			for _, c := range tt.contains {
				assert.Contains(t, q, c)
			}
		})
	}

	t.Run("unknown strategy", func(t *testing.T) {
		_, err := LocatorSpec{Strategy: "shadow", Selector: "x"}.Query()
		assert.Error(t, err)
	})

	t.Run("empty jspath", func(t *testing.T) {
		_, err := JSPath(" ").Query()
		assert.Error(t, err)
	})
}

func TestLocatorSpecElement(t *testing.T) {
	expr, err := ID("otp").Element(2)
	require.NoError(t, err)
	assert.Equal(t, `([document.getElementById("otp")].filter(Boolean))[2]`, expr)
}

func TestLocatorsString(t *testing.T) {
	ls := Locators{ID("userid"), CSS("input")}
	assert.Equal(t, "[id=userid, css=input]", ls.String())
}

func TestElementNotFoundError(t *testing.T) {
	err := error(&ElementNotFoundError{Attempted: Locators{ID("a"), Name("b")}})
	assert.True(t, errors.Is(err, ErrElementNotFound))
	assert.Contains(t, err.Error(), "id=a")
	assert.Contains(t, err.Error(), "name=b")

	var nf *ElementNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Len(t, nf.Attempted, 2)
}

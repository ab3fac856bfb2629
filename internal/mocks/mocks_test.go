// internal/mocks/mocks_test.go
package mocks_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/kiteauth/internal/config"
	"github.com/xkilldash9x/kiteauth/internal/mailbox"
	"github.com/xkilldash9x/kiteauth/internal/mocks"
)

func TestMockMailboxNilIDs(t *testing.T) {
	mb := new(mocks.MockMailbox)
	authErr := &mailbox.AuthError{Provider: "gmail", Message: "denied"}
	mb.On("Search", mock.Anything, mock.Anything).Return(nil, authErr)

	ids, err := mb.Search(context.Background(), mailbox.Query{})
	assert.Nil(t, ids)
	assert.True(t, errors.Is(err, authErr))
	mb.AssertExpectations(t)
}

func TestMockConfigGetters(t *testing.T) {
	cfg := new(mocks.MockConfig)
	cfg.On("OTP").Return(config.OTPConfig{WindowMinutes: 15})
	cfg.On("SetBrowserHeadless", true).Return()

	assert.Equal(t, 15, cfg.OTP().WindowMinutes)
	cfg.SetBrowserHeadless(true)
	cfg.AssertExpectations(t)
}

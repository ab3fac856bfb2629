// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/kiteauth/internal/browser"
	"github.com/xkilldash9x/kiteauth/internal/config"
	"github.com/xkilldash9x/kiteauth/internal/mailbox"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Portal() config.PortalConfig {
	args := m.Called()
	return args.Get(0).(config.PortalConfig)
}

func (m *MockConfig) Mailbox() config.MailboxConfig {
	args := m.Called()
	return args.Get(0).(config.MailboxConfig)
}

func (m *MockConfig) OTP() config.OTPConfig {
	args := m.Called()
	return args.Get(0).(config.OTPConfig)
}

func (m *MockConfig) Callback() config.CallbackConfig {
	args := m.Called()
	return args.Get(0).(config.CallbackConfig)
}

// --- Setters ---

func (m *MockConfig) SetBrowserHeadless(b bool) {
	m.Called(b)
}

func (m *MockConfig) SetPortalUsername(u string) {
	m.Called(u)
}

func (m *MockConfig) SetPortalPassword(p string) {
	m.Called(p)
}

// -- Mailbox Mock --

// MockMailbox mocks mailbox.Mailbox.
type MockMailbox struct {
	mock.Mock
}

var _ mailbox.Mailbox = (*MockMailbox)(nil)

func (m *MockMailbox) Search(ctx context.Context, q mailbox.Query) ([]string, error) {
	args := m.Called(ctx, q)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *MockMailbox) Fetch(ctx context.Context, id string) (mailbox.Message, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(mailbox.Message), args.Error(1)
}

func (m *MockMailbox) MarkConsumed(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// -- OTP Strategy Mock --

// MockStrategy mocks an OTP entry strategy.
type MockStrategy struct {
	mock.Mock
}

func (m *MockStrategy) Name() string {
	return m.Called().String(0)
}

func (m *MockStrategy) Enter(ctx context.Context, page browser.Page, code string) error {
	return m.Called(ctx, page, code).Error(0)
}

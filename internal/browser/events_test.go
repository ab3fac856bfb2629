package browser

import (
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observedEvents(t *testing.T) (*pageEvents, *observer.ObservedLogs, chan struct{}) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	accepted := make(chan struct{}, 1)
	e := &pageEvents{
		logger:       zap.New(core),
		acceptDialog: func() { accepted <- struct{}{} },
	}
	return e, logs, accepted
}

func TestPageEvents_AcceptsDialogs(t *testing.T) {
	e, logs, accepted := observedEvents(t)

	e.handle(&page.EventJavascriptDialogOpening{Type: page.DialogTypeAlert, Message: "Session expired"})

	select {
	case <-accepted:
	case <-time.After(time.Second):
		t.Fatal("dialog was not answered")
	}
	require.Equal(t, 1, logs.FilterMessage("Accepting page dialog.").Len())
	assert.Equal(t, "Session expired", logs.All()[0].ContextMap()["message"])
}

func TestPageEvents_DocumentResponses(t *testing.T) {
	e, logs, _ := observedEvents(t)

	e.handle(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{URL: "https://kite.zerodha.com/", Status: 200},
	})
	e.handle(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{URL: "https://kite.zerodha.com/api/login", Status: 503},
	})
	e.handle(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{URL: "https://kite.zerodha.com/app.js", Status: 404},
	})
	e.handle(&network.EventResponseReceived{Type: network.ResourceTypeDocument})

	assert.Equal(t, 1, logs.FilterMessage("Document loaded.").Len())
	warned := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warned, 1)
	assert.Equal(t, int64(503), warned[0].ContextMap()["status"])
}

func TestPageEvents_Exceptions(t *testing.T) {
	e, logs, _ := observedEvents(t)

	e.handle(&runtime.EventExceptionThrown{ExceptionDetails: &runtime.ExceptionDetails{Text: "Uncaught TypeError", URL: "https://kite.zerodha.com/app.js"}})
	e.handle(&runtime.EventExceptionThrown{})
	e.handle("unrelated")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Uncaught TypeError", logs.All()[0].ContextMap()["text"])
}

// Package callback receives the portal redirect that carries the request
// token once a login completes, optionally exchanges it for an access token
// and hands the result to whoever is waiting.
package callback

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/kiteauth/internal/config"
	"github.com/xkilldash9x/kiteauth/internal/kite"
	"github.com/xkilldash9x/kiteauth/internal/observability"
)

// Exchanger trades a request token for a session. *kite.Client implements it.
type Exchanger interface {
	ExchangeToken(ctx context.Context, requestToken string) (*kite.Session, error)
}

// Server is the redirect listener.
type Server struct {
	cfg       config.CallbackConfig
	loginURL  string
	exchanger Exchanger
	logger    *zap.Logger

	once sync.Once
	done chan Handoff
}

// NewServer builds a listener. exchanger may be nil, in which case only the
// request token is recorded.
func NewServer(cfg config.CallbackConfig, loginURL string, exchanger Exchanger) *Server {
	if cfg.Path == "" {
		cfg.Path = "/zerodha_callback"
	}
	return &Server{
		cfg:       cfg,
		loginURL:  loginURL,
		exchanger: exchanger,
		logger:    observability.GetLogger().Named("callback"),
		done:      make(chan Handoff, 1),
	}
}

// Done yields the first handoff and is then closed. Later callbacks are
// answered but not signalled.
func (s *Server) Done() <-chan Handoff {
	return s.done
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/", s.handleIndex)
	r.Get(s.cfg.Path, s.handleCallback)
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("Request served.",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if s.loginURL == "" {
		fmt.Fprint(w, "<h3>kiteauth callback listener</h3><p>No login URL configured.</p>")
		return
	}
	u := html.EscapeString(s.loginURL)
	fmt.Fprintf(w, `<h3>kiteauth callback listener</h3><p>Open this URL to log in:</p><a href="%s">%s</a>`, u, u)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("request_token")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if token == "" {
		s.logger.Warn("Callback without request token.", zap.String("query", r.URL.RawQuery))
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "<p>Request token not found in URL.</p>")
		return
	}

	h := Handoff{
		RequestToken: token,
		Status:       q.Get("status"),
		Action:       q.Get("action"),
		ReceivedAt:   time.Now().UTC(),
	}
	s.logger.Info("Request token received.", zap.String("status", h.Status), zap.String("action", h.Action))

	status := http.StatusOK
	message := "Request token received. You can close this tab."
	if s.exchanger != nil {
		session, err := s.exchanger.ExchangeToken(r.Context(), token)
		if err != nil {
			s.logger.Error("Token exchange failed.", zap.Error(err))
			h.Error = err.Error()
			status = http.StatusBadGateway
			message = "Token exchange failed: " + err.Error()
		} else {
			h.UserID = session.UserID
			h.AccessToken = session.AccessToken
			h.PublicToken = session.PublicToken
			message = "Access token generated. You can close this tab."
		}
	}

	if s.cfg.HandoffPath != "" {
		if err := SaveHandoff(s.cfg.HandoffPath, h); err != nil {
			s.logger.Error("Could not persist handoff.", zap.String("path", s.cfg.HandoffPath), zap.Error(err))
			if status == http.StatusOK {
				status = http.StatusInternalServerError
				message = "Token received but could not be saved. Check the logs."
			}
		}
	}

	s.signal(h)
	w.WriteHeader(status)
	fmt.Fprintf(w, "<p>%s</p>", html.EscapeString(message))
}

func (s *Server) signal(h Handoff) {
	s.once.Do(func() {
		s.done <- h
		close(s.done)
	})
}

// Serve runs the HTTP server on ln until ctx ends, then shuts it down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Callback listener started.", zap.String("addr", ln.Addr().String()), zap.String("path", s.cfg.Path))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("callback listener: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("callback listener shutdown: %w", err)
		}
		s.logger.Info("Callback listener stopped.")
		return nil
	})
	return g.Wait()
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Wait blocks for the first handoff, the timeout or ctx, whichever comes first.
// A zero timeout waits on ctx alone.
func (s *Server) Wait(ctx context.Context, timeout time.Duration) (Handoff, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case h, ok := <-s.done:
		if !ok {
			return Handoff{}, errors.New("handoff already consumed")
		}
		return h, nil
	case <-ctx.Done():
		return Handoff{}, fmt.Errorf("no callback received: %w", ctx.Err())
	}
}

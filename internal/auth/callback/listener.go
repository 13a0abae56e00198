// Package callback runs the short-lived loopback HTTP server that receives
// the provider's browser redirect at the end of a login.
package callback

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/brizzai/arclio-login/internal/auth/autherr"
	"github.com/brizzai/arclio-login/internal/auth/constants"
	"github.com/brizzai/arclio-login/internal/config"
	"github.com/brizzai/arclio-login/internal/logger"
	"github.com/brizzai/arclio-login/internal/utils"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templatesFS embed.FS

var pages = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

type result struct {
	code string
	err  error
}

// Listener accepts exactly one authorization callback. Create one per login
// attempt with NewListener; it cannot be restarted after Close.
type Listener struct {
	ports   []int
	timeout time.Duration

	server   *http.Server
	listener net.Listener
	port     int

	// armed is closed by Wait once the expected state is known
	armed         chan struct{}
	armOnce       sync.Once
	expectedState string

	resultCh  chan result
	once      sync.Once
	done      chan struct{}
	closeOnce sync.Once
}

func NewListener(cfg *config.CallbackConfig) *Listener {
	ports := cfg.Ports
	if len(ports) == 0 {
		ports = constants.DefaultCallbackPorts
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.CallbackTimeout
	}

	return &Listener{
		ports:    ports,
		timeout:  timeout,
		armed:    make(chan struct{}),
		resultCh: make(chan result, 1),
		done:     make(chan struct{}),
	}
}

// Start binds the first free candidate port and begins serving
func (l *Listener) Start(ctx context.Context) error {
	var lc net.ListenConfig
	for _, port := range l.ports {
		addr := net.JoinHostPort(constants.CallbackHost, strconv.Itoa(port))
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			logger.Debug("Callback port unavailable", zap.String("addr", addr), zap.Error(err))
			continue
		}
		l.listener = ln
		l.port = ln.Addr().(*net.TCPAddr).Port
		break
	}
	if l.listener == nil {
		return fmt.Errorf("%w: tried %v", autherr.ErrPortUnavailable, l.ports)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(constants.CallbackPath, l.handleCallback)
	mux.HandleFunc(constants.HealthPath, handleHealth)

	l.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func(srv *http.Server, ln net.Listener) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Callback server stopped", zap.Error(err))
		}
	}(l.server, l.listener)

	logger.Info("Callback listener started", zap.Int("port", l.port))
	return nil
}

// Port returns the bound port, or 0 before Start
func (l *Listener) Port() int {
	return l.port
}

// RedirectURI is the redirect_uri to send to the provider
func (l *Listener) RedirectURI() string {
	return fmt.Sprintf("http://%s%s", net.JoinHostPort(constants.RedirectHost, strconv.Itoa(l.port)), constants.CallbackPath)
}

// Wait blocks until the callback resolves, the timeout elapses or ctx is
// done, and returns the authorization code on success.
func (l *Listener) Wait(ctx context.Context, expectedState string) (string, error) {
	l.armOnce.Do(func() {
		l.expectedState = expectedState
		close(l.armed)
	})

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case res := <-l.resultCh:
		return res.code, res.err
	case <-timer.C:
		// Nothing may resolve after the caller has given up
		l.once.Do(func() {})
		return "", fmt.Errorf("%w after %s", autherr.ErrTimeout, l.timeout)
	case <-ctx.Done():
		l.once.Do(func() {})
		return "", ctx.Err()
	}
}

// Close stops the server and releases the port. It is safe to call more than once.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		if l.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			err = l.server.Shutdown(ctx)
		}
		if l.listener != nil {
			if cerr := l.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) && err == nil {
				err = cerr
			}
		}
		logger.Debug("Callback listener closed", zap.Int("port", l.port))
	})
	return err
}

func (l *Listener) handleCallback(w http.ResponseWriter, r *http.Request) {
	select {
	case <-l.armed:
	case <-l.done:
		utils.WriteError(w, "already_used", "This login attempt has ended", http.StatusGone)
		return
	case <-r.Context().Done():
		return
	}

	handled := false
	l.once.Do(func() {
		handled = true
		l.resultCh <- l.process(w, r)
	})

	if !handled {
		utils.WriteError(w, "already_used", "This login link has already been used", http.StatusGone)
	}
}

func (l *Listener) process(w http.ResponseWriter, r *http.Request) result {
	utils.SetSecurityHeaders(w)
	query := r.URL.Query()

	if code := query.Get("error"); code != "" {
		desc := query.Get("error_description")
		logger.Warn("Authorization denied by provider", zap.String("error", code))
		renderError(w, http.StatusOK, code, desc)
		return result{err: &autherr.DeniedError{Code: code, Description: desc}}
	}

	if query.Get("state") != l.expectedState {
		logger.Warn("Callback state mismatch")
		renderError(w, http.StatusBadRequest, "state_mismatch", "The response does not belong to this login attempt")
		return result{err: autherr.ErrStateMismatch}
	}

	code := query.Get("code")
	if code == "" {
		renderError(w, http.StatusBadRequest, "missing_code", "Authorization code not received")
		return result{err: &autherr.DeniedError{Code: "missing_code", Description: "Authorization code not received"}}
	}

	render(w, http.StatusOK, "success.html", nil)
	return result{code: code}
}

func renderError(w http.ResponseWriter, status int, code, desc string) {
	if desc == "" {
		desc = "Unknown error"
	}
	render(w, status, "error.html", map[string]string{"Error": code, "Description": desc})
}

func render(w http.ResponseWriter, status int, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		logger.Error("Failed to render callback page", zap.String("page", name), zap.Error(err))
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	utils.WriteJSON(w, map[string]string{"status": "ok"})
}

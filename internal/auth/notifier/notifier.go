// Package notifier tells the person at the terminal what the login flow
// needs from them.
package notifier

import (
	"io"
	"os"

	"github.com/brizzai/arclio-login/internal/logger"
	"github.com/pterm/pterm"
	"go.uber.org/zap"
)

// Notifier receives the user-facing events of a login or refresh
type Notifier interface {
	// Prompt asks the user to authorize in the browser
	Prompt(authURL string)
	// Waiting reports that the flow is blocked on the browser; the returned
	// func ends the indication.
	Waiting() func(success bool)
	// Info reports progress that does not need user action
	Info(msg string)
}

// Console prints to a terminal with pterm and opens the system browser
type Console struct {
	out       io.Writer
	open      func(url string) error
	noBrowser bool
}

// NewConsole writes to stderr so stdout stays reserved for command output
func NewConsole(noBrowser bool) *Console {
	return &Console{out: os.Stderr, open: OpenBrowser, noBrowser: noBrowser}
}

func (c *Console) Prompt(authURL string) {
	if c.noBrowser {
		pterm.Info.WithWriter(c.out).Printfln("Open this URL in your browser:\n%s", authURL)
		return
	}

	if err := c.open(authURL); err != nil {
		logger.Debug("Browser launch failed", zap.Error(err))
		pterm.Warning.WithWriter(c.out).Printfln("Couldn't open browser automatically.\nOpen this URL in your browser:\n%s", authURL)
		return
	}
	pterm.Info.WithWriter(c.out).Printfln("Opening browser for authentication...\nIf the browser doesn't open, visit: %s", authURL)
}

func (c *Console) Waiting() func(success bool) {
	spinner, err := pterm.DefaultSpinner.WithWriter(c.out).WithRemoveWhenDone(false).Start("Waiting for authentication...")
	if err != nil {
		logger.Debug("Spinner unavailable", zap.Error(err))
		return func(bool) {}
	}
	return func(success bool) {
		if success {
			spinner.Success("Authorization received")
			return
		}
		spinner.Fail("Authorization not completed")
	}
}

func (c *Console) Info(msg string) {
	pterm.Info.WithWriter(c.out).Println(msg)
}

// Quiet discards every event
type Quiet struct{}

func (Quiet) Prompt(string) {}

func (Quiet) Waiting() func(bool) { return func(bool) {} }

func (Quiet) Info(string) {}

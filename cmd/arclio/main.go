package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/brizzai/arclio-login/internal/auth"
	"github.com/brizzai/arclio-login/internal/auth/autherr"
	"github.com/brizzai/arclio-login/internal/auth/models"
	"github.com/brizzai/arclio-login/internal/auth/notifier"
	"github.com/brizzai/arclio-login/internal/config"
	"github.com/brizzai/arclio-login/internal/logger"
)

func main() {
	Execute()
}

// errSilent marks failures that were already reported, or must not be
type errSilent struct{ err error }

func (e errSilent) Error() string { return e.err.Error() }
func (e errSilent) Unwrap() error { return e.err }

var (
	noBrowser bool
	quiet     bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "arclio",
	Short: "Arclio CLI for Kinde OAuth authentication",
	Long: `Authenticate with Kinde to get tokens for Arclio services.

Credentials are kept in ~/.config/arclio and refreshed automatically.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Login with Kinde OAuth (opens browser)",
	Args:  cobra.NoArgs,
	RunE:  runLogin,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Output current access token (refreshes if expired)",
	Args:  cobra.NoArgs,
	RunE:  runToken,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear stored credentials",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	// Place version check in PreRun to ensure flags are parsed first
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			pterm.Info.Println(config.GetVersionInfo())
			os.Exit(0)
		}
	}
	rootCmd.Run = func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = logger.Sync()

	if err != nil {
		var silent errSilent
		if !errors.As(err, &silent) {
			pterm.Error.Println(autherr.UserMessage(err))
		}
		os.Exit(1)
	}
}

func init() {
	config.InitFlags(rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().BoolP("version", "v", false, "Show version information")

	loginCmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the authorization URL instead of opening a browser")
	tokenCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Output only the token (for scripting)")

	rootCmd.AddCommand(loginCmd, tokenCmd, statusCmd, logoutCmd)
}

// newManager loads configuration and assembles the token manager
func newManager(cmd *cobra.Command) (*auth.Manager, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.InitLogger(&cfg.Logging); err != nil {
		return nil, err
	}

	var manager *auth.Manager
	app := fx.New(
		fx.NopLogger,
		fx.Supply(cfg),
		config.Module,
		auth.Module,
		fx.Provide(func() notifier.Notifier {
			return notifier.NewConsole(noBrowser)
		}),
		fx.Populate(&manager),
	)
	if err := app.Err(); err != nil {
		return nil, err
	}
	return manager, nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := newManager(cmd)
	if err != nil {
		return err
	}

	info, err := manager.Login(cmd.Context())
	if err != nil {
		var denied *autherr.DeniedError
		if errors.As(err, &denied) {
			pterm.Error.Printfln("Authentication failed: %s", denied.Code)
			if denied.Description != "" {
				pterm.Println("  " + denied.Description)
			}
			return errSilent{err}
		}
		return err
	}

	pterm.Println()
	if name := info.DisplayName(); name != "" {
		pterm.Success.Printfln("Authenticated as %s", name)
	} else {
		pterm.Success.Println("Authenticated")
	}
	if status, err := manager.Status(); err == nil {
		pterm.Printfln("  Credentials saved to: %s", status.Location)
	}
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	manager, err := newManager(cmd)
	if err != nil {
		if quiet {
			return errSilent{err}
		}
		return err
	}

	token, err := manager.GetValidToken(cmd.Context(), quiet)
	if err != nil {
		if quiet {
			return errSilent{err}
		}
		return err
	}

	if quiet {
		// No newline so the output can be piped or substituted as is
		_, err := fmt.Fprint(cmd.OutOrStdout(), token)
		return err
	}

	pterm.Println()
	pterm.Success.Println("Access Token:")
	fmt.Fprintln(cmd.OutOrStdout(), token)
	if status, err := manager.Status(); err == nil && status.UserEmail != "" {
		pterm.Println()
		pterm.Printfln("  User: %s", status.UserEmail)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	manager, err := newManager(cmd)
	if err != nil {
		return err
	}

	status, err := manager.Status()
	if err != nil {
		return err
	}

	if status.State == models.SessionLoggedOut {
		pterm.Warning.Println("Status: Not authenticated")
		pterm.Println()
		pterm.Printfln("Run: %s", pterm.Bold.Sprint("arclio login"))
		return nil
	}

	pterm.Success.Println("Status: Authenticated")
	if status.UserEmail != "" {
		pterm.Printfln("  User: %s", status.UserEmail)
	}
	if status.UserID != "" {
		pterm.Printfln("  ID: %s", status.UserID)
	}
	expires := status.ExpiresAt.Local().Format("2006-01-02 15:04:05 MST")
	if status.State == models.SessionExpired {
		pterm.Printfln("  Token: %s", pterm.Yellow("Expired since "+expires+" (will refresh)"))
	} else {
		pterm.Printfln("  Token: %s", pterm.Green("Valid until "+expires))
	}
	pterm.Printfln("  Config: %s", status.Location)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := newManager(cmd)
	if err != nil {
		return err
	}

	status, err := manager.Status()
	if err != nil {
		return err
	}
	if status.State == models.SessionLoggedOut {
		pterm.Println("Not logged in.")
		return nil
	}

	if err := manager.Logout(); err != nil {
		return err
	}
	pterm.Success.Println("Logged out successfully")
	return nil
}

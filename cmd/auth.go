package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/shotlog/internal/models"
	"github.com/desertthunder/shotlog/internal/server"
	"github.com/desertthunder/shotlog/internal/session"
	"github.com/desertthunder/shotlog/internal/shared"
	"github.com/urfave/cli/v3"
)

// browserLoginTimeout bounds how long `auth login --browser` waits for the form.
const browserLoginTimeout = 2 * time.Minute

// statusReport is the `auth status --json` payload.
type statusReport struct {
	State         string       `json:"state"`
	User          *models.User `json:"user,omitempty"`
	TokenExpiry   *time.Time   `json:"token_expiry,omitempty"`
	RefreshCookie bool         `json:"refresh_cookie"`
	APIURL        string       `json:"api_url"`
}

// AuthLogin exchanges credentials for a session, prompting for whatever flags omit.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	if err := r.connect(ctx); err != nil {
		return err
	}

	if cmd.Bool("browser") {
		user, err := r.browserLogin(ctx)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Logged in as %s\n", user.Username)
	}

	username, password, err := r.credentials(cmd)
	if err != nil {
		return err
	}

	r.logger.Info("logging in", "username", username)
	if err := r.session.Login(ctx, username, password); err != nil {
		return err
	}

	return r.writePlain("✓ Logged in as %s\n", username)
}

func (r *Runner) credentials(cmd *cli.Command) (username, password string, err error) {
	username, password = cmd.String("username"), cmd.String("password")
	if username == "" {
		if username, err = r.prompt("Username: "); err != nil {
			return "", "", err
		}
	}
	if password == "" {
		if password, err = r.prompt("Password: "); err != nil {
			return "", "", err
		}
	}
	if username == "" || password == "" {
		return "", "", fmt.Errorf("%w: username and password are required", shared.ErrMissingArgument)
	}
	return username, password, nil
}

// browserLogin serves a one-shot login form on the dashboard address and waits for it.
func (r *Runner) browserLogin(ctx context.Context) (*models.User, error) {
	handler := server.NewSingleUseLoginHandler(r.session, r.logger)
	router := server.NewBasicRouter()
	router.Use(server.Recoverer(r.logger), server.RequestLogger(r.logger))
	router.Handler(handler)

	serverAddr := r.config.Server.Addr()
	httpServer := server.New(serverAddr, router)

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting login server at %v", serverAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	time.Sleep(100 * time.Millisecond)

	loginURL := fmt.Sprintf("http://%s%s", serverAddr, server.LoginPath)
	r.writePlain("→ Opening browser to log in...\n")
	if err := shared.OpenBrowser(loginURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", loginURL)
	}

	r.writePlain("→ Waiting for login (2 minute timeout)...\n")

	timeout := time.NewTimer(browserLoginTimeout)
	defer timeout.Stop()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	select {
	case result := <-handler.Result():
		if result.User == nil {
			return nil, fmt.Errorf("%w: no identity received", shared.ErrNotAuthenticated)
		}
		return result.User, nil
	case err := <-serverErrors:
		return nil, fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: login timed out after 2 minutes", shared.ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AuthLogout always ends with no local credentials, even when the API is unreachable.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	if err := r.connect(ctx); err != nil {
		return err
	}

	if err := r.session.Logout(ctx); err != nil {
		return err
	}
	if err := r.jar.Clear(ctx, r.api.BaseURL()); err != nil {
		r.logger.Warn("could not clear cookies", "err", err)
	}
	if err := r.cache.Clear(); err != nil {
		r.logger.Warn("could not clear workout cache", "err", err)
	}

	return r.writePlain("✓ Logged out\n")
}

// AuthStatus resolves the session the way every protected command does and reports it.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.connect(ctx); err != nil {
		return err
	}

	r.logger.Info("checking auth status")
	state := r.session.Initialize(ctx)

	report := statusReport{
		State:         state.String(),
		User:          r.session.User(),
		RefreshCookie: r.jar.Has(r.api.BaseURL(), server.RefreshCookie),
		APIURL:        r.api.BaseURL().String(),
	}
	if exp := r.session.TokenExpiry(); !exp.IsZero() {
		report.TokenExpiry = &exp
	}

	if cmd.Bool("json") {
		return r.writeJSON(report, true)
	}

	r.writePlainHeader("Session")
	r.writePlain("API:            %s\n", report.APIURL)
	r.writePlain("State:          %s\n", report.State)
	if report.User != nil {
		r.writePlain("User:           %s (#%d)\n", report.User.Username, report.User.ID)
	}
	if report.TokenExpiry != nil {
		r.writePlain("Token expires:  %s\n", report.TokenExpiry.Local().Format(time.RFC1123))
	}
	if updated, err := r.tokens.UpdatedAt(ctx); err == nil && !updated.IsZero() {
		r.writePlain("Token saved:    %s\n", updated.Local().Format(time.RFC1123))
	}
	r.writePlain("Refresh cookie: %s\n", yesNo(report.RefreshCookie))

	if state != session.Authenticated {
		r.writePlainln("Run 'shotlog auth login' to start a session.")
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// AuthRefresh mints a new access token and confirms the identity behind it.
func (r *Runner) AuthRefresh(ctx context.Context, cmd *cli.Command) error {
	if err := r.connect(ctx); err != nil {
		return err
	}

	if err := r.session.Refresh(ctx); err != nil {
		return err
	}
	if err := r.session.FetchIdentity(ctx); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrNotAuthenticated, err)
	}

	r.writePlain("✓ Access token refreshed\n")
	if exp := r.session.TokenExpiry(); !exp.IsZero() {
		r.writePlain("Expires: %s\n", exp.Local().Format(time.RFC1123))
	}
	return nil
}

// AuthRegister creates an account and logs straight into it.
func (r *Runner) AuthRegister(ctx context.Context, cmd *cli.Command) error {
	if err := r.connect(ctx); err != nil {
		return err
	}

	password := cmd.String("password")
	if password == "" {
		var err error
		if password, err = r.prompt("Password: "); err != nil {
			return err
		}
	}

	reg := models.Registration{
		Username: cmd.String("username"),
		Password: password,
		Position: models.Position(cmd.String("position")),
	}
	if cmd.IsSet("height") {
		height := int(cmd.Int("height"))
		reg.HeightCM = &height
	}

	if err := r.auth.Register(ctx, reg); err != nil {
		return err
	}
	r.writePlain("✓ Registered %s\n", reg.Username)

	if err := r.session.Login(ctx, reg.Username, reg.Password); err != nil {
		return fmt.Errorf("registered but could not log in: %w", err)
	}
	return r.writePlain("✓ Logged in as %s\n", reg.Username)
}

// AuthImport installs the bearer token and refresh cookie of a browser session.
//
// Accepts a cURL command copied from the browser's DevTools.
func (r *Runner) AuthImport(ctx context.Context, cmd *cli.Command) error {
	curlCmd := cmd.String("curl")
	curlFile := cmd.String("curl-file")

	if curlCmd == "" && curlFile == "" {
		return fmt.Errorf("%w: either --curl or --curl-file must be provided", shared.ErrMissingArgument)
	}

	if curlCmd != "" && curlFile != "" {
		return fmt.Errorf("%w: cannot specify both --curl and --curl-file", shared.ErrInvalidArgument)
	}

	var curlHeaders *shared.CurlHeaders
	var err error

	if curlFile != "" {
		curlHeaders, err = shared.ParseCurlFile(curlFile)
		if err != nil {
			return fmt.Errorf("failed to parse cURL file: %w", err)
		}
		r.logger.Info("parsed cURL from file", "file", curlFile)
	} else {
		curlHeaders, err = shared.ParseCurlCommand(curlCmd)
		if err != nil {
			return fmt.Errorf("failed to parse cURL command: %w", err)
		}
		r.logger.Info("parsed cURL command")
	}

	token := curlHeaders.BearerToken()
	refresh := curlHeaders.CookieValue(server.RefreshCookie)
	if token == "" && refresh == "" {
		return fmt.Errorf("%w: no bearer token or %s cookie found", shared.ErrInvalidInput, server.RefreshCookie)
	}

	if err := r.connect(ctx); err != nil {
		return err
	}

	if refresh != "" {
		cookies := curlHeaders.Cookies()
		for _, c := range cookies {
			c.Path = "/"
		}
		r.jar.SetCookies(r.api.BaseURL(), cookies)
		r.logger.Debug("imported cookies", "count", len(cookies))
	}
	if token != "" {
		if err := r.session.Adopt(ctx, token); err != nil {
			return fmt.Errorf("the imported session was rejected: %w", err)
		}
	} else if state := r.session.Initialize(ctx); state != session.Authenticated {
		return fmt.Errorf("%w: the imported session was rejected", shared.ErrNotAuthenticated)
	}

	user := r.session.User()
	r.writePlain("✓ Browser session imported\n")
	if user != nil {
		r.writePlain("Logged in as %s\n", user.Username)
	}
	if refresh == "" {
		r.writePlainln("⚠ No %s cookie found; the session ends when the access token expires.", server.RefreshCookie)
	}
	return nil
}

// isLoginError reports whether err means the user must log in again.
func isLoginError(err error) bool {
	return errors.Is(err, shared.ErrLoginRequired) ||
		errors.Is(err, shared.ErrNotAuthenticated) ||
		errors.Is(err, shared.ErrRefreshFailed)
}

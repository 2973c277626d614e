package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/shotlog/internal/repositories"
	"github.com/desertthunder/shotlog/internal/server"
	"github.com/desertthunder/shotlog/internal/services"
	"github.com/desertthunder/shotlog/internal/session"
	"github.com/desertthunder/shotlog/internal/shared"
	"github.com/desertthunder/shotlog/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Storage and API clients are wired lazily by [Runner.connect] so that commands like setup
// run before a database exists.
type Runner struct {
	config     *shared.Config
	configPath string
	db         *sql.DB
	ownsDB     bool
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	input      *bufio.Reader

	jar      *repositories.PersistentJar
	api      *services.APIService
	auth     *services.AuthService
	tokens   *repositories.TokenRepository
	cache    *repositories.WorkoutRepository
	exports  *repositories.ExportRepository
	session  *session.Manager
	workouts *services.WorkoutService
	engine   *tasks.ExportEngine
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	DB         *sql.DB
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Input      io.Reader
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = "config.toml"
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		db:         opts.DB,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		input:      bufio.NewReader(opts.Input),
	}
}

// SetLogger replaces the logger used by components wired after the call.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// loadConfig reads the config file when present, applies the environment and the log level.
func (r *Runner) loadConfig(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	r.configPath = cmd.String("config")

	if _, err := os.Stat(r.configPath); err == nil {
		config, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return ctx, err
		}
		r.config = config
	} else {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
	}

	r.config.ApplyEnv()
	if err := r.config.Validate(); err != nil {
		return ctx, err
	}

	level := shared.ParseLogLevel(r.config.Log.Level)
	if cmd.Bool("verbose") {
		level = log.DebugLevel
	}
	shared.SetLogLevel(r.logger, level)
	return ctx, nil
}

// connect opens the database and wires the API client, session manager and export engine.
// Calls after the first are no-ops.
func (r *Runner) connect(ctx context.Context) error {
	if r.session != nil {
		return nil
	}

	if r.db == nil {
		db, err := shared.OpenDatabase(r.config.Database)
		if err != nil {
			return fmt.Errorf("%w: %w (run 'shotlog setup' first?)", shared.ErrMissingConfig, err)
		}
		r.db, r.ownsDB = db, true
	}

	jar, err := repositories.NewPersistentJar(repositories.NewCookieRepository(r.db), r.logger)
	if err != nil {
		return err
	}

	client := *r.httpClient
	client.Jar = jar
	if client.Timeout == 0 {
		client.Timeout = r.config.API.Timeout.Duration
	}

	bearer := &session.Bearer{}
	api, err := services.NewAPIService(services.APIOpts{
		BaseURL:    r.config.API.BaseURL,
		Client:     &client,
		Authorizer: bearer,
		RateLimit:  r.config.API.RateLimit,
		UserAgent:  r.config.API.UserAgent,
		Logger:     r.logger,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidConfig, err)
	}

	if err := jar.Restore(ctx, api.BaseURL()); err != nil {
		r.logger.Warn("could not restore cookies", "err", err)
	}

	r.jar = jar
	r.api = api
	r.auth = services.NewAuthService(api)
	r.tokens = repositories.NewTokenRepository(r.db)
	r.cache = repositories.NewWorkoutRepository(r.db)
	r.exports = repositories.NewExportRepository(r.db)
	r.session = session.NewManager(r.auth, r.tokens, bearer, r.logger)
	r.workouts = services.NewWorkoutService(api.WithRefresher(r.session))
	r.engine = tasks.NewExportEngine(r.workouts, r.logger)
	return nil
}

// Close releases the database when the runner opened it.
func (r *Runner) Close() error {
	if r.db != nil && r.ownsDB {
		return r.db.Close()
	}
	return nil
}

// requireLogin is the coarse guard for data commands: the jar must hold a refresh cookie
// for the API origin. It does not consult the session manager.
func (r *Runner) requireLogin(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if err := r.connect(ctx); err != nil {
		return ctx, err
	}
	if !r.jar.Has(r.api.BaseURL(), server.RefreshCookie) {
		return ctx, shared.ErrLoginRequired
	}
	return ctx, nil
}

// requireSession resolves the session before any protected fetch and returns the identity.
func (r *Runner) requireSession(ctx context.Context) (*session.Snapshot, error) {
	if err := r.connect(ctx); err != nil {
		return nil, err
	}

	if state := r.session.Initialize(ctx); state != session.Authenticated {
		return nil, fmt.Errorf("%w: session is %s", shared.ErrNotAuthenticated, state)
	}

	snap := r.session.Snapshot()
	return &snap, nil
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, workoutsCommand, sessionsCommand, statsCommand, exportsCommand, tuiCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// prompt writes label and reads one trimmed line of input.
func (r *Runner) prompt(label string) (string, error) {
	if err := r.writePlain("%s", label); err != nil {
		return "", err
	}
	line, err := r.input.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("%w: %w", shared.ErrMissingArgument, err)
	}
	return strings.TrimSpace(line), nil
}

// confirm asks a yes/no question; anything but y or yes is a no.
func (r *Runner) confirm(question string) (bool, error) {
	answer, err := r.prompt(question + " [y/N] ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

// writeBytes writes rendered output, adding a trailing newline when missing.
func (r *Runner) writeBytes(data []byte) error {
	if len(data) > 0 && data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/viewsync/internal/history"
	"github.com/desertthunder/viewsync/internal/services"
	"github.com/desertthunder/viewsync/internal/shared"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	client     services.Client
	creds      services.Credentials
	httpClient *http.Client
	logger     *log.Logger

	mu     sync.Mutex // serializes writes to output
	output io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Client and Credentials default to the record service and ks named in the config.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	Client      services.Client
	Credentials services.Credentials
	HTTPClient  *http.Client
	Logger      *log.Logger
	Output      io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: time.Duration(opts.Config.Service.TimeoutSeconds) * time.Second}
	}
	if opts.Client == nil {
		opts.Client = newRecordClient(opts.Config.Service, opts.HTTPClient, opts.Logger)
	}
	if opts.Credentials == nil {
		opts.Credentials = services.NewStaticCredentials(opts.Config.Service.KS)
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		client:     opts.Client,
		creds:      opts.Credentials,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

// newRecordClient builds the record service client described by the [service] config section.
func newRecordClient(c shared.ServiceConfig, httpClient *http.Client, logger *log.Logger) services.Client {
	var client services.Client = services.NewRouter(c.URL, c.ProxyURL, httpClient)
	if c.CircuitBreaker {
		client = services.NewBreakerClient(client, services.BreakerSettings{}, logger)
	}
	return client
}

// newEngine creates an engine over the runner's client and session. Player and updates are optional.
func (r *Runner) newEngine(player history.Player, updates chan<- history.TransitionUpdate) *history.Engine {
	return history.NewEngine(history.EngineOpts{
		Client:      r.client,
		Credentials: r.creds,
		Player:      player,
		Options:     history.OptionsFromConfig(r.config.Tracking),
		Logger:      r.logger,
		Updates:     updates,
	})
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, historyCommand, replayCommand, serveCommand, sessionCommand, exportCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
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

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n%v\n═══════════════════════════════════════\n", title)
}

// Package cli implements the framecheck command-line client, which runs
// analyses directly against the detection service.
package cli

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/kiranshivaraju/framecheck/internal/config"
	"github.com/kiranshivaraju/framecheck/internal/detector"
	"github.com/spf13/cobra"
)

// ClientFactory builds the detection service client used by commands.
type ClientFactory func(baseURL, apiKey string, timeout time.Duration) detector.Client

type app struct {
	out       io.Writer
	errOut    io.Writer
	newClient ClientFactory

	logLevel    string
	detectorURL string
	apiKey      string

	cfg *config.Config
}

// Option configures the root command.
type Option func(*app)

// WithOutput sends command output to out and logs to errOut.
func WithOutput(out, errOut io.Writer) Option {
	return func(a *app) {
		a.out, a.errOut = out, errOut
	}
}

// WithClientFactory replaces the HTTP detection client.
func WithClientFactory(f ClientFactory) Option {
	return func(a *app) {
		a.newClient = f
	}
}

// NewRootCommand returns the framecheck command tree.
func NewRootCommand(opts ...Option) *cobra.Command {
	a := &app{
		out:    os.Stdout,
		errOut: os.Stderr,
		newClient: func(baseURL, apiKey string, timeout time.Duration) detector.Client {
			return detector.NewHTTPClient(baseURL, apiKey, timeout)
		},
	}
	for _, opt := range opts {
		opt(a)
	}

	root := &cobra.Command{
		Use:   "framecheck",
		Short: "framecheck checks videos for manipulated frames",
		Long: `framecheck uploads a video to the detection service, follows the job
until it finishes and prints a summary of the frame-level verdicts.`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	root.PersistentFlags().StringVarP(&a.logLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.detectorURL, "detector-url", "", "Detection service base URL (overrides DETECTOR_BASE_URL)")
	root.PersistentFlags().StringVar(&a.apiKey, "api-key", "", "Detection service API key (overrides DETECTOR_API_KEY)")

	root.AddCommand(a.analyzeCommand())
	root.AddCommand(a.resultsCommand())
	return root
}

// init resolves configuration, letting flags win over the environment.
func (a *app) init() error {
	if a.detectorURL != "" {
		os.Setenv("DETECTOR_BASE_URL", a.detectorURL)
	}
	if a.apiKey != "" {
		os.Setenv("DETECTOR_API_KEY", a.apiKey)
	}
	if a.logLevel != "" {
		os.Setenv("FRAMECHECK_LOG_LEVEL", a.logLevel)
	}

	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	a.cfg = cfg

	var level slog.Level
	_ = level.UnmarshalText([]byte(cfg.Logging.Level))
	slog.SetDefault(slog.New(slog.NewTextHandler(a.errOut, &slog.HandlerOptions{Level: level})))
	return nil
}

func (a *app) client() detector.Client {
	return a.newClient(a.cfg.Detector.BaseURL, a.cfg.Detector.APIKey, a.cfg.Detector.Timeout)
}

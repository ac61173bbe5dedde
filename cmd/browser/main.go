// Command imoveis-browser is the terminal client of the listings API.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ffimoveis/imoveis/internal/catalog"
	"github.com/ffimoveis/imoveis/internal/catalog/memory"
	"github.com/ffimoveis/imoveis/internal/catalog/remote"
	pkgconfig "github.com/ffimoveis/imoveis/pkg/config"
	"github.com/ffimoveis/imoveis/pkg/httpclient"
	"github.com/ffimoveis/imoveis/pkg/logger"
)

// envPrefix scopes the CLI defaults, e.g. IMOVEIS_BROWSER_API_URL.
const envPrefix = "IMOVEIS_BROWSER_"

// options holds the flag values. Defaults come from the environment.
type options struct {
	APIURL   string        `env:"API_URL" envDefault:"http://localhost:8001"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"10s"`
	LogLevel string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string        `env:"LOG_FILE"`
	Offline  bool          `env:"OFFLINE" envDefault:"false"`
	URL      string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	if err := pkgconfig.LoadWithPrefix(opts, envPrefix); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	root := &cobra.Command{
		Use:   "imoveis-browser",
		Short: "Browse real-estate listings from the terminal",
		Long: `imoveis-browser filters the listing catalog by text, property type,
location and price range. Every committed search updates a shareable URL
query that can be passed back with --url.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBrowser(cmd.Context(), opts)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.APIURL, "api-url", opts.APIURL, "base URL of the listings API")
	pf.DurationVar(&opts.Timeout, "timeout", opts.Timeout, "timeout of each catalog request")
	pf.StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "log level (debug, info, warn, error)")
	pf.StringVar(&opts.LogFile, "log-file", opts.LogFile, "write logs to this file")
	pf.BoolVar(&opts.Offline, "offline", opts.Offline, "use the bundled sample listings instead of the API")
	pf.StringVar(&opts.URL, "url", "", `shared search query to restore, e.g. "tipo=casa&max_price=900000"`)

	root.AddCommand(newSearchCmd(opts), newSeedCmd(opts))
	return root
}

// newLogger writes to the log file if one is given, else to fallback.
func (o *options) newLogger(fallback io.Writer) (*slog.Logger, func(), error) {
	if o.LogFile == "" {
		return logger.NewWithWriter("imoveis-browser", o.LogLevel, fallback), func() {}, nil
	}
	f, err := os.OpenFile(o.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return logger.NewWithWriter("imoveis-browser", o.LogLevel, f), func() { _ = f.Close() }, nil
}

// newRemote returns the API client.
func (o *options) newRemote(log *slog.Logger) *remote.Catalog {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = o.Timeout
	cfg.UserAgent = "imoveis-browser"
	return remote.NewDefault(o.APIURL, cfg, log)
}

// newSource returns the catalog searched by the browser.
func (o *options) newSource(log *slog.Logger) (catalog.Source, error) {
	if o.Offline {
		return memory.NewSeeded()
	}
	return o.newRemote(log), nil
}

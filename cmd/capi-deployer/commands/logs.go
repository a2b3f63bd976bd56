package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fivetwenty-io/capi-deployer/internal/constants"
	"github.com/fivetwenty-io/capi-deployer/pkg/capi"
)

const metricsReadHeaderTimeout = 5 * time.Second

type logsOptions struct {
	follow      bool
	interval    time.Duration
	metricsAddr string
}

// NewLogsCommand creates the logs command.
func NewLogsCommand() *cobra.Command {
	opts := &logsOptions{}

	cmd := &cobra.Command{
		Use:   "logs APP_GUID",
		Short: "Show recent application logs",
		Long: `Show recent application logs from log-cache, oldest first. With --follow,
log-cache is polled and only records newer than the last printed one are shown.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			session, err := newRuntime(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer session.Close()

			printer, err := newLogPrinter(cmd.OutOrStdout())
			if err != nil {
				return err
			}

			fetcher := session.Client.Logs()

			if !opts.follow {
				records, err := fetcher.GetRecentLogs(ctx, args[0], nil)
				if err != nil {
					return err
				}

				return printer.print(records)
			}

			if opts.metricsAddr != "" {
				stop := serveMetrics(opts.metricsAddr, session.Registry, session.Logger)
				defer stop()
			}

			return followLogs(ctx, fetcher, args[0], opts.interval, printer)
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "F", false, "keep polling for new records")
	cmd.Flags().DurationVar(&opts.interval, "interval", constants.DefaultLogsInterval, "polling interval with --follow")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while following")

	return cmd
}

// followLogs polls until ctx is cancelled. Fetch failures are logged by the
// fetcher and the next tick tries again.
func followLogs(ctx context.Context, fetcher capi.LogIncrementalFetcher, appGUID string, interval time.Duration, printer *logPrinter) error {
	if interval <= 0 {
		interval = constants.DefaultLogsInterval
	}

	var offset *capi.LogOffset

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		records := fetcher.GetRecentLogsSafely(ctx, appGUID, offset)

		err := printer.print(records)
		if err != nil {
			return err
		}

		if next := capi.OffsetOf(records); next != nil {
			offset = next
		}

		if ctx.Err() != nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// logPrinter writes records as text lines, JSON lines or YAML documents.
type logPrinter struct {
	out    io.Writer
	format string
	yaml   *yaml.Encoder
}

func newLogPrinter(out io.Writer) (*logPrinter, error) {
	format, err := outputFormat(out)
	if err != nil {
		return nil, err
	}

	return &logPrinter{out: out, format: format, yaml: yaml.NewEncoder(out)}, nil
}

func (p *logPrinter) print(records []capi.LogRecord) error {
	for _, record := range records {
		var err error

		switch p.format {
		case constants.FormatJSON:
			err = json.NewEncoder(p.out).Encode(record)
		case constants.FormatYAML:
			err = p.yaml.Encode(record)
		default:
			_, err = fmt.Fprintf(p.out, "%s [%s] %s %s\n",
				record.Timestamp.Format(time.RFC3339Nano), orNotAvailable(record.SourceType), record.Type, record.Message)
		}

		if err != nil {
			return fmt.Errorf("writing log record: %w", err)
		}
	}

	return nil
}

// serveMetrics exposes registry on addr until the returned stop is called.
func serveMetrics(addr string, registry *prometheus.Registry, logger capi.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: metricsReadHeaderTimeout}

	go func() {
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", map[string]interface{}{"addr": addr, "error": err.Error()})
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsReadHeaderTimeout)
		defer cancel()

		_ = server.Shutdown(ctx)
	}
}

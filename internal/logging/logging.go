// Package logging adapts zerolog to the capi.Logger interface.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/fivetwenty-io/capi-deployer/pkg/capi"
)

var (
	ErrUnknownLevel  = errors.New("unknown log level")
	ErrUnknownFormat = errors.New("unknown log format")
)

// Format selects how log lines are rendered.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Options configures New.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Format is console or json. Empty means console.
	Format Format
	// Output defaults to os.Stderr.
	Output io.Writer
}

// Logger implements capi.Logger on top of a zerolog.Logger.
type Logger struct {
	logger zerolog.Logger
}

var _ capi.Logger = (*Logger)(nil)

// New builds a Logger. An unknown level is reported as an error.
func New(options Options) (*Logger, error) {
	level, err := ParseLevel(options.Level)
	if err != nil {
		return nil, err
	}

	output := options.Output
	if output == nil {
		output = os.Stderr
	}

	switch options.Format {
	case "", FormatConsole:
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339, NoColor: !isTerminal(output)}
	case FormatJSON:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, options.Format)
	}

	return Wrap(zerolog.New(output).Level(level).With().Timestamp().Logger()), nil
}

// Wrap adapts an existing zerolog.Logger.
func Wrap(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger}
}

// ParseLevel maps a level name to a zerolog level; "warning" is accepted as warn.
func ParseLevel(name string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("%w: %q", ErrUnknownLevel, name)
	}

	return level, nil
}

// Zerolog exposes the wrapped logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.logger
}

// Debug implements capi.Logger.
func (l *Logger) Debug(msg string, fields map[string]interface{}) {
	l.logger.Debug().Fields(fields).Msg(msg)
}

// Info implements capi.Logger.
func (l *Logger) Info(msg string, fields map[string]interface{}) {
	l.logger.Info().Fields(fields).Msg(msg)
}

// Warn implements capi.Logger.
func (l *Logger) Warn(msg string, fields map[string]interface{}) {
	l.logger.Warn().Fields(fields).Msg(msg)
}

// Error implements capi.Logger.
func (l *Logger) Error(msg string, fields map[string]interface{}) {
	l.logger.Error().Fields(fields).Msg(msg)
}

func isTerminal(output io.Writer) bool {
	file, ok := output.(*os.File)

	return ok && term.IsTerminal(int(file.Fd()))
}

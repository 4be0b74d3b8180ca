package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// LoggerOptions shapes the console logger shared by every component.
type LoggerOptions struct {
	Out       io.Writer
	Timestamp bool
	NoColor   bool
}

func NewConsoleLogger(opts LoggerOptions) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	output := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    opts.NoColor,
		TimeFormat: time.RFC3339,
	}
	if !opts.Timestamp {
		output.PartsExclude = []string{zerolog.TimestampFieldName}
		return zerolog.New(output)
	}
	return zerolog.New(output).With().Timestamp().Logger()
}

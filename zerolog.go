package clubauth

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the zerolog root logger for the given environment.
func NewLogger(environment string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
		NoColor:    environment == "production",
	}

	logger := zerolog.New(output).With().
		Timestamp().
		Str("env", environment).
		Logger()

	if environment != "production" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	return logger
}

type zerologAdapter struct {
	log zerolog.Logger
}

var _ Logger = zerologAdapter{}

// WrapZerolog adapts a zerolog logger to the package Logger interface.
func WrapZerolog(log zerolog.Logger) Logger {
	return zerologAdapter{log: log}
}

func (z zerologAdapter) Debug(format string, args ...any) {
	z.log.Debug().Msgf(format, args...)
}

func (z zerologAdapter) Info(format string, args ...any) {
	z.log.Info().Msgf(format, args...)
}

func (z zerologAdapter) Warn(format string, args ...any) {
	z.log.Warn().Msgf(format, args...)
}

func (z zerologAdapter) Error(format string, args ...any) {
	z.log.Error().Msgf(format, args...)
}

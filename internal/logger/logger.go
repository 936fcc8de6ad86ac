// Package logger configures the process-wide structured logger.
//
// The registry's logging gate is an opaque sink per the design's scope
// (process bootstrap owns argument parsing; this package only owns the
// zerolog configuration and a handful of per-component child loggers).
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the process-wide base logger, tagged with the service name.
var Log zerolog.Logger

// Initialize configures the global logger. level follows zerolog's level
// names ("debug", "info", "warn", "error", ...); pretty switches between
// human-readable console output and newline-delimited JSON.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().Str("service", "nmos-registry").Logger()

	Log.Info().Str("level", logLevel.String()).Bool("pretty", pretty).Msg("logger initialized")
}

// GetLogger returns the process-wide logger.
func GetLogger() *zerolog.Logger { return &Log }

// Store returns a logger tagged for the resource store.
func Store() *zerolog.Logger {
	l := Log.With().Str("component", "store").Logger()
	return &l
}

// Expiry returns a logger tagged for the expiration/heartbeat worker.
func Expiry() *zerolog.Logger {
	l := Log.With().Str("component", "expiry").Logger()
	return &l
}

// Subscription returns a logger tagged for the query-subscription fanout.
func Subscription() *zerolog.Logger {
	l := Log.With().Str("component", "subscription").Logger()
	return &l
}

// Router returns a logger tagged for HTTP dispatch.
func Router() *zerolog.Logger {
	l := Log.With().Str("component", "router").Logger()
	return &l
}

// Discovery returns a logger tagged for mDNS advertisement.
func Discovery() *zerolog.Logger {
	l := Log.With().Str("component", "discovery").Logger()
	return &l
}

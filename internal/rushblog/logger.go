// Package rushblog builds the structured logger used across the RUSHB
// server: a thin wrapper around logrus with optional rotated-file output,
// in the shape of the teacher's colored pkg/logger (level-gated helpers
// plus a startup banner) but backed by the corpus's logging library
// instead of hand-rolled ANSI escapes.
package rushblog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the logger New builds.
type Options struct {
	Level string // "debug", "info", "warn", "error"

	// FilePath, if non-empty, also writes logs to a file rotated through
	// lumberjack, in addition to stderr.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds a logrus.Logger per opts. An empty/invalid Level defaults to
// info, matching the teacher's default logger construction.
func New(opts Options) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	// stdout is reserved for the listener's bound-port line (spec §6); logs
	// go to stderr, matching the teacher's log.Println default and
	// logrus's own zero-value output.
	var out io.Writer = os.Stderr
	if opts.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    orDefault(opts.MaxSizeMB, 50),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 28),
		}
		out = io.MultiWriter(os.Stderr, rotator)
	}
	log.SetOutput(out)

	return log
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Banner writes a short startup banner, mirroring the teacher's
// logger.Banner call in core/main.go.
func Banner(log *logrus.Logger, name, version string) {
	log.Infof("%s %s starting", name, version)
}

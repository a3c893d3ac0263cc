// Package logging builds the logrus logger cmd/dbfsync runs with: a
// human-readable stream on stdout and a size-rotated JSON file for
// everything warning-and-above, mirroring the dual console/file handler
// split the ERP sync job's original logging setup used.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig controls the rotated error-log sink. A zero value disables
// file logging entirely (stdout only).
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
}

// DefaultFileConfig rotates at 10MB and keeps 5 backups, matching the
// original job's retention policy.
func DefaultFileConfig(path string) FileConfig {
	return FileConfig{Path: path, MaxSizeMB: 10, MaxBackups: 5}
}

// New builds a logger at level, writing everything to stdout and, if
// fc.Path is set, warning-and-above to a rotated file as JSON.
func New(level string, fc FileConfig) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(lvl)

	if fc.Path != "" {
		rotator := &lumberjack.Logger{
			Filename:   fc.Path,
			MaxSize:    fc.MaxSizeMB,
			MaxBackups: fc.MaxBackups,
		}
		logger.AddHook(&fileHook{
			writer:    rotator,
			formatter: &logrus.JSONFormatter{},
			minLevel:  logrus.WarnLevel,
		})
	}

	return logger, nil
}

// fileHook mirrors entries at or above minLevel to writer, formatted
// independently of the logger's own stdout formatter.
type fileHook struct {
	writer    io.Writer
	formatter logrus.Formatter
	minLevel  logrus.Level
}

func (h *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels[:h.minLevel+1]
}

func (h *fileHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(line)
	return err
}

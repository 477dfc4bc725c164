// internal/logging/logging.go
package logging

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
)

// Options configure the process logger.
type Options struct {
	Level string
	JSON  bool
	// Dir enables per-level rotating log files named <Name>_<level>.log.
	Dir       string
	Name      string
	MaxSizeMB int
}

// New builds a logrus logger from opts.
func New(opts Options) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	logger.SetLevel(level)

	if opts.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	if opts.Dir != "" {
		name := opts.Name
		if name == "" {
			name = "partyhost"
		}
		logger.AddHook(NewFileHook(filepath.Join(opts.Dir, name), opts.MaxSizeMB, logrus.AllLevels))
	}
	return logger, nil
}

// FileHook writes each entry to a rotating file for its level.
type FileHook struct {
	writers map[logrus.Level]io.Writer
	levels  []logrus.Level
	fmt     logrus.Formatter
}

// NewFileHook creates one lumberjack writer per level under the given path prefix.
func NewFileHook(prefix string, maxSizeMB int, levels []logrus.Level) *FileHook {
	if maxSizeMB <= 0 {
		maxSizeMB = 100
	}
	writers := make(map[logrus.Level]io.Writer, len(levels))
	for _, level := range levels {
		writers[level] = &lumberjack.Logger{
			Filename:   fmt.Sprintf("%s_%s.log", prefix, level.String()),
			MaxSize:    maxSizeMB,
			MaxAge:     30,
			MaxBackups: 10,
			LocalTime:  true,
		}
	}
	return &FileHook{
		writers: writers,
		levels:  levels,
		fmt:     &logrus.TextFormatter{DisableColors: true, FullTimestamp: true},
	}
}

func (h *FileHook) Fire(entry *logrus.Entry) error {
	data, err := h.fmt.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.writers[entry.Level].Write(data)
	return err
}

func (h *FileHook) Levels() []logrus.Level {
	return h.levels
}

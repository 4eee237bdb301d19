package config

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds a logger with the given prefix writing to the configured
// rotating file. With no file configured it writes to stderr. The daemon
// uses the file; one-shot CLI commands pass an empty LogConfig and log to
// the terminal.
func (c LogConfig) NewLogger(prefix string) *log.Logger {
	return log.New(c.writer(), prefix, log.LstdFlags)
}

func (c LogConfig) writer() io.Writer {
	if c.File == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   c.File,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAgeDays,
		Compress:   true,
	}
}

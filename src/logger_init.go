package main

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// InitializeGlobalLogger configures logrus with the specified log level for the entire application.
// When logFile is set, output is also written to a size-rotated file.
// This should be called once at application startup
func InitializeGlobalLogger(logLevel, logFile string) {
	level, err := logrus.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		// Default to info level if parsing fails
		level = logrus.InfoLevel
		logrus.WithError(err).Warn("Failed to parse log level, defaulting to info")
	}

	logrus.SetLevel(level)

	formatter := &logrus.TextFormatter{
		FullTimestamp: true,
		ForceColors:   true,
	}

	if logFile != "" {
		// Colors would end up as escape codes in the file.
		formatter.ForceColors = false
		logrus.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    1, // megabytes, the overlay is small
			MaxBackups: 2,
			Compress:   true,
		}))
	}

	// Set a consistent formatter for the entire application
	logrus.SetFormatter(formatter)

	logrus.WithFields(logrus.Fields{
		"log_level": level.String(),
		"log_file":  logFile,
	}).Info("Global logger initialized")
}

package config_manager

import (
	"github.com/sirupsen/logrus"
)

// Module-level logger with pre-configured module field
var logger = logrus.WithField("module", "config_manager")

// GetLogger returns a logger instance for the config_manager module
func GetLogger() *logrus.Entry {
	return logger
}

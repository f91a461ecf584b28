package wifi_manager

import (
	"github.com/sirupsen/logrus"
)

// Module-level logger with pre-configured module field
var logger = logrus.WithField("module", "wifi_manager")

// GetLogger returns a logger instance for the wifi_manager module
func GetLogger() *logrus.Entry {
	return logger
}

package openwrt_driver

import (
	"github.com/sirupsen/logrus"
)

// Module-level logger with pre-configured module field
var logger = logrus.WithField("module", "openwrt_driver")

// GetLogger returns a logger instance for the openwrt_driver module
func GetLogger() *logrus.Entry {
	return logger
}

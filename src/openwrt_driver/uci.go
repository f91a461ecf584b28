package openwrt_driver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/OpenTollGate/tollgate-module-wifi-go/src/wifi_manager"
	"github.com/sirupsen/logrus"
)

// uci runs a uci command. A delete of a missing entry is not an error.
func uci(ctx context.Context, runner CommandRunner, args ...string) (string, error) {
	out, err := runner.Run(ctx, "uci", args...)
	if err != nil {
		var cerr *CommandError
		if len(args) > 0 && args[0] == "delete" && errors.As(err, &cerr) && strings.Contains(cerr.Stderr, "Entry not found") {
			logger.WithField("command", strings.Join(args, " ")).Debug("UCI entry to delete was not found (which is okay)")
			return "", nil
		}
		logger.WithError(err).WithField("command", strings.Join(args, " ")).Error("Failed to execute UCI command")
		return "", err
	}
	return out, nil
}

// uciBatch applies option=value pairs to one section.
type uciBatch struct {
	ctx     context.Context
	runner  CommandRunner
	section string
	err     error
}

func newUCIBatch(ctx context.Context, runner CommandRunner, section string) *uciBatch {
	return &uciBatch{ctx: ctx, runner: runner, section: "wireless." + section}
}

func (b *uciBatch) set(option, value string) *uciBatch {
	if b.err != nil {
		return b
	}
	if _, err := uci(b.ctx, b.runner, "set", fmt.Sprintf("%s.%s=%s", b.section, option, value)); err != nil {
		b.err = fmt.Errorf("set %s.%s: %w", b.section, option, err)
	}
	return b
}

func (b *uciBatch) delete(option string) *uciBatch {
	if b.err != nil {
		return b
	}
	if _, err := uci(b.ctx, b.runner, "delete", b.section+"."+option); err != nil {
		b.err = fmt.Errorf("delete %s.%s: %w", b.section, option, err)
	}
	return b
}

// commitWireless commits the wireless package and optionally reloads the radios.
func commitWireless(ctx context.Context, runner CommandRunner, reload bool) error {
	if _, err := uci(ctx, runner, "commit", "wireless"); err != nil {
		return fmt.Errorf("failed to commit wireless config: %w", err)
	}
	if !reload {
		return nil
	}
	if _, err := runner.Run(ctx, "wifi", "reload"); err != nil {
		logger.WithError(err).Error("Failed to reload wifi")
		return fmt.Errorf("failed to reload wifi: %w", err)
	}
	return nil
}

// uciEncryption maps auth and cipher to the UCI encryption option.
func uciEncryption(auth wifi_manager.AuthType, crypto wifi_manager.CryptoType) string {
	var base string
	switch auth {
	case wifi_manager.AuthOpen:
		return "none"
	case wifi_manager.AuthWEPShared:
		return "wep+shared"
	case wifi_manager.AuthWPAPSK:
		base = "psk"
	case wifi_manager.AuthWPA2PSK:
		base = "psk2"
	case wifi_manager.AuthWPAAndWPA2PSK:
		base = "psk-mixed"
	case wifi_manager.AuthWPA3PSK:
		return "sae"
	default:
		base = "psk2"
	}

	switch crypto {
	case wifi_manager.CryptoAES:
		return base + "+ccmp"
	case wifi_manager.CryptoTKIP:
		return base + "+tkip"
	case wifi_manager.CryptoTKIPAndAES:
		return base + "+tkip+ccmp"
	default:
		return base
	}
}

func logUCISection(section string, fields logrus.Fields) {
	logger.WithField("section", section).WithFields(fields).Debug("Configured wireless section")
}

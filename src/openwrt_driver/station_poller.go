package openwrt_driver

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// stationPoller diffs `iw dev <ap> station dump` to report joins and leaves.
type stationPoller struct {
	runner   CommandRunner
	clock    clock.Clock
	iface    string
	onJoined func(mac string)
	onLeft   func(mac string)

	known    map[string]struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func newStationPoller(runner CommandRunner, clk clock.Clock, iface string, onJoined, onLeft func(string)) *stationPoller {
	return &stationPoller{
		runner:   runner,
		clock:    clk,
		iface:    iface,
		onJoined: onJoined,
		onLeft:   onLeft,
		known:    make(map[string]struct{}),
		stopChan: make(chan struct{}),
	}
}

func (p *stationPoller) start(ctx context.Context, interval time.Duration) {
	ticker := p.clock.Ticker(interval)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopChan:
				return
			case <-ticker.C:
				p.poll(ctx)
			}
		}
	}()
}

func (p *stationPoller) poll(ctx context.Context) {
	out, err := p.runner.Run(ctx, "iw", "dev", p.iface, "station", "dump")
	if err != nil {
		logger.WithError(err).WithField("interface", p.iface).Debug("Station dump failed")
		return
	}

	current := make(map[string]struct{})
	for _, mac := range parseStationDump(out) {
		current[mac] = struct{}{}
		if _, ok := p.known[mac]; !ok {
			logger.WithField("mac", mac).Info("Station associated")
			p.onJoined(mac)
		}
	}
	for mac := range p.known {
		if _, ok := current[mac]; !ok {
			logger.WithField("mac", mac).Info("Station left")
			p.onLeft(mac)
		}
	}
	p.known = current
}

func (p *stationPoller) stop() {
	close(p.stopChan)
	p.wg.Wait()
}

/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package daemon is the monitor's single-threaded, cooperative Event
// Loop: one tick is one full Inventory -> Dispatcher pass, and between
// ticks it sleeps until the earlier of the scan interval elapsing, a
// udev block add/remove, or an mdstat exception condition.
package daemon

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/gravwell/ledmon/config"
	"github.com/gravwell/ledmon/dispatch"
	"github.com/gravwell/ledmon/log"
	"github.com/gravwell/ledmon/model"
	"github.com/gravwell/ledmon/raidmodel"
	"github.com/gravwell/ledmon/shmconfig"
	"github.com/gravwell/ledmon/sysfsinv"
)

// Monitor wires together the inventory, RAID model and dispatcher behind
// the single-threaded scan loop described for the daemon.
type Monitor struct {
	Daemon *model.Daemon

	cfg  config.LedConf
	log  *log.Logger
	inv  *sysfsinv.Inventory
	raid *raidmodel.Reader
	disp *dispatch.Dispatcher

	udev   *UdevMonitor
	mdstat *MdstatWatch

	terminate atomic.Bool
}

// New builds a Monitor. The caller constructs the Inventory and
// Dispatcher (so tests can inject rooted/fake variants) and hands them
// in already configured.
func New(lg *log.Logger, cfg config.LedConf, inv *sysfsinv.Inventory, raid *raidmodel.Reader, disp *dispatch.Dispatcher) *Monitor {
	return &Monitor{
		Daemon: model.NewDaemon(uuid.New().String()),
		cfg:    cfg,
		log:    lg,
		inv:    inv,
		raid:   raid,
		disp:   disp,
	}
}

// installSignalHandlers sets SIGTERM to flip the termination flag and
// explicitly ignores SIGHUP, SIGALRM, SIGPIPE, SIGUSR1 so an
// accidental delivery from a parent shell never kills the daemon.
func (m *Monitor) installSignalHandlers() chan os.Signal {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGTERM)
	signal.Ignore(syscall.SIGHUP, syscall.SIGALRM, syscall.SIGPIPE, syscall.SIGUSR1)
	return sigc
}

// Run starts the event loop and blocks until SIGTERM. It opens the udev
// and mdstat watch descriptors itself so tests exercise Tick directly
// instead of the blocking Run loop.
func (m *Monitor) Run() error {
	sigc := m.installSignalHandlers()

	udev, err := OpenUdevMonitor()
	if err != nil {
		return err
	}
	defer udev.Close()
	m.udev = udev

	mdw, err := OpenMdstatWatch(`/proc/mdstat`)
	if err != nil {
		return err
	}
	defer mdw.Close()
	m.mdstat = mdw

	interval := m.cfg.Interval
	if interval < config.MinInterval {
		interval = config.MinInterval
	}

	for {
		select {
		case <-sigc:
			m.terminate.Store(true)
		default:
		}
		if m.terminate.Load() {
			return nil
		}

		if err := m.Tick(); err != nil {
			m.log.Errorf("scan tick failed: %v", err)
		}

		if err := shmconfig.Publish(shmconfig.DefaultPath, m.cfg); err != nil {
			m.log.Warnf("publishing shared configuration failed: %v", err)
		}

		remaining := int(interval / time.Millisecond)
		udevReady, mdstatReady, err := PollFds(m.udev.Fd(), m.mdstat.Fd(), remaining)
		if err != nil {
			m.log.Warnf("poll failed: %v", err)
			continue
		}
		if udevReady {
			m.handleUdevEvent()
		}
		if mdstatReady {
			m.log.Debugf("mdstat exception condition observed")
		}
	}
}

// Tick runs exactly one Inventory -> RAID Model -> Dispatcher pass.
func (m *Monitor) Tick() error {
	epoch := m.Daemon.NextEpoch()

	snap, err := m.inv.Scan()
	if err != nil {
		return err
	}
	arrays, err := m.raid.Arrays()
	if err != nil {
		m.log.Warnf("reading RAID arrays failed: %v", err)
		arrays = nil
	}

	opt := raidmodel.Options{
		RebuildBlinkOnAll: m.cfg.RebuildBlinkOnAll,
		BlinkOnMigration:  m.cfg.BlinkOnMigration,
		BlinkOnInit:       m.cfg.BlinkOnInit,
	}
	m.disp.Run(epoch, snap, arrays, opt)
	return nil
}

// handleUdevEvent reads and applies one pending udev datagram; a socket
// ready for read may carry more than one, and a single Read keeps each
// tick bounded since the next poll cycle will pick up the rest.
func (m *Monitor) handleUdevEvent() {
	ev, err := m.udev.Read()
	if err != nil {
		m.log.Warnf("reading udev event failed: %v", err)
		return
	}
	if !ev.Relevant() {
		return
	}
	m.disp.ApplyUdevEvent(ev.SysPath, ev.Action)
	m.log.Debugf("udev %s for %s", ev.Action, ev.SysPath)
}

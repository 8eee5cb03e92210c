/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package dispatch folds a scan's sysfs inventory and RAID model into the
// long-lived per-device record, routes each device's computed pattern to
// its owning transport, and flushes batched controllers once per tick.
package dispatch

import (
	"path/filepath"
	"sort"

	"github.com/gravwell/ledmon/ibpi"
	"github.com/gravwell/ledmon/log"
	"github.com/gravwell/ledmon/model"
	"github.com/gravwell/ledmon/raidmodel"
	"github.com/gravwell/ledmon/sysfsinv"
	"github.com/gravwell/ledmon/transport"
)

// Dispatcher owns the long-lived device list that survives across scan
// ticks, keyed by BlockDevice.SysPath (stable across scans per the
// inventory's contract).
type Dispatcher struct {
	log     *log.Logger
	drivers map[model.ControllerType]transport.Driver
	devices map[string]*model.BlockDevice

	// knownArrays is the SysPath set seen on the previous tick, used to
	// detect md-array removal between ticks.
	knownArrays map[string]struct{}
}

// New builds a Dispatcher against a fixed set of transport drivers, one
// per controller type the host inventory may classify.
func New(lg *log.Logger, drivers map[model.ControllerType]transport.Driver) *Dispatcher {
	return &Dispatcher{
		log:         lg,
		drivers:     drivers,
		devices:     make(map[string]*model.BlockDevice),
		knownArrays: make(map[string]struct{}),
	}
}

// linkRaidMembership associates each array's Slave edges with the
// BlockDevice of matching basename, so Suggest has a populated
// Slave.Array/Dev pair to reason about.
func linkRaidMembership(devices map[string]*model.BlockDevice, arrays []*model.RaidDevice) {
	byName := make(map[string]*model.BlockDevice, len(devices))
	for _, dev := range devices {
		byName[filepath.Base(dev.SysPath)] = dev
	}
	for _, arr := range arrays {
		for _, sl := range arr.Slaves {
			dev, ok := byName[sl.DeviceName]
			if !ok {
				continue
			}
			sl.Array = arr
			sl.Dev = dev
			dev.Raid = sl
		}
	}
}

// Run executes one full Revalidate -> Update -> Send -> Flush ->
// Invalidate pass and reports whether any device failed revalidation;
// in that case Run has already emptied the Dispatcher's long-lived list,
// so the next tick rebuilds it from a fresh snapshot.
func (d *Dispatcher) Run(epoch model.ScanEpoch, snap *sysfsinv.Snapshot, arrays []*model.RaidDevice, opt raidmodel.Options) (rebuildNeeded bool) {
	byPath := make(map[string]*model.BlockDevice, len(snap.Devices))
	for _, nd := range snap.Devices {
		byPath[nd.SysPath] = nd
	}

	// Revalidate: re-resolve controller bindings against this scan's
	// snapshot; devices absent from it are marked for removal.
	for path, dev := range d.devices {
		nd, ok := byPath[path]
		if !ok {
			dev.PendingEvent = ibpi.UdevRemove
			rebuildNeeded = true
			continue
		}
		dev.Controller = nd.Controller
		dev.ControllerPath = nd.ControllerPath
		dev.HostIdx = nd.HostIdx
		dev.NVMePort = nd.NVMePort
		dev.SASAddress = nd.SASAddress
		dev.ElementIndex = nd.ElementIndex
		dev.Seen = epoch
	}

	for path, nd := range byPath {
		if _, known := d.devices[path]; !known {
			nd.Seen = epoch
			nd.PendingEvent = ibpi.UdevAdd
			d.devices[path] = nd
		}
	}

	for _, drv := range d.drivers {
		if reg, ok := drv.(transport.EnclosureRegistrar); ok {
			reg.RegisterEnclosures(snap.Enclosures)
		}
	}

	d.clearRemovedArrays(arrays)
	linkRaidMembership(d.devices, arrays)

	// Update + Send: merge the Pattern Algebra result and forward
	// changed patterns to the owning transport; batch per controller.
	touched := make(map[string]*model.BlockDevice)
	for _, dev := range d.devices {
		suggested := ibpi.NORMAL
		if dev.Raid != nil && dev.Raid.Array != nil {
			suggested = raidmodel.Suggest(opt, dev.Raid.Array, dev.Raid)
		}

		ev := dev.PendingEvent
		dev.PendingEvent = ibpi.NoEvent
		next := ibpi.Next(dev.Previous, suggested, ev)
		dev.Current = next
		if next != dev.Previous {
			d.log.Infof("CHANGE %s: from '%s' to '%s'", dev.SysPath, dev.Previous, next)
		}

		if dev.Controller == nil {
			dev.Previous = next
			continue
		}
		drv, ok := d.drivers[dev.Controller.Type]
		if !ok {
			d.log.Warnf("no transport driver registered for controller type %s", dev.Controller.Type)
			dev.Previous = next
			continue
		}
		if next != dev.Previous {
			if err := drv.Send(dev, next); err != nil {
				d.log.Warnf("send to %s failed: %v", dev.SysPath, err)
			} else {
				touched[dev.Controller.Path] = dev
			}
		}
		dev.Previous = next
	}

	// Flush: once per controller, in controller-path order so a run is
	// reproducible across ticks touching the same controllers.
	paths := make([]string, 0, len(touched))
	for p := range touched {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		dev := touched[p]
		drv := d.drivers[dev.Controller.Type]
		if err := drv.Flush(dev); err != nil {
			d.log.Warnf("flush of controller %s failed: %v", p, err)
		}
	}

	// Invalidate: per-scan fields are recomputed from scratch next tick.
	for _, dev := range d.devices {
		dev.Invalidate()
	}

	if rebuildNeeded {
		d.devices = make(map[string]*model.BlockDevice)
	}

	return rebuildNeeded
}

// ApplyUdevEvent records a udev add/remove observed between ticks so the
// next Run call folds it into that device's Pattern Algebra transition;
// devices Run has never seen yet are ignored; the next full scan will
// discover them and any add/remove arriving before then is moot.
func (d *Dispatcher) ApplyUdevEvent(sysPath, action string) {
	dev, ok := d.devices[sysPath]
	if !ok {
		return
	}
	switch action {
	case `add`:
		dev.PendingEvent = ibpi.UdevAdd
	case `remove`:
		dev.PendingEvent = ibpi.UdevRemove
	}
}

// clearRemovedArrays drops the cached raid_dev association for any array
// present on the previous tick but absent from this one, per the rule
// that a removed array's stale membership (and therefore its suggested
// pattern) must not persist indefinitely.
func (d *Dispatcher) clearRemovedArrays(arrays []*model.RaidDevice) {
	seen := make(map[string]struct{}, len(arrays))
	for _, arr := range arrays {
		seen[arr.SysPath] = struct{}{}
	}
	for sysPath := range d.knownArrays {
		if _, ok := seen[sysPath]; !ok {
			d.ClearRaidMembers(sysPath)
		}
	}
	d.knownArrays = seen
}

// ClearRaidMembers drops the cached raid_dev association for every
// device that pointed at the named array, called when md reports the
// array has been removed.
func (d *Dispatcher) ClearRaidMembers(arraySysPath string) {
	for _, dev := range d.devices {
		if dev.Raid != nil && dev.Raid.Array != nil && dev.Raid.Array.SysPath == arraySysPath {
			dev.Raid = nil
		}
	}
}

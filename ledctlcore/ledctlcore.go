/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package ledctlcore implements the control utility's two operating
// modes (pattern mode and slot mode) over the same Inventory/Dispatcher
// path the daemon uses, minus the Event Loop.
package ledctlcore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gravwell/ledmon/ibpi"
	"github.com/gravwell/ledmon/log"
	"github.com/gravwell/ledmon/model"
	"github.com/gravwell/ledmon/sysfsinv"
	"github.com/gravwell/ledmon/transport"
)

// ExitCode mirrors the control utility's defined process exit statuses.
type ExitCode int

const (
	ExitOK              ExitCode = 0
	ExitInvalidPath     ExitCode = 8
	ExitInvalidState    ExitCode = 10
	ExitCmdline         ExitCode = 35
	ExitNotPrivileged   ExitCode = 36
	ExitLogFile         ExitCode = 40
	ExitConfigFile      ExitCode = 39
	ExitNotSupported    ExitCode = 33
)

var (
	ErrInvalidPath  = errors.New("invalid device or controller path")
	ErrInvalidState = errors.New("invalid IBPI pattern name")
)

// ResolveDevicePath turns a CLI device argument into its canonical
// sysfs path, accepting the four forms the control utility must: a
// /dev node, a /sys/block entry, a /sys/class/block entry, and a
// major:minor fall-back resolved through /sys/dev/block.
func ResolveDevicePath(arg string) (string, error) {
	switch {
	case strings.HasPrefix(arg, `/dev/`):
		name := filepath.Base(arg)
		return resolveByName(name)
	case strings.HasPrefix(arg, `/sys/block/`), strings.HasPrefix(arg, `/sys/class/block/`):
		if fi, err := os.Lstat(arg); err == nil {
			if fi.Mode()&os.ModeSymlink != 0 {
				if target, err := filepath.EvalSymlinks(arg); err == nil {
					return target, nil
				}
			}
			return arg, nil
		}
		return ``, ErrInvalidPath
	case strings.Contains(arg, `:`):
		return resolveMajorMinor(arg)
	default:
		return resolveByName(arg)
	}
}

func resolveByName(name string) (string, error) {
	for _, prefix := range []string{`/sys/block/`, `/sys/class/block/`} {
		path := prefix + name
		if target, err := filepath.EvalSymlinks(path); err == nil {
			return target, nil
		}
	}
	return ``, ErrInvalidPath
}

func resolveMajorMinor(mm string) (string, error) {
	path := `/sys/dev/block/` + mm
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return ``, ErrInvalidPath
	}
	return target, nil
}

// PatternRequest is one CLI "pattern=devlist" argument, already split
// and with the pattern name resolved.
type PatternRequest struct {
	Pattern ibpi.Pattern
	Devices []string // resolved sysfs paths
}

// ParsePatternArg splits a "pattern=dev1,dev2,..." CLI token.
func ParsePatternArg(arg string) (PatternRequest, error) {
	parts := strings.SplitN(arg, `=`, 2)
	if len(parts) != 2 {
		return PatternRequest{}, ErrInvalidState
	}
	p, err := ibpi.FromName(parts[0])
	if err != nil {
		return PatternRequest{}, ErrInvalidState
	}
	var devs []string
	for _, d := range strings.Split(parts[1], `,`) {
		d = strings.TrimSpace(d)
		if d == `` {
			continue
		}
		resolved, err := ResolveDevicePath(d)
		if err != nil {
			return PatternRequest{}, err
		}
		devs = append(devs, resolved)
	}
	return PatternRequest{Pattern: p, Devices: devs}, nil
}

// RunPatternMode emits each request's pattern to its listed devices,
// and, unless listedOnly is set, emits LOCATE_OFF to every other LED
// capable device the inventory discovers, to avoid a stale LED on a
// device the caller forgot to list.
func RunPatternMode(lg *log.Logger, inv *sysfsinv.Inventory, drivers map[model.ControllerType]transport.Driver, reqs []PatternRequest, listedOnly bool) error {
	snap, err := inv.Scan()
	if err != nil {
		return err
	}
	byPath := make(map[string]*model.BlockDevice, len(snap.Devices))
	for _, d := range snap.Devices {
		byPath[d.SysPath] = d
	}

	listed := make(map[string]bool)
	for _, req := range reqs {
		for _, path := range req.Devices {
			dev, ok := byPath[path]
			if !ok {
				lg.Warnf("device %s not found in inventory", path)
				continue
			}
			listed[path] = true
			if err := sendAndFlush(dev, req.Pattern, drivers); err != nil {
				lg.Warnf("emit %s to %s failed: %v", req.Pattern, path, err)
			}
		}
	}

	if !listedOnly {
		for path, dev := range byPath {
			if listed[path] {
				continue
			}
			if err := sendAndFlush(dev, ibpi.LOCATE_OFF, drivers); err != nil {
				lg.Warnf("locate_off to %s failed: %v", path, err)
			}
		}
	}
	return nil
}

func sendAndFlush(dev *model.BlockDevice, p ibpi.Pattern, drivers map[model.ControllerType]transport.Driver) error {
	if dev.Controller == nil {
		return ErrInvalidPath
	}
	drv, ok := drivers[dev.Controller.Type]
	if !ok {
		return ErrInvalidPath
	}
	if err := drv.Send(dev, p); err != nil {
		return err
	}
	return drv.Flush(dev)
}

// ListControllers returns one model.Slot-less summary line per
// controller discovered by a scan, for `--list-controllers`.
func ListControllers(snap *sysfsinv.Snapshot) []string {
	seen := make(map[string]model.ControllerType)
	for _, d := range snap.Devices {
		if d.Controller != nil {
			seen[d.Controller.Path] = d.Controller.Type
		}
	}
	out := make([]string, 0, len(seen))
	for path, typ := range seen {
		out = append(out, fmt.Sprintf("%s %s", typ, path))
	}
	sort.Strings(out)
	return out
}

// ListSlots returns every model.Slot belonging to the named controller.
func ListSlots(snap *sysfsinv.Snapshot, controllerPath string) []model.Slot {
	var out []model.Slot
	for _, d := range snap.Devices {
		if d.Controller == nil || d.Controller.Path != controllerPath {
			continue
		}
		id := d.HostIdx
		if d.Controller.Type == model.ControllerSCSISES {
			id = d.ElementIndex
		}
		out = append(out, model.Slot{
			Type:   d.Controller.Type,
			ID:     strconv.Itoa(id),
			Device: filepath.Base(d.SysPath),
			State:  d.Current,
		})
	}
	return out
}

// FindSlot resolves --device or --slot (mutually exclusive) to the
// matching model.Slot within a controller's device list.
func FindSlot(snap *sysfsinv.Snapshot, controllerPath, device, slot string) (model.Slot, error) {
	if (device == ``) == (slot == ``) {
		return model.Slot{}, ErrInvalidPath
	}
	for _, s := range ListSlots(snap, controllerPath) {
		if device != `` && s.Device == filepath.Base(device) {
			return s, nil
		}
		if slot != `` && s.ID == slot {
			return s, nil
		}
	}
	return model.Slot{}, ErrInvalidPath
}

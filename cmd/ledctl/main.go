/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package main

import (
	"fmt"
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"

	"github.com/gravwell/ledmon/config"
	"github.com/gravwell/ledmon/ibpi"
	"github.com/gravwell/ledmon/ledctlcore"
	"github.com/gravwell/ledmon/log"
	"github.com/gravwell/ledmon/model"
	"github.com/gravwell/ledmon/shmconfig"
	"github.com/gravwell/ledmon/sysfsinv"
	"github.com/gravwell/ledmon/transport"
)

const progname = `ledctl`

// options mirrors the control utility's flat option surface; IBPI
// pattern mode is the default when no explicit mode flag is given.
type options struct {
	ListControllers bool     `long:"list-controllers"`
	ListSlots       bool     `long:"list-slots"`
	GetSlot         bool     `long:"get-slot"`
	SetSlot         bool     `long:"set-slot"`
	ControllerType  string   `long:"controller-type"`
	Device          string   `long:"device"`
	Slot            string   `long:"slot"`
	State           string   `long:"state"`
	Print           bool     `long:"print"`
	ListedOnly      bool     `long:"listed-only"`
	LogPath         string   `long:"log"`
	LogLevel        string   `long:"log-level"`
	Version         bool     `long:"version"`
	Positional      struct {
		Args []string `positional-arg-name:"PATTERN=DEV[,DEV...] | CONTROLLER"`
	} `positional-args:"yes"`
}

func main() {
	var opt options
	var err error
	parser := flags.NewParser(&opt, flags.Default)
	_, err = parser.Parse()
	if err != nil {
		os.Exit(int(ledctlcore.ExitCmdline))
	}

	if opt.Version {
		fmt.Println(progname, `(ledmon)`)
		os.Exit(int(ledctlcore.ExitOK))
	}

	lg := log.NewDiscard()
	if opt.LogPath != `` {
		if f, err := log.NewFile(opt.LogPath); err == nil {
			lg = f
		} else {
			fmt.Fprintf(os.Stderr, "%s: opening log %s: %v\n", progname, opt.LogPath, err)
			os.Exit(int(ledctlcore.ExitLogFile))
		}
	}
	if opt.LogLevel != `` {
		if lvl, err := log.LevelFromString(opt.LogLevel); err == nil {
			lg.SetLevel(lvl)
		}
	}

	cfg, present, err := shmconfig.Load(shmconfig.DefaultPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: reading shared configuration: %v\n", progname, err)
	}
	if !present {
		cfg, err = config.Load(config.DefaultPath)
		if err != nil {
			os.Exit(int(ledctlcore.ExitConfigFile))
		}
	}

	inv := sysfsinv.New(lg, cfg.Allow, cfg.Exclude)
	snap, err := inv.Scan()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: inventory scan failed: %v\n", progname, err)
		os.Exit(int(ledctlcore.ExitInvalidPath))
	}
	drivers := transport.BuildDrivers(snap.PciSlots, sysfsinv.IPMIPlatformName(sysfsinv.ReadDMIProductName()))

	switch {
	case opt.ListControllers:
		for _, line := range ledctlcore.ListControllers(snap) {
			fmt.Println(line)
		}
	case opt.ListSlots:
		if len(opt.Positional.Args) < 1 {
			os.Exit(int(ledctlcore.ExitCmdline))
		}
		for _, s := range ledctlcore.ListSlots(snap, opt.Positional.Args[0]) {
			fmt.Printf("%s %s %s\n", s.ID, s.Device, s.State)
		}
	case opt.GetSlot:
		if len(opt.Positional.Args) < 1 {
			os.Exit(int(ledctlcore.ExitCmdline))
		}
		slot, err := ledctlcore.FindSlot(snap, opt.Positional.Args[0], opt.Device, opt.Slot)
		if err != nil {
			os.Exit(int(ledctlcore.ExitInvalidPath))
		}
		fmt.Println(slot.State)
	case opt.SetSlot:
		if len(opt.Positional.Args) < 1 || opt.State == `` {
			os.Exit(int(ledctlcore.ExitCmdline))
		}
		slot, err := ledctlcore.FindSlot(snap, opt.Positional.Args[0], opt.Device, opt.Slot)
		if err != nil {
			os.Exit(int(ledctlcore.ExitInvalidPath))
		}
		pattern, err := ibpi.FromName(opt.State)
		if err != nil {
			os.Exit(int(ledctlcore.ExitInvalidState))
		}
		drv, ok := drivers[slot.Type]
		if !ok {
			os.Exit(int(ledctlcore.ExitNotSupported))
		}
		var dev *model.BlockDevice
		for _, d := range snap.Devices {
			if d.Controller != nil && d.Controller.Path == opt.Positional.Args[0] && filepath.Base(d.SysPath) == slot.Device {
				dev = d
				break
			}
		}
		if dev == nil {
			os.Exit(int(ledctlcore.ExitInvalidPath))
		}
		if err := drv.Send(dev, pattern); err != nil || drv.Flush(dev) != nil {
			os.Exit(int(ledctlcore.ExitInvalidState))
		}
		os.Exit(int(ledctlcore.ExitOK))
	default:
		var reqs []ledctlcore.PatternRequest
		for _, a := range opt.Positional.Args {
			req, err := ledctlcore.ParsePatternArg(a)
			if err != nil {
				os.Exit(int(ledctlcore.ExitInvalidState))
			}
			reqs = append(reqs, req)
		}
		if err := ledctlcore.RunPatternMode(lg, inv, drivers, reqs, opt.ListedOnly); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", progname, err)
			os.Exit(int(ledctlcore.ExitInvalidState))
		}
	}
}

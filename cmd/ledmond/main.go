/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gravwell/ledmon/config"
	"github.com/gravwell/ledmon/daemon"
	"github.com/gravwell/ledmon/dispatch"
	"github.com/gravwell/ledmon/log"
	"github.com/gravwell/ledmon/raidmodel"
	"github.com/gravwell/ledmon/sysfsinv"
	"github.com/gravwell/ledmon/transport"
)

const progname = `ledmond`

var (
	confPath   = flag.String(`c`, config.DefaultPath, "configuration file path")
	logPath    = flag.String(`l`, ``, "log file path (overrides the configuration file)")
	interval   = flag.Int(`t`, 0, "scan interval in seconds (overrides the configuration file)")
	foreground = flag.Bool(`foreground`, false, "do not redirect stderr, stay attached to the controlling terminal")
	logLevel   = flag.String(`log-level`, ``, "QUIET/ERROR/WARNING/INFO/DEBUG/ALL (overrides the configuration file)")
	showVer    = flag.Bool(`v`, false, "print version information and exit")
)

func main() {
	flag.Parse()
	if *showVer {
		fmt.Println(progname, `(ledmon)`)
		os.Exit(0)
	}

	cfg, err := config.Load(*confPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: reading %s: %v\n", progname, *confPath, err)
		os.Exit(39)
	}
	if *logPath != `` {
		cfg.LogPath = *logPath
	}
	if *interval > 0 {
		cfg.Interval = clampInterval(*interval)
	}
	if *logLevel != `` {
		lvl, err := log.LevelFromString(*logLevel)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", progname, err)
			os.Exit(35)
		}
		cfg.LogLevel = lvl
	}

	lg, err := log.NewFile(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: opening log file %s: %v\n", progname, cfg.LogPath, err)
		os.Exit(40)
	}
	lg.SetLevel(cfg.LogLevel)
	if cfg.ExcludeIgnored {
		lg.Warnf("both ALLOWLIST and EXCLUDELIST are set; EXCLUDELIST is ignored")
	}
	log.PrintOSInfo(os.Stdout)

	if !*foreground {
		if _, err := log.NewStderrRedirect(cfg.LogPath); err != nil {
			lg.Warnf("could not redirect stderr to log file: %v", err)
		}
	}

	pf, err := daemon.Acquire(`/var/run/` + progname + `.pid`)
	if err != nil {
		lg.Errorf("acquiring pid file: %v", err)
		os.Exit(1)
	}
	defer pf.Release()

	inv := sysfsinv.New(lg, cfg.Allow, cfg.Exclude)
	snap, err := inv.Scan()
	if err != nil {
		lg.Errorf("initial inventory scan failed: %v", err)
		os.Exit(1)
	}
	platform := detectPlatform()
	drivers := transport.BuildDrivers(snap.PciSlots, platform)
	disp := dispatch.New(lg, drivers)
	raid := raidmodel.NewReader()

	mon := daemon.New(lg, cfg, inv, raid, disp)
	lg.Infof("%s starting, run id %s", progname, mon.Daemon.RunID)
	if err := mon.Run(); err != nil {
		lg.Errorf("event loop exited: %v", err)
		os.Exit(1)
	}
}

func detectPlatform() string {
	return sysfsinv.IPMIPlatformName(sysfsinv.ReadDMIProductName())
}

func clampInterval(seconds int) time.Duration {
	d := time.Duration(seconds) * time.Second
	if d < config.MinInterval {
		return config.MinInterval
	}
	return d
}

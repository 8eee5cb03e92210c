/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package shmconfig publishes the daemon's effective configuration to
// the named POSIX shared-memory object the control utility consults on
// start-up, ahead of its own configuration file.
package shmconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/renameio"

	"github.com/gravwell/ledmon/config"
)

// DefaultPath is where the shared configuration object is visible once
// /dev/shm is mounted (the kernel creates the backing tmpfs entry for a
// POSIX shm_open("/ledmon.conf", ...) there).
const DefaultPath = `/dev/shm/ledmon.conf`

// Publish writes cfg's effective values to path as KEY=VALUE lines, one
// per recognized option, replacing the file atomically so a concurrent
// reader never observes a partial write.
func Publish(path string, cfg config.LedConf) error {
	var b strings.Builder
	fmt.Fprintf(&b, "BLINK_ON_INIT=%s\n", boolStr(cfg.BlinkOnInit))
	fmt.Fprintf(&b, "BLINK_ON_MIGR=%s\n", boolStr(cfg.BlinkOnMigration))
	fmt.Fprintf(&b, "LOG_LEVEL=%s\n", cfg.LogLevel.String())
	fmt.Fprintf(&b, "LOG_PATH=%s\n", cfg.LogPath)
	fmt.Fprintf(&b, "RAID_MEMBERS_ONLY=%s\n", boolStr(cfg.RaidMembersOnly))
	fmt.Fprintf(&b, "REBUILD_BLINK_ON_ALL=%s\n", boolStr(cfg.RebuildBlinkOnAll))
	fmt.Fprintf(&b, "INTERVAL=%s\n", strconv.Itoa(int(cfg.Interval.Seconds())))
	fmt.Fprintf(&b, "ALLOWLIST=%s\n", strings.Join(cfg.Allow, `,`))
	fmt.Fprintf(&b, "EXCLUDELIST=%s\n", strings.Join(cfg.Exclude, `,`))

	return renameio.WriteFile(path, []byte(b.String()), 0644)
}

func boolStr(b bool) string {
	if b {
		return `true`
	}
	return `false`
}

// Load reads a previously published shared configuration object. The
// bool result reports whether the object existed at all: the control
// utility falls back to its own configuration file, and then built-in
// defaults, only when it does not.
func Load(path string) (config.LedConf, bool, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return config.LedConf{}, false, nil
		}
		return config.LedConf{}, false, err
	}
	c, err := config.Load(path)
	if err != nil {
		return config.LedConf{}, true, err
	}
	return c, true, nil
}

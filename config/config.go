/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package config loads and validates the daemon's runtime configuration:
// LedConf, parsed from a flat KEY=VALUE file rather than the gcfg-style
// [section] INI the rest of the ingest stack uses — a plain
// bufio.Scanner split on the first '=' gets us there without dragging in
// a parser built for a shape we don't have.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gravwell/ledmon/log"
)

const (
	// MinInterval is the lowest INTERVAL the daemon will accept; anything
	// lower is silently clamped up to it.
	MinInterval = 5 * time.Second
	// DefaultInterval is used when INTERVAL is absent from the file.
	DefaultInterval = 10 * time.Second

	DefaultLogPath = `/var/log/ledmon.log`
	DefaultPath    = `/etc/ledmon.conf`
)

// LedConf is the daemon's effective runtime configuration. Every field
// has a documented default, so a missing config file is equivalent to an
// empty one.
type LedConf struct {
	Interval time.Duration
	LogLevel log.Level
	LogPath  string

	BlinkOnInit       bool
	BlinkOnMigration  bool
	RebuildBlinkOnAll bool
	RaidMembersOnly   bool

	Allow   []string
	Exclude []string

	// ExcludeIgnored is set when both ALLOWLIST and EXCLUDELIST were
	// non-empty in the file; ledmond logs a warning for it once its
	// Logger is available (Load runs before logging is configured).
	ExcludeIgnored bool
}

// Default returns the configuration in effect when no file is present at
// all.
func Default() LedConf {
	return LedConf{
		Interval: DefaultInterval,
		LogLevel: log.WARNING,
		LogPath:  DefaultLogPath,

		BlinkOnInit:      true,
		BlinkOnMigration: true,
	}
}

// Load reads and parses the config file at path. A missing file is not
// an error: it simply yields Default() so that a clean install behaves
// sensibly (mirrors how the source's ledmon.conf.5 documents its
// defaults as "used if omitted").
func Load(path string) (LedConf, error) {
	c := Default()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, err
	}
	defer f.Close()
	return parse(f, c)
}

func parse(r io.Reader, c LedConf) (LedConf, error) {
	var sawAllow, sawExclude bool

	sc := bufio.NewScanner(r)
	for lineno := 1; sc.Scan(); lineno++ {
		ln := strings.TrimSpace(sc.Text())
		if ln == `` || strings.HasPrefix(ln, `#`) {
			continue
		}
		key, val, ok := strings.Cut(ln, `=`)
		if !ok {
			return c, fmt.Errorf("line %d: missing '=': %q", lineno, ln)
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		val = strings.TrimSpace(val)

		switch key {
		case `INTERVAL`:
			secs, err := strconv.Atoi(val)
			if err != nil {
				return c, fmt.Errorf("line %d: INTERVAL: %w", lineno, err)
			}
			c.Interval = time.Duration(secs) * time.Second
			if c.Interval < MinInterval {
				c.Interval = MinInterval
			}
		case `LOG_LEVEL`:
			lvl, err := log.LevelFromString(val)
			if err != nil {
				return c, fmt.Errorf("line %d: LOG_LEVEL: %w", lineno, err)
			}
			c.LogLevel = lvl
		case `LOG_PATH`:
			c.LogPath = val
		case `BLINK_ON_MIGR`:
			b, err := ParseBool(val)
			if err != nil {
				return c, fmt.Errorf("line %d: BLINK_ON_MIGR: %w", lineno, err)
			}
			c.BlinkOnMigration = b
		case `BLINK_ON_INIT`:
			b, err := ParseBool(val)
			if err != nil {
				return c, fmt.Errorf("line %d: BLINK_ON_INIT: %w", lineno, err)
			}
			c.BlinkOnInit = b
		case `REBUILD_BLINK_ON_ALL`:
			b, err := ParseBool(val)
			if err != nil {
				return c, fmt.Errorf("line %d: REBUILD_BLINK_ON_ALL: %w", lineno, err)
			}
			c.RebuildBlinkOnAll = b
		case `RAID_MEMBERS_ONLY`:
			b, err := ParseBool(val)
			if err != nil {
				return c, fmt.Errorf("line %d: RAID_MEMBERS_ONLY: %w", lineno, err)
			}
			c.RaidMembersOnly = b
		case `ALLOWLIST`, `WHITELIST`:
			c.Allow = ParsePathList(val)
			sawAllow = true
		case `EXCLUDELIST`, `BLACKLIST`:
			c.Exclude = ParsePathList(val)
			sawExclude = true
		default:
			return c, fmt.Errorf("line %d: unrecognized key %q", lineno, key)
		}
	}
	if err := sc.Err(); err != nil {
		return c, err
	}

	// ALLOWLIST wins outright; a simultaneously-set EXCLUDELIST is
	// dropped with a warning rather than rejected.
	if sawAllow && sawExclude && len(c.Allow) > 0 && len(c.Exclude) > 0 {
		c.Exclude = nil
		c.ExcludeIgnored = true
	}
	return c, nil
}

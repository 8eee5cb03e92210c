/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package raidmodel reads /proc/mdstat and each array's md/* sysfs
// attributes, builds a RaidDevice per array and a Slave edge per
// member, and suggests an IBPI pattern for every member.
package raidmodel

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gravwell/ledmon/ibpi"
	"github.com/gravwell/ledmon/model"
)

// Options gates the three suggestion rules that are user-configurable
// rather than structural: which members a recovery marks REBUILD
// (RebuildBlinkOnAll), whether a reshape blinks
// (BlinkOnMigration), and whether array initialization blinks at all
// (BlinkOnInit).
type Options struct {
	RebuildBlinkOnAll bool
	BlinkOnMigration  bool
	BlinkOnInit       bool
}

// memberPredicate is one row of the ordered, first-match-wins pattern
// table: given an array and one of its members, does this condition
// apply?
type memberPredicate struct {
	Name  string
	Match func(opt Options, arr *model.RaidDevice, sl *model.Slave) bool
	Want  ibpi.Pattern
}

var memberTable = []memberPredicate{
	{
		Name:  `faulty`,
		Match: func(_ Options, _ *model.RaidDevice, sl *model.Slave) bool { return sl.State.Faulty },
		Want:  ibpi.FAILED_DRIVE,
	},
	{
		Name: `array degraded, member missing`,
		Match: func(_ Options, arr *model.RaidDevice, sl *model.Slave) bool {
			return arr.Degraded > 0 && sl.Slot < 0
		},
		Want: ibpi.FAILED_ARRAY,
	},
	{
		Name: `recovering, member in sync slot`,
		Match: func(opt Options, arr *model.RaidDevice, sl *model.Slave) bool {
			return arr.SyncAction == model.SyncRecover && (opt.RebuildBlinkOnAll || sl.State.InSync)
		},
		Want: ibpi.REBUILD,
	},
	{
		Name: `reshaping, migration blink enabled`,
		Match: func(opt Options, arr *model.RaidDevice, _ *model.Slave) bool {
			return arr.SyncAction == model.SyncReshape && opt.BlinkOnMigration
		},
		Want: ibpi.REBUILD,
	},
	{
		Name: `array clear/inactive, member in sync`,
		Match: func(_ Options, arr *model.RaidDevice, sl *model.Slave) bool {
			return (arr.State == model.ArrayStateClear || arr.State == model.ArrayStateInactive) && sl.State.InSync
		},
		Want: ibpi.HOTSPARE,
	},
	{
		Name:  `spare`,
		Match: func(_ Options, _ *model.RaidDevice, sl *model.Slave) bool { return sl.State.Spare },
		Want:  ibpi.HOTSPARE,
	},
	{
		Name: `initializing, blink on init enabled`,
		Match: func(opt Options, arr *model.RaidDevice, _ *model.Slave) bool {
			return arr.SyncAction == model.SyncResync && opt.BlinkOnInit
		},
		Want: ibpi.REBUILD,
	},
}

// Suggest returns the IBPI pattern the RAID model proposes for sl, per
// the ordered member table (first match wins, default NORMAL).
func Suggest(opt Options, arr *model.RaidDevice, sl *model.Slave) ibpi.Pattern {
	for _, row := range memberTable {
		if row.Match(opt, arr, sl) {
			return row.Want
		}
	}
	return ibpi.NORMAL
}

// Reader builds RaidDevice/Slave graphs from /proc/mdstat and md sysfs.
type Reader struct {
	ProcMdstat string // defaults to /proc/mdstat
	SysBlock   string // defaults to /sys/block
}

// NewReader returns a Reader pointed at the live kernel surfaces.
func NewReader() *Reader {
	return &Reader{ProcMdstat: `/proc/mdstat`, SysBlock: `/sys/block`}
}

// Arrays parses every md array mentioned in /proc/mdstat and returns
// fully populated RaidDevice graphs (including their Slave members).
// An unreadable or unparseable individual array is skipped; it never
// aborts the whole scan.
func (r *Reader) Arrays() ([]*model.RaidDevice, error) {
	names, err := mdstatArrayNames(r.ProcMdstat)
	if err != nil {
		return nil, err
	}
	var out []*model.RaidDevice
	for _, name := range names {
		arr, err := r.readArray(name)
		if err != nil {
			continue
		}
		out = append(out, arr)
	}
	return out, nil
}

func mdstatArrayNames(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return parseMdstatNames(f)
}

// parseMdstatNames extracts the leading "mdN :" array names from
// /proc/mdstat, ignoring the "Personalities" header and "unused
// devices" footer lines.
func parseMdstatNames(r io.Reader) ([]string, error) {
	var names []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		ln := sc.Text()
		if !strings.HasPrefix(ln, `md`) {
			continue
		}
		fields := strings.Fields(ln)
		if len(fields) >= 2 && fields[1] == `:` {
			names = append(names, fields[0])
		}
	}
	return names, sc.Err()
}

func (r *Reader) readArray(name string) (*model.RaidDevice, error) {
	mdDir := filepath.Join(r.SysBlock, name, `md`)

	level, _ := readTrimmed(filepath.Join(mdDir, `level`))
	stateStr, _ := readTrimmed(filepath.Join(mdDir, `array_state`))
	syncStr, _ := readTrimmed(filepath.Join(mdDir, `sync_action`))
	degradedStr, _ := readTrimmed(filepath.Join(mdDir, `degraded`))
	raidDisksStr, _ := readTrimmed(filepath.Join(mdDir, `raid_disks`))

	degraded, _ := strconv.Atoi(degradedStr)
	raidDisks, _ := strconv.Atoi(raidDisksStr)

	arr := &model.RaidDevice{
		SysPath:    filepath.Join(r.SysBlock, name),
		Container:  model.RaidLevel(level) == model.RaidLevelContainr,
		Level:      model.RaidLevel(level),
		State:      model.ArrayStateFromString(stateStr),
		SyncAction: model.SyncActionFromString(syncStr),
		RaidDisks:  raidDisks,
		Degraded:   degraded,
	}

	entries, err := os.ReadDir(mdDir)
	if err != nil {
		return arr, nil // array with no readable member directory yet (assembling)
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), `rd`) && !strings.HasPrefix(e.Name(), `dev-`) {
			continue
		}
		slaveDir := filepath.Join(mdDir, e.Name())
		sl := readSlave(slaveDir)
		sl.Array = arr
		arr.Slaves = append(arr.Slaves, sl)
	}
	return arr, nil
}

func readSlave(dir string) *model.Slave {
	stateStr, _ := readTrimmed(filepath.Join(dir, `state`))
	slotStr, _ := readTrimmed(filepath.Join(dir, `slot`))
	errorsStr, _ := readTrimmed(filepath.Join(dir, `errors`))

	slot, err := strconv.Atoi(slotStr)
	if err != nil {
		slot = -1
	}
	errs, _ := strconv.ParseUint(errorsStr, 10, 64)

	sl := &model.Slave{Slot: slot, Errors: errs, DeviceName: slaveDeviceName(dir)}
	for _, flag := range strings.Split(stateStr, `,`) {
		switch strings.TrimSpace(flag) {
		case `faulty`:
			sl.State.Faulty = true
		case `in_sync`:
			sl.State.InSync = true
		case `spare`:
			sl.State.Spare = true
		case `write_mostly`:
			sl.State.WriteMostly = true
		case `blocked`:
			sl.State.Blocked = true
		}
	}
	return sl
}

// slaveDeviceName resolves an md slave directory (dev-sda1, or a bare
// "rdN" that itself holds a "block" symlink) to its bare disk name,
// stripping any trailing partition digits.
func slaveDeviceName(dir string) string {
	name := filepath.Base(dir)
	name = strings.TrimPrefix(name, `dev-`)
	if name == filepath.Base(dir) {
		// rdN form: the member name is carried by a nested block symlink.
		if link, err := os.Readlink(filepath.Join(dir, `block`)); err == nil {
			name = filepath.Base(link)
		}
	}
	return stripPartitionSuffix(name)
}

// stripPartitionSuffix turns "sda1" into "sda", "nvme0n1p3" into
// "nvme0n1"; names with no trailing digits are returned unchanged.
func stripPartitionSuffix(name string) string {
	i := len(name)
	for i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
		i--
	}
	if i > 0 && name[i-1] == 'p' && strings.HasPrefix(name, `nvme`) {
		i--
	}
	return name[:i]
}

func readTrimmed(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ``, err
	}
	return strings.TrimRight(string(b), "\n\r"), nil
}

/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package raidmodel

import (
	"strings"
	"testing"

	"github.com/gravwell/ledmon/ibpi"
	"github.com/gravwell/ledmon/model"
)

func TestSuggestFaultyWins(t *testing.T) {
	arr := &model.RaidDevice{Degraded: 1}
	sl := &model.Slave{State: model.SlaveState{Faulty: true, Spare: true}, Slot: -1}
	if got := Suggest(Options{}, arr, sl); got != ibpi.FAILED_DRIVE {
		t.Errorf("Suggest = %v, want FAILED_DRIVE (faulty must win over other flags)", got)
	}
}

func TestSuggestDegradedMissingMember(t *testing.T) {
	arr := &model.RaidDevice{Degraded: 1}
	sl := &model.Slave{Slot: -1}
	if got := Suggest(Options{}, arr, sl); got != ibpi.FAILED_ARRAY {
		t.Errorf("Suggest = %v, want FAILED_ARRAY", got)
	}
}

func TestSuggestRecoverRequiresInSyncUnlessBlinkAll(t *testing.T) {
	arr := &model.RaidDevice{SyncAction: model.SyncRecover}
	sl := &model.Slave{Slot: 0, State: model.SlaveState{InSync: false}}
	if got := Suggest(Options{}, arr, sl); got == ibpi.REBUILD {
		t.Error("non-in-sync member should not rebuild without RebuildBlinkOnAll")
	}
	if got := Suggest(Options{RebuildBlinkOnAll: true}, arr, sl); got != ibpi.REBUILD {
		t.Errorf("Suggest = %v, want REBUILD with RebuildBlinkOnAll", got)
	}
}

func TestSuggestReshapeRequiresBlinkOnMigration(t *testing.T) {
	arr := &model.RaidDevice{SyncAction: model.SyncReshape}
	sl := &model.Slave{Slot: 0}
	if got := Suggest(Options{}, arr, sl); got != ibpi.NORMAL {
		t.Errorf("Suggest = %v, want NORMAL without BlinkOnMigration", got)
	}
	if got := Suggest(Options{BlinkOnMigration: true}, arr, sl); got != ibpi.REBUILD {
		t.Errorf("Suggest = %v, want REBUILD with BlinkOnMigration", got)
	}
}

func TestSuggestInitializingRequiresBlinkOnInit(t *testing.T) {
	arr := &model.RaidDevice{SyncAction: model.SyncResync}
	sl := &model.Slave{Slot: 0, State: model.SlaveState{InSync: true}}
	if got := Suggest(Options{}, arr, sl); got != ibpi.NORMAL {
		t.Errorf("Suggest = %v, want NORMAL without BlinkOnInit", got)
	}
	if got := Suggest(Options{BlinkOnInit: true}, arr, sl); got != ibpi.REBUILD {
		t.Errorf("Suggest = %v, want REBUILD with BlinkOnInit", got)
	}
}

func TestSuggestSpareIsHotspare(t *testing.T) {
	sl := &model.Slave{Slot: -1, State: model.SlaveState{Spare: true}}
	if got := Suggest(Options{}, &model.RaidDevice{}, sl); got != ibpi.HOTSPARE {
		t.Errorf("Suggest = %v, want HOTSPARE", got)
	}
}

func TestSuggestDefaultNormal(t *testing.T) {
	sl := &model.Slave{Slot: 0, State: model.SlaveState{InSync: true}}
	arr := &model.RaidDevice{State: model.ArrayStateClean}
	if got := Suggest(Options{}, arr, sl); got != ibpi.NORMAL {
		t.Errorf("Suggest = %v, want NORMAL", got)
	}
}

func TestParseMdstatNames(t *testing.T) {
	const sample = `Personalities : [raid1] [raid6] [raid5] [raid4]
md0 : active raid1 sdb1[1] sda1[0]
      10476544 blocks super 1.2 [2/2] [UU]

md1 : active raid5 sdc1[2] sdb1[1] sda1[0]
      20953088 blocks super 1.2 level 5, 64k chunk, algorithm 2 [3/3] [UUU]

unused devices: <none>
`
	names, err := parseMdstatNames(strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != `md0` || names[1] != `md1` {
		t.Errorf("parseMdstatNames = %v", names)
	}
}

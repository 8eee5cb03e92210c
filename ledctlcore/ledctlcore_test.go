/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package ledctlcore

import (
	"testing"

	"github.com/gravwell/ledmon/ibpi"
	"github.com/gravwell/ledmon/model"
	"github.com/gravwell/ledmon/sysfsinv"
)

func TestParsePatternArgRejectsBadSyntax(t *testing.T) {
	if _, err := ParsePatternArg(`locate`); err == nil {
		t.Fatalf("expected error for a token with no '='")
	}
	if _, err := ParsePatternArg(`bogus=/dev/sda`); err == nil {
		t.Fatalf("expected error for an unrecognized pattern name")
	}
}

func TestFindSlotRejectsBothOrNeither(t *testing.T) {
	snap := &sysfsinv.Snapshot{}
	if _, err := FindSlot(snap, `/sys/foo`, `sda`, `0`); err == nil {
		t.Fatalf("expected error when both --device and --slot are set")
	}
	if _, err := FindSlot(snap, `/sys/foo`, ``, ``); err == nil {
		t.Fatalf("expected error when neither --device nor --slot is set")
	}
}

func TestFindSlotByDevice(t *testing.T) {
	snap := &sysfsinv.Snapshot{
		Devices: []*model.BlockDevice{
			{
				SysPath:    `/sys/block/sda`,
				HostIdx:    2,
				Current:    ibpi.NORMAL,
				Controller: &model.Controller{Type: model.ControllerAHCI, Path: `/sys/foo`},
			},
		},
	}
	slot, err := FindSlot(snap, `/sys/foo`, `sda`, ``)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slot.Device != `sda` || slot.State != ibpi.NORMAL {
		t.Fatalf("unexpected slot: %+v", slot)
	}
}

func TestListSlotsUsesElementIndexForSES(t *testing.T) {
	snap := &sysfsinv.Snapshot{
		Devices: []*model.BlockDevice{
			{
				SysPath:      `/sys/block/sdc`,
				HostIdx:      7,
				ElementIndex: 3,
				Controller:   &model.Controller{Type: model.ControllerSCSISES, Path: `/dev/sg0`},
			},
		},
	}
	slots := ListSlots(snap, `/dev/sg0`)
	if len(slots) != 1 || slots[0].ID != `3` {
		t.Fatalf("expected SES slot ID to be the element index (3), got %+v", slots)
	}
}

func TestListControllersDeduplicates(t *testing.T) {
	snap := &sysfsinv.Snapshot{
		Devices: []*model.BlockDevice{
			{SysPath: `/sys/block/sda`, Controller: &model.Controller{Type: model.ControllerAHCI, Path: `/sys/foo`}},
			{SysPath: `/sys/block/sdb`, Controller: &model.Controller{Type: model.ControllerAHCI, Path: `/sys/foo`}},
		},
	}
	out := ListControllers(snap)
	if len(out) != 1 {
		t.Fatalf("expected controllers deduplicated by path, got %v", out)
	}
}

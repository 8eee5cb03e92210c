/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package dispatch

import (
	"testing"

	"github.com/gravwell/ledmon/ibpi"
	"github.com/gravwell/ledmon/log"
	"github.com/gravwell/ledmon/model"
	"github.com/gravwell/ledmon/raidmodel"
	"github.com/gravwell/ledmon/sysfsinv"
	"github.com/gravwell/ledmon/transport"
)

type fakeDriver struct {
	sent    []ibpi.Pattern
	flushes int
	sendErr error
}

func (f *fakeDriver) Probe(string) bool { return true }
func (f *fakeDriver) Send(dev *model.BlockDevice, p ibpi.Pattern) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, p)
	return nil
}
func (f *fakeDriver) Flush(dev *model.BlockDevice) error {
	f.flushes++
	return nil
}

func newTestDevice(path string) *model.BlockDevice {
	return &model.BlockDevice{
		SysPath:        path,
		ControllerPath: path,
		Controller:     &model.Controller{Type: model.ControllerAHCI, Path: path},
	}
}

func TestRunSendsOnFirstObservation(t *testing.T) {
	drv := &fakeDriver{}
	d := New(log.NewDiscard(), map[model.ControllerType]transport.Driver{model.ControllerAHCI: drv})
	snap := &sysfsinv.Snapshot{Devices: []*model.BlockDevice{newTestDevice(`/sys/block/sda`)}}

	rebuild := d.Run(1, snap, nil, raidmodel.Options{})
	if rebuild {
		t.Fatalf("unexpected rebuild on first scan")
	}
	if len(drv.sent) != 1 || drv.sent[0] != ibpi.ONESHOT_NORMAL {
		t.Fatalf("expected a single ONESHOT_NORMAL send, got %v", drv.sent)
	}
	if drv.flushes != 1 {
		t.Fatalf("expected one flush, got %d", drv.flushes)
	}
}

func TestRunSkipsSendWhenPatternUnchanged(t *testing.T) {
	drv := &fakeDriver{}
	d := New(log.NewDiscard(), map[model.ControllerType]transport.Driver{model.ControllerAHCI: drv})
	dev := newTestDevice(`/sys/block/sda`)
	snap := &sysfsinv.Snapshot{Devices: []*model.BlockDevice{dev}}

	d.Run(1, snap, nil, raidmodel.Options{})
	drv.sent = nil
	drv.flushes = 0

	snap2 := &sysfsinv.Snapshot{Devices: []*model.BlockDevice{newTestDevice(`/sys/block/sda`)}}
	d.Run(2, snap2, nil, raidmodel.Options{})

	if len(drv.sent) != 0 {
		t.Fatalf("expected no send for unchanged pattern, got %v", drv.sent)
	}
	if drv.flushes != 0 {
		t.Fatalf("expected no flush when nothing changed, got %d", drv.flushes)
	}
}

func TestRunClearsRaidMembersWhenArrayRemoved(t *testing.T) {
	drv := &fakeDriver{}
	d := New(log.NewDiscard(), map[model.ControllerType]transport.Driver{model.ControllerAHCI: drv})
	dev := newTestDevice(`/sys/block/sda`)
	snap := &sysfsinv.Snapshot{Devices: []*model.BlockDevice{dev}}
	arr := &model.RaidDevice{SysPath: `/sys/block/md0`, Slaves: []*model.Slave{
		{DeviceName: `sda`, State: model.SlaveState{InSync: true}},
	}}

	d.Run(1, snap, []*model.RaidDevice{arr}, raidmodel.Options{})
	if dev.Raid == nil {
		t.Fatal("expected raid membership linked on first tick")
	}

	d.Run(2, snap, nil, raidmodel.Options{})
	if dev.Raid != nil {
		t.Fatal("expected raid membership cleared once the array disappears from the scan")
	}
}

func TestRunMarksRemovalWhenDeviceMissing(t *testing.T) {
	drv := &fakeDriver{}
	d := New(log.NewDiscard(), map[model.ControllerType]transport.Driver{model.ControllerAHCI: drv})
	snap := &sysfsinv.Snapshot{Devices: []*model.BlockDevice{newTestDevice(`/sys/block/sda`)}}
	d.Run(1, snap, nil, raidmodel.Options{})

	empty := &sysfsinv.Snapshot{}
	rebuild := d.Run(2, empty, nil, raidmodel.Options{})
	if !rebuild {
		t.Fatalf("expected rebuild flag when a device disappears from the snapshot")
	}
	if len(d.devices) != 0 {
		t.Fatalf("expected long-lived device list cleared after failed revalidate")
	}
}

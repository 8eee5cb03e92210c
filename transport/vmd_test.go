/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package transport

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gravwell/ledmon/ibpi"
	"github.com/gravwell/ledmon/model"
)

func newVMDSlot(t *testing.T, pciehpBacked bool) (*VMD, *model.PciSlot, *model.BlockDevice) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, `attention`), nil, 0200); err != nil {
		t.Fatal(err)
	}
	if pciehpBacked {
		driverDir := filepath.Join(dir, `..`, `pciehp`)
		if err := os.MkdirAll(driverDir, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.Symlink(driverDir, filepath.Join(dir, `module`)); err != nil {
			t.Fatal(err)
		}
	}
	slot := &model.PciSlot{SysPath: dir, Address: `0000:65:00.0`}
	drv := NewVMD([]*model.PciSlot{slot})
	dev := &model.BlockDevice{ControllerPath: slot.Address}
	return drv, slot, dev
}

func TestVMDSendWritesAttentionNibble(t *testing.T) {
	drv, slot, dev := newVMDSlot(t, true)
	if err := drv.Send(dev, ibpi.REBUILD); err != nil {
		t.Fatalf("Send: %v", err)
	}
	buf, err := os.ReadFile(filepath.Join(slot.SysPath, `attention`))
	if err != nil {
		t.Fatal(err)
	}
	want := strconv.Itoa(int(npemNibble[ibpi.REBUILD]))
	if string(buf) != want {
		t.Fatalf("attention contents = %q, want %q", buf, want)
	}
	if slot.Attention != npemNibble[ibpi.REBUILD] {
		t.Fatalf("slot.Attention = %#x, want %#x", slot.Attention, npemNibble[ibpi.REBUILD])
	}
}

func TestVMDSendRejectsNonPciehpSlot(t *testing.T) {
	drv, _, dev := newVMDSlot(t, false)
	if err := drv.Send(dev, ibpi.LOCATE); err == nil {
		t.Fatal("Send on a non-pciehp-backed slot should fail")
	}
}

func TestVMDAlwaysReemitsLocateOff(t *testing.T) {
	drv, slot, dev := newVMDSlot(t, true)
	if err := drv.Send(dev, ibpi.LOCATE_OFF); err != nil {
		t.Fatalf("first Send: %v", err)
	}
	attentionPath := filepath.Join(slot.SysPath, `attention`)
	if err := os.WriteFile(attentionPath, []byte{0xaa}, 0200); err != nil {
		t.Fatal(err)
	}
	if err := drv.Send(dev, ibpi.LOCATE_OFF); err != nil {
		t.Fatalf("second Send: %v", err)
	}
	buf, err := os.ReadFile(attentionPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(buf) == 1 && buf[0] == 0xaa {
		t.Fatal("LOCATE_OFF must always re-emit even when state already matches")
	}
}

func TestVMDSendUnknownDeviceReturnsNoControllerPath(t *testing.T) {
	drv, _, _ := newVMDSlot(t, true)
	dev := &model.BlockDevice{ControllerPath: `0000:99:00.0`}
	if err := drv.Send(dev, ibpi.LOCATE); err != ErrNoControllerPath {
		t.Fatalf("Send on unknown PCI address: got %v, want ErrNoControllerPath", err)
	}
}

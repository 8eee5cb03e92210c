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

func TestNPEMSendWritesNibble(t *testing.T) {
	dir := t.TempDir()
	npemPath := filepath.Join(dir, `npem`)
	if err := os.WriteFile(npemPath, nil, 0200); err != nil {
		t.Fatal(err)
	}
	drv := NewNPEM()
	dev := &model.BlockDevice{ControllerPath: dir}

	if err := drv.Send(dev, ibpi.FAILED_DRIVE); err != nil {
		t.Fatalf("Send: %v", err)
	}
	buf, err := os.ReadFile(npemPath)
	if err != nil {
		t.Fatal(err)
	}
	want := strconv.Itoa(int(npemNibble[ibpi.FAILED_DRIVE]))
	if string(buf) != want {
		t.Fatalf("npem contents = %q, want %q", buf, want)
	}
}

func TestNPEMUnlistedPatternWritesDefaultNibble(t *testing.T) {
	dir := t.TempDir()
	npemPath := filepath.Join(dir, `npem`)
	if err := os.WriteFile(npemPath, nil, 0200); err != nil {
		t.Fatal(err)
	}
	drv := NewNPEM()
	dev := &model.BlockDevice{ControllerPath: dir}

	if err := drv.Send(dev, ibpi.HOTSPARE); err != nil {
		t.Fatalf("Send: %v", err)
	}
	buf, err := os.ReadFile(npemPath)
	if err != nil {
		t.Fatal(err)
	}
	want := strconv.Itoa(int(npemDefaultNibble))
	if string(buf) != want {
		t.Fatalf("npem contents = %q, want %q", buf, want)
	}
}

func TestNPEMAlwaysReemitsLocateOff(t *testing.T) {
	dir := t.TempDir()
	npemPath := filepath.Join(dir, `npem`)
	if err := os.WriteFile(npemPath, nil, 0200); err != nil {
		t.Fatal(err)
	}
	drv := NewNPEM()
	dev := &model.BlockDevice{ControllerPath: dir}

	if err := drv.Send(dev, ibpi.LOCATE_OFF); err != nil {
		t.Fatalf("first Send: %v", err)
	}
	if err := os.WriteFile(npemPath, []byte{0xaa}, 0200); err != nil {
		t.Fatal(err)
	}
	if err := drv.Send(dev, ibpi.LOCATE_OFF); err != nil {
		t.Fatalf("second Send: %v", err)
	}
	buf, err := os.ReadFile(npemPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(buf) == 1 && buf[0] == 0xaa {
		t.Fatal("LOCATE_OFF must always re-emit even when state already matches")
	}
}

func TestNPEMProbeRequiresNpemAttribute(t *testing.T) {
	dir := t.TempDir()
	drv := NewNPEM()
	if drv.Probe(dir) {
		t.Fatal("Probe should fail without an npem attribute present")
	}
	if err := os.WriteFile(filepath.Join(dir, `npem`), nil, 0200); err != nil {
		t.Fatal(err)
	}
	if !drv.Probe(dir) {
		t.Fatal("Probe should succeed once npem attribute exists")
	}
}

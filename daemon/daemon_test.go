/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gravwell/ledmon/config"
	"github.com/gravwell/ledmon/dispatch"
	"github.com/gravwell/ledmon/log"
	"github.com/gravwell/ledmon/model"
	"github.com/gravwell/ledmon/raidmodel"
	"github.com/gravwell/ledmon/sysfsinv"
	"github.com/gravwell/ledmon/transport"
)

func TestTickRunsACompleteScanWithoutError(t *testing.T) {
	root := t.TempDir()
	mdstatPath := filepath.Join(root, `mdstat`)
	if err := os.WriteFile(mdstatPath, []byte("Personalities :\nunused devices: <none>\n"), 0644); err != nil {
		t.Fatalf("writing fake mdstat: %v", err)
	}

	inv := sysfsinv.NewRooted(root, log.NewDiscard(), nil, nil)
	raid := &raidmodel.Reader{ProcMdstat: mdstatPath, SysBlock: filepath.Join(root, `sys`, `block`)}
	disp := dispatch.New(log.NewDiscard(), map[model.ControllerType]transport.Driver{})

	m := New(log.NewDiscard(), config.Default(), inv, raid, disp)

	if err := m.Tick(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Daemon.Epoch() != 1 {
		t.Fatalf("expected epoch 1 after first tick, got %d", m.Daemon.Epoch())
	}
}

/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package sysfsinv

import (
	"testing"

	"github.com/gravwell/ledmon/model"
)

func TestClassifyOrderVMDFirst(t *testing.T) {
	h := hostCaps{vmdDomain: true, pciehpLinked: true, sesCapable: true, sasReachable: true}
	if got := classify(h); got != model.ControllerVMD {
		t.Errorf("classify = %v, want VMD (highest priority rule)", got)
	}
}

func TestClassifySES(t *testing.T) {
	h := hostCaps{sesCapable: true, sasReachable: true}
	if got := classify(h); got != model.ControllerSCSISES {
		t.Errorf("classify = %v, want SCSI-SES", got)
	}
}

func TestClassifyAHCIvsAMDSGPIO(t *testing.T) {
	base := hostCaps{libahciBacked: true, emEnabled: true, sgpioCapable: true}
	if got := classify(base); got != model.ControllerAHCI {
		t.Errorf("intel platform classify = %v, want AHCI", got)
	}
	base.amdPlatform = `Grandstand`
	if got := classify(base); got != model.ControllerAMDSGPIO {
		t.Errorf("AMD platform classify = %v, want AMD-SGPIO", got)
	}
}

func TestClassifyAMDIPMIFallback(t *testing.T) {
	h := hostCaps{ethanolOrDaytona: true}
	if got := classify(h); got != model.ControllerAMDIPMI {
		t.Errorf("classify = %v, want AMD-IPMI", got)
	}
}

func TestClassifyUnmanaged(t *testing.T) {
	if got := classify(hostCaps{}); got != model.ControllerUnknown {
		t.Errorf("classify = %v, want unmanaged", got)
	}
}

func TestAmdPlatformID(t *testing.T) {
	if got := amdPlatformID(`AMD Grandstand Server`); got != `Grandstand` {
		t.Errorf("amdPlatformID = %q", got)
	}
	if got := amdPlatformID(`Generic Server`); got != `` {
		t.Errorf("amdPlatformID = %q, want empty", got)
	}
}

func TestIsEthanolOrDaytona(t *testing.T) {
	if !isEthanolOrDaytona(`AMD Daytona-X`) {
		t.Error("expected Daytona-X to match")
	}
	if isEthanolOrDaytona(`Generic Server`) {
		t.Error("unexpected match on generic product name")
	}
}

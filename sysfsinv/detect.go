/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package sysfsinv

import (
	"strings"

	"github.com/gravwell/ledmon/model"
)

// hostCaps is the handful of sysfs facts a controller-type decision
// needs about the SCSI/ATA host that owns a candidate block device.
type hostCaps struct {
	hostPath string

	vmdDomain    bool
	pciehpLinked bool

	sesCapable    bool
	sasReachable  bool

	npemCapable bool

	libahciBacked bool
	emEnabled     bool
	sgpioCapable  bool

	amdPlatform string // "" if not an AMD platform ID we recognize

	ethanolOrDaytona bool
}

// detectRule is one step of the ordered, first-match-wins controller
// classification. Each rule is independently constructible and testable
// without a live kernel tree.
type detectRule struct {
	Type ControllerType
	Test func(hostCaps) bool
}

// ControllerType re-exports model.ControllerType so callers of this
// package don't need a second import for the same enum.
type ControllerType = model.ControllerType

var detectRules = []detectRule{
	{
		Type: model.ControllerVMD,
		Test: func(h hostCaps) bool { return h.vmdDomain && h.pciehpLinked },
	},
	{
		Type: model.ControllerSCSISES,
		Test: func(h hostCaps) bool { return h.sesCapable && h.sasReachable },
	},
	{
		Type: model.ControllerNPEM,
		Test: func(h hostCaps) bool { return h.npemCapable },
	},
	{
		Type: model.ControllerAHCI,
		Test: func(h hostCaps) bool {
			return h.libahciBacked && h.emEnabled && h.sgpioCapable && h.amdPlatform == ``
		},
	},
	{
		Type: model.ControllerAMDSGPIO,
		Test: func(h hostCaps) bool {
			return h.libahciBacked && h.emEnabled && h.sgpioCapable && h.amdPlatform != ``
		},
	},
	{
		Type: model.ControllerAMDIPMI,
		Test: func(h hostCaps) bool { return h.ethanolOrDaytona },
	},
}

// classify runs the ordered detection rules and returns the first
// matching controller type, or ControllerUnknown if the host is
// unmanaged and its devices should be excluded from later dispatch.
func classify(h hostCaps) ControllerType {
	for _, r := range detectRules {
		if r.Test(h) {
			return r.Type
		}
	}
	return model.ControllerUnknown
}

// amdPlatformID recognizes the AMD platform identifiers that select
// AMD-SGPIO over Intel AHCI-EM; AMD-IPMI platforms are recognized
// separately by isEthanolOrDaytona.
func amdPlatformID(productName string) string {
	switch {
	case strings.Contains(productName, `Grandstand`):
		return `Grandstand`
	case strings.Contains(productName, `Speedway`):
		return `Speedway`
	}
	return ``
}

func isEthanolOrDaytona(productName string) bool {
	return strings.Contains(productName, `Ethanol-X`) || strings.Contains(productName, `Daytona-X`)
}

// IPMIPlatformName identifies which AMD-IPMI reference platform a DMI
// product name names, for the channel/address table an AMD-IPMI driver
// needs; returns "" for anything else.
func IPMIPlatformName(productName string) string {
	switch {
	case strings.Contains(productName, `Ethanol-X`):
		return `Ethanol-X`
	case strings.Contains(productName, `Daytona-X`):
		return `Daytona-X`
	}
	return ``
}

// ReadDMIProductName reads the host's /sys/class/dmi/id/product_name,
// returning "" if unreadable (e.g. running in a container or VM without
// DMI tables exposed).
func ReadDMIProductName() string {
	b, err := osReader{}.ReadFile(`/sys/class/dmi/id/product_name`)
	if err != nil {
		return ``
	}
	return strings.TrimSpace(string(b))
}

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

	"github.com/k-sone/ipmigo"

	"github.com/gravwell/ledmon/model"
)

// BuildDrivers constructs one Driver per controller type the inventory
// may classify a device into. AMD-IPMI additionally needs the detected
// platform name and a live local IPMI LAN channel; its absence (no BMC,
// or not an AMD reference platform) is not fatal to the rest of the
// daemon, so it is simply omitted from the returned map and the
// dispatcher warns that no transport driver is registered for every
// AMD-IPMI device on each tick. The map is built once; a BMC that
// becomes reachable later is not picked up.
func BuildDrivers(slots []*model.PciSlot, platform string) map[model.ControllerType]Driver {
	drivers := map[model.ControllerType]Driver{
		model.ControllerAHCI:     NewAHCI(),
		model.ControllerSCSISES:  NewSES(),
		model.ControllerNPEM:     NewNPEM(),
		model.ControllerVMD:      NewVMD(slots),
		model.ControllerAMDSGPIO: NewAMDSGPIO(),
	}

	if platform == `Ethanol-X` || platform == `Daytona-X` {
		if client, err := localIPMIClient(); err == nil {
			if drv, err := NewAMDIPMI(client, platform); err == nil {
				drivers[model.ControllerAMDIPMI] = drv
			} else {
				client.Close()
			}
		}
	}

	return drivers
}

// localIPMIClient opens an ipmigo LAN-2.0 session against the BMC's
// loopback LAN channel, the path available to a Master Write-Read
// command when no direct /dev/ipmi0 in-band driver is present.
func localIPMIClient() (*ipmigo.Client, error) {
	user := os.Getenv(`LEDMON_IPMI_USER`)
	pass := os.Getenv(`LEDMON_IPMI_PASSWORD`)
	client, err := ipmigo.NewClient(ipmigo.Arguments{
		Version:       ipmigo.V2_0,
		Address:       `127.0.0.1:623`,
		Username:      user,
		Password:      pass,
		CipherSuiteID: 3,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Open(); err != nil {
		return nil, err
	}
	return client, nil
}

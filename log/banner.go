/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package log

import (
	"fmt"
	"io"
	"runtime"

	"github.com/shirou/gopsutil/host"
)

// PrintOSInfo writes a one-line platform banner to wtr: kernel, distro,
// arch. ledmond writes it to stdout at every startup, whatever the log
// level, so a pasted console capture carries the environment it was
// produced on.
func PrintOSInfo(wtr io.Writer) {
	platform, _, version, err := host.PlatformInformation()
	if err != nil {
		fmt.Fprintf(wtr, "OS:\t\tERROR %v\n", err)
		return
	}
	fmt.Fprintf(wtr, "OS:\t\t%s/%s (%s %s)\n", runtime.GOOS, runtime.GOARCH, platform, version)
}

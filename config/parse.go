/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package config

import (
	"fmt"
	"strings"
)

// ParseBool attempts to parse the string v into a boolean. The following
// will return true:
//
//   - "1"
//   - "yes"
//   - "true"
//   - "enabled"
//
// The following will return false:
//
//   - "0"
//   - "no"
//   - "false"
//   - "disabled"
//
// All other values return an error. Matching is case-insensitive.
func ParseBool(v string) (r bool, err error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case `1`, `yes`, `true`, `enabled`:
		r = true
	case `0`, `no`, `false`, `disabled`:
		r = false
	default:
		err = fmt.Errorf("unrecognized boolean value %q", v)
	}
	return
}

// ParsePathList splits a comma-separated list of sysfs path prefixes,
// trimming whitespace around each entry and dropping empties.
func ParsePathList(v string) (out []string) {
	for _, bit := range strings.Split(v, `,`) {
		if bit = strings.TrimSpace(bit); bit != `` {
			out = append(out, bit)
		}
	}
	return
}

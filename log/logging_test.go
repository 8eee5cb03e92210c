/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package log

import (
	"bytes"
	"strings"
	"testing"
)

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{`quiet`, QUIET},
		{`0`, QUIET},
		{`ERROR`, ERROR},
		{`1`, ERROR},
		{`Warning`, WARNING},
		{`2`, WARNING},
		{`info`, INFO},
		{`3`, INFO},
		{`DEBUG`, DEBUG},
		{`4`, DEBUG},
		{`all`, ALL},
		{`5`, ALL},
	}
	for _, tc := range tests {
		got, err := LevelFromString(tc.in)
		if err != nil {
			t.Errorf("LevelFromString(%q) error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("LevelFromString(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
	if _, err := LevelFromString(`bogus`); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestLevelGating(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(nopCloser{buf})
	l.SetLevel(WARNING)

	l.Debugf("should not appear")
	if buf.Len() != 0 {
		t.Fatalf("debug line leaked through WARNING gate: %q", buf.String())
	}

	l.Errorf("boom %d", 7)
	if !strings.Contains(buf.String(), "boom 7") {
		t.Fatalf("error line missing, got %q", buf.String())
	}
}

func TestQuietSuppressesEverything(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(nopCloser{buf})
	l.SetLevel(QUIET)
	l.Errorf("should still be silent")
	if buf.Len() != 0 {
		t.Fatalf("QUIET level let a line through: %q", buf.String())
	}
}

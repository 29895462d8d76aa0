// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import "testing"

func TestParseID(t *testing.T) {
	cases := []struct {
		s    string
		want uint16
		ok   bool
	}{
		{"0x04b4", 0x04b4, true},
		{"0X8613", 0x8613, true},
		{"5", 5, true},
		{"0xffff", 0xffff, true},
		{"0x10000", 0, false},
		{"vid", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		id, err := ParseID(c.s)
		if (err == nil) != c.ok {
			t.Errorf("%q: error %v, want ok=%v", c.s, err, c.ok)
			continue
		}
		if c.ok && uint16(id) != c.want {
			t.Errorf("%q: got %#04x, want %#04x", c.s, uint16(id), c.want)
		}
	}
}

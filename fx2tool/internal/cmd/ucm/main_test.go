// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ucm

import (
	"bytes"
	"strings"
	"testing"
)

type call struct {
	in       bool
	req      uint8
	val, idx uint16
	data     []byte
}

type fakeCtl struct {
	calls []call
	reply []byte
}

func (c *fakeCtl) Control(in bool, req uint8, val, idx uint16, p []byte) (int, error) {
	n := len(p)
	if in {
		n = copy(p, c.reply)
	}
	c.calls = append(c.calls, call{in, req, val, idx, bytes.Clone(p[:n])})
	return n, nil
}

func TestParseMsg(t *testing.T) {
	m, err := parseMsg(true, []string{"0xa2", "0x1000", "0", "16"})
	if err != nil {
		t.Fatal(err)
	}
	want := message{in: true, req: 0xa2, val: 0x1000, length: 16}
	if m != want {
		t.Errorf("got %+v, want %+v", m, want)
	}
	bad := [][]string{
		{"0x100", "0", "0", "0"},
		{"0", "0x10000", "0", "0"},
		{"0", "0", "x", "0"},
		{"0", "0", "0", "-1"},
	}
	for _, args := range bad {
		if _, err := parseMsg(false, args); err == nil {
			t.Errorf("%v: no error", args)
		}
	}
}

func TestSend(t *testing.T) {
	c := new(fakeCtl)
	m := message{req: 0xa0, val: 0xe600, length: 1}
	if err := m.send(c, strings.NewReader("\x01rest")); err != nil {
		t.Fatal(err)
	}
	if len(c.calls) != 1 {
		t.Fatalf("%d calls, want 1", len(c.calls))
	}
	got := c.calls[0]
	if got.in || got.req != 0xa0 || got.val != 0xe600 || !bytes.Equal(got.data, []byte{1}) {
		t.Errorf("got %+v", got)
	}
	m.length = 8
	if err := m.send(c, strings.NewReader("abc")); err == nil {
		t.Error("short input accepted")
	}
	if len(c.calls) != 1 {
		t.Error("short input must not reach the device")
	}
}

func TestRecv(t *testing.T) {
	c := &fakeCtl{reply: []byte{0xc2, 0xb4, 0x04}}
	m := message{in: true, req: 0xa2, length: 8}
	var buf bytes.Buffer
	if err := m.recv(c, &buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), c.reply) {
		t.Errorf("got %x, want %x", buf.Bytes(), c.reply)
	}
}

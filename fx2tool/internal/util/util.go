// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang/glog"
	usb "github.com/google/gousb"
)

func Warn(f string, args ...any) {
	glog.Flush()
	fmt.Fprintf(os.Stderr, f+"\n", args...)
}

// Exit prints the formatted message and exits the program with the code.
func Exit(code int, f string, args ...any) {
	glog.Flush()
	fmt.Fprintf(os.Stderr, f+"\n", args...)
	os.Exit(code)
}

func Fatal(f string, args ...any) {
	Exit(1, f, args...)
}

// FatalError prints an error description and exits the program if the
// err != nil.
func FatalErr(what string, err error) {
	if err == nil {
		return
	}
	s := err.Error() + "\n"
	if what != "" {
		s = what + ": " + s
	}
	glog.Flush()
	os.Stderr.WriteString(s)
	os.Exit(1)
}

// ParseUint parses a decimal, hexadecimal (0x), octal (0o) or binary (0b)
// unsigned integer that must fit in bits.
func ParseUint(s string, bits int) (uint64, error) {
	u, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("bad %d-bit number: %s", bits, s)
	}
	return u, nil
}

var pbuf = make([]byte, 80)

const (
	ptodo = "                         ] "
	pdone = " [========================="
)

func Progress(pre string, cur, max, scale int, post string) {
	pbuf = pbuf[:0]
	pbuf = append(pbuf, '\r')
	pbuf = append(pbuf, pre...)
	done := 25 * cur / max
	pbuf = append(pbuf, pdone[:2+done]...)
	pbuf = append(pbuf, ptodo[done:]...)
	pbuf = strconv.AppendInt(pbuf, int64(cur/scale), 10)
	pbuf = append(pbuf, ' ')
	pbuf = append(pbuf, post...)
	if cur == max {
		pbuf = append(pbuf, '\n')
	}
	os.Stderr.Write(pbuf)
}

// ParseID parses a 16-bit USB vendor or product ID.
func ParseID(s string) (usb.ID, error) {
	u, err := ParseUint(s, 16)
	return usb.ID(u), err
}

// SetupLog directs the glog output to stderr and sets its verbosity level.
func SetupLog(verbosity int) {
	flag.Set("logtostderr", "true")
	flag.Set("v", strconv.Itoa(verbosity))
}

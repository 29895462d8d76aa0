// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ucm

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/embeddedgo/fx2tools/fx2tool/internal/fx2"
	"github.com/embeddedgo/fx2tools/fx2tool/internal/util"
)

const Descr = "send a vendor control message to the USB device"

// Exit codes.
const (
	exitUsage     = 2
	exitDirection = 3
	exitTooLong   = 4
	exitFile      = 5
	exitTransport = 6
)

func Main(cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\n  %s [OPTIONS] -i|-o bRequest wValue wIndex wLength\nOptions:\n",
			cmd,
		)
		fs.PrintDefaults()
	}
	vid := fs.String("vid", "0x04b4", "USB vendor `ID`")
	pid := fs.String("pid", "0x8613", "USB product `ID`")
	busAddr := fs.String("usb", "", "select the USB device by `BUS:ADDR`")
	in := fs.Bool("i", false, "IN message (device to host)")
	out := fs.Bool("o", false, "OUT message (host to device)")
	file := fs.String(
		"f", "",
		"`file` to read the OUT data from or write the IN data to (default stdin/stdout)",
	)
	verbosity := fs.Int("v", 0, "log verbosity `level`")
	fs.Parse(args)
	if fs.NArg() != 4 {
		fs.Usage()
		os.Exit(exitUsage)
	}
	util.SetupLog(*verbosity)
	if *in == *out {
		util.Exit(exitDirection, "exactly one of -i and -o must be given")
	}
	msg, err := parseMsg(*in, fs.Args())
	if err != nil {
		util.Exit(exitUsage, "%v", err)
	}
	if msg.length > fx2.BlockSize {
		util.Exit(exitTooLong, "cannot transfer more than %d bytes", fx2.BlockSize)
	}
	l := &fx2.Loader{BusAddr: *busAddr}
	if l.Vendor, err = util.ParseID(*vid); err != nil {
		util.Exit(exitUsage, "-vid: %v", err)
	}
	if l.Product, err = util.ParseID(*pid); err != nil {
		util.Exit(exitUsage, "-pid: %v", err)
	}

	if msg.in {
		w := io.Writer(os.Stdout)
		if *file != "" {
			f, err := os.Create(*file)
			if err != nil {
				util.Exit(exitFile, "%v", err)
			}
			defer f.Close()
			w = f
		}
		err = msg.recv(l, w)
	} else {
		r := io.Reader(os.Stdin)
		if *file != "" {
			f, err := os.Open(*file)
			if err != nil {
				util.Exit(exitFile, "%v", err)
			}
			defer f.Close()
			r = f
		}
		err = msg.send(l, r)
	}
	if err != nil {
		var fx2Err *fx2.Error
		if errors.As(err, &fx2Err) {
			util.Exit(exitTransport, "%v", err)
		}
		util.Exit(exitFile, "%v", err)
	}
}

type controller interface {
	Control(in bool, req uint8, val, idx uint16, p []byte) (int, error)
}

type message struct {
	in     bool
	req    uint8
	val    uint16
	idx    uint16
	length int
}

func parseMsg(in bool, args []string) (m message, err error) {
	m.in = in
	var u [4]uint64
	bits := [4]int{8, 16, 16, 16}
	names := [4]string{"bRequest", "wValue", "wIndex", "wLength"}
	for i, a := range args {
		if u[i], err = util.ParseUint(a, bits[i]); err != nil {
			return m, fmt.Errorf("%s: %w", names[i], err)
		}
	}
	m.req, m.val, m.idx, m.length = uint8(u[0]), uint16(u[1]), uint16(u[2]), int(u[3])
	return m, nil
}

// send reads exactly m.length bytes from r and sends them to the device.
func (m message) send(c controller, r io.Reader) error {
	p := make([]byte, m.length)
	if _, err := io.ReadFull(r, p); err != nil {
		return fmt.Errorf("reading %d bytes of OUT data: %w", m.length, err)
	}
	_, err := c.Control(false, m.req, m.val, m.idx, p)
	return err
}

// recv requests up to m.length bytes from the device and writes the
// received ones to w.
func (m message) recv(c controller, w io.Writer) error {
	p := make([]byte, m.length)
	n, err := c.Control(true, m.req, m.val, m.idx, p)
	if err != nil {
		return err
	}
	_, err = w.Write(p[:n])
	return err
}

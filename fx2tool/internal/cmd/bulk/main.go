// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bulk

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/embeddedgo/fx2tools/fx2tool/internal/fx2"
	"github.com/embeddedgo/fx2tools/fx2tool/internal/util"
)

const Descr = "write a file to a bulk OUT endpoint of the USB device"

// Exit codes.
const (
	exitUsage     = 2
	exitFile      = 3
	exitTransport = 4
)

func Main(cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [OPTIONS] FILE\nOptions:\n", cmd)
		fs.PrintDefaults()
	}
	vid := fs.String("vid", "0x1443", "USB vendor `ID`")
	pid := fs.String("pid", "0x0005", "USB product `ID`")
	busAddr := fs.String("usb", "", "select the USB device by `BUS:ADDR`")
	ep := fs.Int("e", 6, "bulk OUT endpoint `number`")
	bench := fs.Bool("b", false, "print the transfer time and speed")
	sum := fs.Bool("c", false, "print the 16-bit checksum of the file")
	verbosity := fs.Int("v", 0, "log verbosity `level`")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(exitUsage)
	}
	util.SetupLog(*verbosity)
	l := &fx2.Loader{BusAddr: *busAddr}
	var err error
	if l.Vendor, err = util.ParseID(*vid); err != nil {
		util.Exit(exitUsage, "-vid: %v", err)
	}
	if l.Product, err = util.ParseID(*pid); err != nil {
		util.Exit(exitUsage, "-pid: %v", err)
	}
	p, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		util.Exit(exitFile, "%v", err)
	}
	if *sum {
		fmt.Printf("Checksum: 0x%04X\n", checksum(p))
	}
	start := time.Now()
	_, err = l.BulkWrite(*ep, p)
	dt := time.Since(start)
	if err != nil {
		util.Exit(exitTransport, "%v", err)
	}
	if *bench {
		fmt.Printf("Time: %s\nSpeed: %.3f MB/s\n", dt, speed(len(p), dt))
	}
}

// checksum returns the sum of all bytes of p modulo 2^16.
func checksum(p []byte) (sum uint16) {
	for _, b := range p {
		sum += uint16(b)
	}
	return
}

// speed returns the transfer speed in MiB/s.
func speed(n int, dt time.Duration) float64 {
	if dt <= 0 {
		return 0
	}
	return float64(n) / (1 << 20) / dt.Seconds()
}

// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package load

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/embeddedgo/fx2tools/fx2tool/internal/fx2"
	fwload "github.com/embeddedgo/fx2tools/fx2tool/internal/load"
	"github.com/embeddedgo/fx2tools/fx2tool/internal/util"
)

const Descr = "load the firmware onto the FX2 RAM/EEPROM or convert it between file formats"

func Main(cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(
			os.Stderr,
			"Usage:\n  %s [OPTIONS] SRC [DST]\n"+
				"SRC:\n"+
				"  eeprom:KBIT    read KBIT kilobits of the boot EEPROM\n"+
				"  FILE.hex|.ihx  Intel HEX file\n"+
				"  FILE.bix       binary file\n"+
				"  FILE.iic       boot record (EEPROM image) file\n"+
				"  FILE.elf       ELF file, its loadable sections\n"+
				"DST (default ram):\n"+
				"  ram            the FX2 RAM (the CPU is held in reset)\n"+
				"  eeprom         the boot EEPROM (needs a suitable firmware in RAM)\n"+
				"  FILE.hex|.ihx|.bix|.iic\n"+
				"Options:\n",
			cmd,
		)
		fs.PrintDefaults()
	}
	vid := fs.String("vid", "0x04b4", "USB vendor `ID`")
	pid := fs.String("pid", "0x8613", "USB product `ID`")
	busAddr := fs.String("usb", "", "select the USB device by `BUS:ADDR`")
	inc := fs.String(
		"inc", "",
		"include binary files at given addresses: `BIN1:ADDR1[,BIN2:ADDR2...]`",
	)
	width := fs.Int("width", 16, "number of data `bytes` per Intel HEX line")
	pad := fs.String("pad", "0", "`byte` used to fill gaps in the binary output")
	hvid := fs.String("iic-vid", "0", "vendor `ID` in the generated boot record header")
	hpid := fs.String("iic-pid", "0", "product `ID` in the generated boot record header")
	hdid := fs.String("iic-did", "0", "device `ID` in the generated boot record header")
	hcfg := fs.String("iic-config", "0x01", "configuration `byte` in the generated boot record header")
	timeout := fs.Duration("timeout", fx2.DefaultTimeout, "USB transfer timeout")
	quiet := fs.Bool("quiet", false, "do not print diagnostic information")
	verbosity := fs.Int("v", 0, "log verbosity `level`")
	fs.Parse(args)
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fs.Usage()
		os.Exit(exitUsage)
	}
	util.SetupLog(*verbosity)

	src, err := ParseSource(fs.Arg(0))
	if err != nil {
		util.Exit(exitUsage, "source: %v", err)
	}
	dst := fwload.Endpoint{Kind: fwload.RAM}
	if fs.NArg() == 2 {
		if dst, err = ParseDest(fs.Arg(1)); err != nil {
			util.Exit(exitUsage, "destination: %v", err)
		}
	}
	cfg := &fwload.Config{
		Loader:   &fx2.Loader{BusAddr: *busAddr, Timeout: *timeout},
		HexWidth: *width,
	}
	if cfg.Loader.Vendor, err = util.ParseID(*vid); err != nil {
		util.Exit(exitUsage, "-vid: %v", err)
	}
	if cfg.Loader.Product, err = util.ParseID(*pid); err != nil {
		util.Exit(exitUsage, "-pid: %v", err)
	}
	if cfg.Header, err = parseHeader(*hvid, *hpid, *hdid, *hcfg); err != nil {
		util.Exit(exitUsage, "%v", err)
	}
	fill, err := util.ParseUint(*pad, 8)
	if err != nil {
		util.Exit(exitUsage, "-pad: %v", err)
	}
	cfg.Fill = byte(fill)
	if *inc != "" {
		if cfg.Inc, err = util.ReadBins(*inc); err != nil {
			util.Exit(exitCode(err), "-inc: %v", err)
		}
	}
	if !*quiet {
		cfg.Loader.Progress = func(op string, cur, max int) {
			util.Progress(progressLabel(op), cur, max, 1, "B")
		}
	}

	start := time.Now()
	err = fwload.Run(cfg, src, dst)
	if err != nil {
		util.Exit(exitCode(err), "%s -> %s: %v", src, dst, err)
	}
	if !*quiet {
		util.Warn("%s -> %s: done in %s", src, dst, time.Since(start).Round(time.Millisecond))
	}
}

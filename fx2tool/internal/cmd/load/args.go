// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package load

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/embeddedgo/fx2tools/fx2tool/internal/fx2"
	"github.com/embeddedgo/fx2tools/fx2tool/internal/ihex"
	"github.com/embeddedgo/fx2tools/fx2tool/internal/iic"
	fwload "github.com/embeddedgo/fx2tools/fx2tool/internal/load"
	"github.com/embeddedgo/fx2tools/fx2tool/internal/sparse"
	"github.com/embeddedgo/fx2tools/fx2tool/internal/util"
)

// Exit codes, one per failure class.
const (
	exitOther     = 1
	exitUsage     = 2
	exitFile      = 3
	exitFormat    = 4
	exitState     = 5
	exitTooLarge  = 6
	exitTransport = 7
)

var stateErrs = []error{
	iic.ErrNotEmpty, iic.ErrNotInitialised, iic.ErrDestNotEmpty, iic.ErrSealed,
}

func exitCode(err error) int {
	var (
		pathErr *os.PathError
		synErr  *ihex.SyntaxError
		sumErr  *ihex.ChecksumError
		fmtErr  *iic.FormatError
		fx2Err  *fx2.Error
		addrErr *iic.AddressError
	)
	switch {
	case err == nil:
		return 0
	case errors.As(err, &fx2Err):
		return exitTransport
	case errors.Is(err, sparse.ErrTooLarge), errors.As(err, &addrErr):
		return exitTooLarge
	case errors.As(err, &synErr), errors.As(err, &sumErr),
		errors.As(err, &fmtErr):
		return exitFormat
	case errors.As(err, &pathErr):
		return exitFile
	}
	for _, e := range stateErrs {
		if errors.Is(err, e) {
			return exitState
		}
	}
	return exitOther
}

// progressLabel returns the progress bar label of the fx2.Loader operation.
func progressLabel(op string) string {
	switch op {
	case "WriteRAM":
		return "Loading:"
	case "WriteEEPROM":
		return "Writing:"
	case "ReadEEPROM":
		return "Reading:"
	}
	return op + ":"
}

func fileKind(name string) fwload.Kind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".hex", ".ihx":
		return fwload.HexFile
	case ".bix", ".bin":
		return fwload.BinFile
	case ".iic":
		return fwload.IICFile
	case ".elf":
		return fwload.ELFFile
	}
	return 0
}

// ParseSource parses the SRC argument: eeprom:KBIT or a file name.
func ParseSource(s string) (fwload.Endpoint, error) {
	if kbit, ok := strings.CutPrefix(s, "eeprom:"); ok {
		n, err := strconv.Atoi(kbit)
		if err != nil || n <= 0 || n > 0x10000/128 {
			return fwload.Endpoint{}, fmt.Errorf("bad EEPROM size: %s", kbit)
		}
		return fwload.Endpoint{Kind: fwload.EEPROM, Size: n * 128}, nil
	}
	if s == "eeprom" {
		return fwload.Endpoint{}, fmt.Errorf("EEPROM source requires a size: eeprom:KBIT")
	}
	k := fileKind(s)
	if k == 0 {
		return fwload.Endpoint{}, fmt.Errorf("unknown file type: %s", s)
	}
	return fwload.Endpoint{Kind: k, Path: s}, nil
}

// ParseDest parses the DST argument: ram, eeprom or a file name.
func ParseDest(s string) (fwload.Endpoint, error) {
	switch s {
	case "ram":
		return fwload.Endpoint{Kind: fwload.RAM}, nil
	case "eeprom":
		return fwload.Endpoint{Kind: fwload.EEPROM}, nil
	}
	k := fileKind(s)
	if k == 0 || k == fwload.ELFFile {
		return fwload.Endpoint{}, fmt.Errorf("unsupported file type: %s", s)
	}
	return fwload.Endpoint{Kind: k, Path: s}, nil
}

func parseHeader(vid, pid, did, config string) (h iic.Header, err error) {
	if h.Vendor, err = parseHdrID("-iic-vid", vid); err != nil {
		return
	}
	if h.Product, err = parseHdrID("-iic-pid", pid); err != nil {
		return
	}
	if h.Device, err = parseHdrID("-iic-did", did); err != nil {
		return
	}
	u, err := util.ParseUint(config, 8)
	if err != nil {
		return h, fmt.Errorf("-iic-config: %w", err)
	}
	h.Config = byte(u)
	return h, nil
}

func parseHdrID(name, s string) (uint16, error) {
	u, err := util.ParseUint(s, 16)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return uint16(u), nil
}

// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package load moves the FX2 firmware between its sources and destinations:
// the FX2 RAM, the boot EEPROM and the binary, Intel HEX, boot record
// (.iic) and ELF files.
package load

import (
	"bytes"
	"fmt"
	"os"

	"github.com/embeddedgo/fx2tools/fx2tool/internal/bin"
	"github.com/embeddedgo/fx2tools/fx2tool/internal/fx2"
	"github.com/embeddedgo/fx2tools/fx2tool/internal/ihex"
	"github.com/embeddedgo/fx2tools/fx2tool/internal/iic"
	"github.com/embeddedgo/fx2tools/fx2tool/internal/sparse"
	"github.com/embeddedgo/fx2tools/fx2tool/internal/util"
	"github.com/golang/glog"
)

type Kind uint8

const (
	RAM Kind = iota + 1
	EEPROM
	BinFile
	HexFile
	IICFile
	ELFFile
)

var kindStr = [...]string{
	RAM:     "RAM",
	EEPROM:  "EEPROM",
	BinFile: "binary file",
	HexFile: "Intel HEX file",
	IICFile: "boot record file",
	ELFFile: "ELF file",
}

func (k Kind) String() string {
	if int(k) < len(kindStr) && kindStr[k] != "" {
		return kindStr[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Endpoint is a source or a destination of the firmware.
type Endpoint struct {
	Kind Kind
	Path string // file name (BinFile, HexFile, IICFile, ELFFile)
	Size int    // number of bytes to read (EEPROM source)
}

func (e Endpoint) String() string {
	if e.Path != "" {
		return e.Kind.String() + " " + e.Path
	}
	return e.Kind.String()
}

// Config configures the firmware conversions and the device access.
type Config struct {
	Loader   *fx2.Loader
	HexWidth int           // data bytes per Intel HEX line, 16 if zero
	Header   iic.Header    // header of the generated boot record streams
	Fill     byte          // value of gaps in binary output
	Inc      util.Sections // extra data merged into the image
}

// DefaultHeader is the header of the generated boot record streams: the boot
// ROM keeps the default IDs, the I2C bus runs at 400 kHz.
var DefaultHeader = iic.Header{Config: iic.Config400kHz}

// firmware is the firmware in one of its two intermediate forms: a sparse
// image or a boot record stream.
type firmware struct {
	img    *sparse.Image
	stream []byte
}

// Run reads the firmware from src and writes it to dst converting it as
// needed.
func Run(cfg *Config, src, dst Endpoint) error {
	fw, err := read(cfg, src)
	if err != nil {
		return err
	}
	if len(cfg.Inc) != 0 {
		if err := fw.toImage(); err != nil {
			return err
		}
		if err := cfg.Inc.AddTo(fw.img); err != nil {
			return fmt.Errorf("include: %w", err)
		}
	}
	return write(cfg, fw, dst)
}

func (fw *firmware) toImage() error {
	if fw.img != nil {
		return nil
	}
	img, hdr, err := iic.Decode(fw.stream)
	if err != nil {
		return err
	}
	glog.V(1).Infof(
		"load: boot records for %04x:%04x (device %04x, config %#02x): %d bytes",
		hdr.Vendor, hdr.Product, hdr.Device, hdr.Config, img.DefinedLen(),
	)
	fw.img, fw.stream = img, nil
	return nil
}

func (fw *firmware) toStream(cfg *Config) error {
	if fw.stream != nil {
		return nil
	}
	p, err := iic.Encode(cfg.Header, fw.img)
	if err != nil {
		return err
	}
	glog.V(1).Infof(
		"load: encoded %d bytes of image as %d bytes of boot records",
		fw.img.DefinedLen(), len(p),
	)
	fw.stream, fw.img = p, nil
	return nil
}

func read(cfg *Config, src Endpoint) (*firmware, error) {
	fw := new(firmware)
	var err error
	switch src.Kind {
	case HexFile:
		var f *os.File
		if f, err = os.Open(src.Path); err != nil {
			return nil, err
		}
		defer f.Close()
		fw.img, err = ihex.Decode(f)
	case BinFile:
		var p []byte
		if p, err = os.ReadFile(src.Path); err != nil {
			return nil, err
		}
		fw.img, err = bin.Decode(p)
	case IICFile:
		fw.stream, err = os.ReadFile(src.Path)
		if err == nil && len(fw.stream) == 0 {
			err = fmt.Errorf("%s: empty file", src.Path)
		}
	case ELFFile:
		var ss util.Sections
		if ss, err = util.ReadELF(src.Path); err != nil {
			return nil, err
		}
		fw.img = sparse.New(0, 0)
		err = ss.AddTo(fw.img)
	case EEPROM:
		if cfg.Loader == nil {
			return nil, fmt.Errorf("no loader for %s", src)
		}
		fw.stream, err = cfg.Loader.ReadEEPROM(src.Size)
	default:
		return nil, fmt.Errorf("unsupported source: %s", src)
	}
	if err != nil {
		return nil, err
	}
	return fw, nil
}

func write(cfg *Config, fw *firmware, dst Endpoint) error {
	switch dst.Kind {
	case RAM, HexFile, BinFile:
		if err := fw.toImage(); err != nil {
			return err
		}
	case EEPROM, IICFile:
		if err := fw.toStream(cfg); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported destination: %s", dst)
	}
	if (dst.Kind == RAM || dst.Kind == EEPROM) && cfg.Loader == nil {
		return fmt.Errorf("no loader for %s", dst)
	}
	switch dst.Kind {
	case RAM:
		p, err := bin.Encode(fw.img, 0, fw.img.Len())
		if err != nil {
			return err
		}
		return cfg.Loader.WriteRAM(p)
	case EEPROM:
		return cfg.Loader.WriteEEPROM(fw.stream)
	case HexFile:
		width := cfg.HexWidth
		if width == 0 {
			width = 16
		}
		var buf bytes.Buffer
		if err := ihex.Encode(&buf, fw.img, width); err != nil {
			return err
		}
		return writeFile(dst.Path, buf.Bytes())
	case BinFile:
		img, err := fillGaps(fw.img, cfg.Fill)
		if err != nil {
			return err
		}
		p, err := bin.Encode(img, 0, img.Len())
		if err != nil {
			return err
		}
		return writeFile(dst.Path, p)
	default: // IICFile
		return writeFile(dst.Path, fw.stream)
	}
}

// fillGaps returns m with the undefined bytes set to fill.
func fillGaps(m *sparse.Image, fill byte) (*sparse.Image, error) {
	if fill == m.Fill() {
		return m, nil
	}
	f := sparse.New(m.Len(), fill)
	if err := f.Extend(m.Len()); err != nil {
		return nil, err
	}
	for r := range m.Runs(0) {
		if err := f.Set(r.Addr, r.Data); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func writeFile(name string, p []byte) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	_, err = f.Write(p)
	if e := f.Close(); err == nil {
		err = e
	}
	if err == nil {
		glog.V(1).Infof("load: wrote %d bytes to %s", len(p), name)
	}
	return err
}

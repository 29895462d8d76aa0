// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fx2 implements loading of the Cypress EZ-USB FX2 code memory and
// the boot EEPROM using the USB vendor control requests.
//
// Every Loader operation opens the device, performs the operation and closes
// the device before returning, also on error. A failed operation is not
// rolled back so the device may be left partially programmed.
package fx2

import (
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/golang/glog"
	usb "github.com/google/gousb"
)

// Default FX2 IDs (the boot ROM without an EEPROM).
const (
	DefaultVendor  usb.ID = 0x04b4
	DefaultProduct usb.ID = 0x8613
)

const (
	// ReqRAM is the vendor request implemented by the FX2 boot ROM that
	// reads/writes the internal RAM (wValue is the address).
	ReqRAM uint8 = 0xa0

	// ReqEEPROM is the vendor request that reads/writes the boot EEPROM. It
	// isn't implemented by the boot ROM, a suitable firmware must be loaded
	// into RAM first.
	ReqEEPROM uint8 = 0xa2

	// CPUCS is the address of the CPU control and status register. Writing 1
	// holds the 8051 core in reset, writing 0 releases it.
	CPUCS uint16 = 0xe600

	// BlockSize is the maximum size of a single control transfer.
	BlockSize = 4096

	DefaultTimeout = 5 * time.Second

	maxAddr = 0x10000
	haltEP  = 2
)

const (
	rtOut = usb.ControlOut | usb.ControlVendor | usb.ControlDevice
	rtIn  = usb.ControlIn | usb.ControlVendor | usb.ControlDevice
)

// Device is an open USB device with a claimed interface.
type Device interface {
	Control(rType, request uint8, val, idx uint16, data []byte) (int, error)
	ClearHalt(ep uint8) error
	BulkWrite(ep int, p []byte) (int, error)
	Close() error
}

// OpenFunc opens the device with the given IDs. If busAddr isn't empty it
// selects the device by its BUS:ADDR location. The timeout applies to every
// transfer.
type OpenFunc func(vendor, product usb.ID, busAddr string, timeout time.Duration) (Device, error)

type Error struct {
	Op  string
	Err error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	return "fx2: " + e.Op + ": " + e.Err.Error()
}

func wrapErr(op string, err *error) {
	if *err != nil {
		*err = &Error{op, *err}
	}
}

// TransferError reports a transfer that failed or moved a different number
// of bytes than requested.
type TransferError struct {
	Request  uint8  // vendor request (control transfers)
	Endpoint int    // endpoint number (bulk transfers)
	Addr     uint16 // wValue (control transfers)
	Want     int
	Got      int
	Err      error // underlying USB error, nil for a short transfer
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func (e *TransferError) Error() string {
	var s string
	if e.Endpoint != 0 {
		s = fmt.Sprintf(
			"bulk write to EP%d: transferred %d of %d bytes",
			e.Endpoint, e.Got, e.Want,
		)
	} else {
		s = fmt.Sprintf(
			"request %#02x at %#04x: transferred %d of %d bytes",
			e.Request, e.Addr, e.Got, e.Want,
		)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Loader loads the FX2 identified by Vendor and Product (and BusAddr if not
// empty).
type Loader struct {
	Vendor  usb.ID
	Product usb.ID
	BusAddr string        // BUS:ADDR, both decimal
	Timeout time.Duration // per transfer, DefaultTimeout if zero
	Open    OpenFunc      // OpenUSB if nil

	// Progress, if not nil, is called after every transferred block. The op
	// is the name of the Loader method (WriteRAM, WriteEEPROM, ReadEEPROM).
	Progress func(op string, cur, max int)
}

func (l *Loader) open() (Device, error) {
	open := l.Open
	if open == nil {
		open = OpenUSB
	}
	timeout := l.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return open(l.Vendor, l.Product, l.BusAddr, timeout)
}

func closeDev(d Device, err *error) {
	if e := d.Close(); *err == nil {
		*err = e
	}
}

func (l *Loader) progress(op string, cur, max int) {
	if l.Progress != nil && max != 0 {
		l.Progress(op, cur, max)
	}
}

// clearHalt clears a possible halt condition of the endpoint. Devices that
// don't implement the endpoint may stall the request so the error is only
// logged.
func clearHalt(d Device, ep uint8) {
	if err := d.ClearHalt(ep); err != nil {
		glog.V(1).Infof("fx2: clear halt EP%d: %v", ep, err)
	}
}

// Chunks splits n bytes into consecutive chunks of at most size bytes. It
// yields the offset and the length of every chunk. For n == 0 it yields
// nothing.
func Chunks(n, size int) iter.Seq2[int, int] {
	return func(yield func(int, int) bool) {
		for off := 0; off < n; off += size {
			if !yield(off, min(size, n-off)) {
				return
			}
		}
	}
}

func write(d Device, req uint8, addr uint16, p []byte) error {
	n, err := d.Control(rtOut, req, addr, 0, p)
	if err != nil || n != len(p) {
		return &TransferError{Request: req, Addr: addr, Want: len(p), Got: n, Err: err}
	}
	return nil
}

func read(d Device, req uint8, addr uint16, p []byte) error {
	n, err := d.Control(rtIn, req, addr, 0, p)
	if err != nil || n != len(p) {
		return &TransferError{Request: req, Addr: addr, Want: len(p), Got: n, Err: err}
	}
	return nil
}

func setReset(d Device, reset bool) error {
	var b [1]byte
	if reset {
		b[0] = 1
	}
	return write(d, ReqRAM, CPUCS, b[:])
}

func checkSize(n int) error {
	if n < 0 || n > maxAddr {
		return fmt.Errorf("%d bytes don't fit in the 64 KiB address space", n)
	}
	return nil
}

// WriteRAM writes p to the FX2 RAM starting from address 0. The CPU is held
// in reset during the write.
func (l *Loader) WriteRAM(p []byte) (err error) {
	defer wrapErr("WriteRAM", &err)
	if err = checkSize(len(p)); err != nil {
		return
	}
	dev, err := l.open()
	if err != nil {
		return
	}
	defer closeDev(dev, &err)
	clearHalt(dev, haltEP)
	if err = setReset(dev, true); err != nil {
		return
	}
	for off, n := range Chunks(len(p), BlockSize) {
		if err = write(dev, ReqRAM, uint16(off), p[off:off+n]); err != nil {
			return
		}
		glog.V(2).Infof("fx2: RAM: wrote %d bytes at %#04x", n, off)
		l.progress("WriteRAM", off+n, len(p))
	}
	if err = setReset(dev, false); err != nil {
		return
	}
	glog.V(1).Infof("fx2: wrote %d bytes to RAM", len(p))
	return
}

// WriteEEPROM writes p to the boot EEPROM starting from address 0.
func (l *Loader) WriteEEPROM(p []byte) (err error) {
	defer wrapErr("WriteEEPROM", &err)
	if err = checkSize(len(p)); err != nil {
		return
	}
	dev, err := l.open()
	if err != nil {
		return
	}
	defer closeDev(dev, &err)
	clearHalt(dev, haltEP)
	for off, n := range Chunks(len(p), BlockSize) {
		if err = write(dev, ReqEEPROM, uint16(off), p[off:off+n]); err != nil {
			return
		}
		glog.V(2).Infof("fx2: EEPROM: wrote %d bytes at %#04x", n, off)
		l.progress("WriteEEPROM", off+n, len(p))
	}
	glog.V(1).Infof("fx2: wrote %d bytes to EEPROM", len(p))
	return
}

// ReadEEPROM reads n bytes of the boot EEPROM starting from address 0.
func (l *Loader) ReadEEPROM(n int) (p []byte, err error) {
	defer wrapErr("ReadEEPROM", &err)
	if err = checkSize(n); err != nil {
		return
	}
	dev, err := l.open()
	if err != nil {
		return
	}
	defer closeDev(dev, &err)
	clearHalt(dev, haltEP)
	p = make([]byte, n)
	for off, k := range Chunks(n, BlockSize) {
		if err = read(dev, ReqEEPROM, uint16(off), p[off:off+k]); err != nil {
			return nil, err
		}
		glog.V(2).Infof("fx2: EEPROM: read %d bytes at %#04x", k, off)
		l.progress("ReadEEPROM", off+k, n)
	}
	glog.V(1).Infof("fx2: read %d bytes from EEPROM", n)
	return p, nil
}

// Control performs a single vendor control transfer. OUT transfers must
// transfer all of p, IN transfers return the number of bytes received.
func (l *Loader) Control(in bool, req uint8, val, idx uint16, p []byte) (n int, err error) {
	defer wrapErr("Control", &err)
	if len(p) > BlockSize {
		return 0, errors.New("transfer longer than the block size")
	}
	dev, err := l.open()
	if err != nil {
		return
	}
	defer closeDev(dev, &err)
	if in {
		n, err = dev.Control(rtIn, req, val, idx, p)
		if err != nil {
			err = &TransferError{Request: req, Addr: val, Want: len(p), Got: n, Err: err}
		}
		return
	}
	n, err = dev.Control(rtOut, req, val, idx, p)
	if err != nil || n != len(p) {
		err = &TransferError{Request: req, Addr: val, Want: len(p), Got: n, Err: err}
	}
	return
}

// BulkWrite writes p to the bulk OUT endpoint ep in a single transfer.
func (l *Loader) BulkWrite(ep int, p []byte) (n int, err error) {
	defer wrapErr("BulkWrite", &err)
	if ep <= 0 || ep > 15 {
		return 0, fmt.Errorf("bad endpoint number: %d", ep)
	}
	dev, err := l.open()
	if err != nil {
		return
	}
	defer closeDev(dev, &err)
	clearHalt(dev, uint8(ep))
	n, err = dev.BulkWrite(ep, p)
	if err != nil || n != len(p) {
		err = &TransferError{Endpoint: ep, Want: len(p), Got: n, Err: err}
	}
	return
}

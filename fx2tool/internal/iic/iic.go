// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package iic implements the boot record stream read by the FX2 boot ROM
// from the I2C EEPROM (the "C2 load" format, also used by .iic files).
//
// The stream starts with an 8-byte header:
//
//	0     0xC2 (or 0xC0 for a header without records)
//	1..2  vendor ID, little endian
//	3..4  product ID, little endian
//	5..6  device ID, little endian
//	7     configuration byte
//
// followed by records. Each record consists of a 16-bit big endian length
// (bits 9:0 payload length, bit 15 set in the last record), a 16-bit big
// endian load address and the payload. The stream ends with the last record
// that writes 0x00 to CPUCS, which releases the CPU from reset.
package iic

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/embeddedgo/fx2tools/fx2tool/internal/sparse"
)

// Header markers.
const (
	MarkerNoLoad = 0xc0
	MarkerLoad   = 0xc2
)

// Configuration byte bits.
const (
	Config400kHz = 1 << 0
	ConfigDiscon = 1 << 6
)

const (
	HeaderSize = 8

	// MaxRecordLen is the maximum payload of the records written by
	// WriteRecords. The format allows up to 1023 bytes.
	MaxRecordLen = 255

	lastFlag = 0x8000
	lenMask  = 0x03ff
	cpucs    = 0xe600
)

// terminator is the last record: write 0x00 to CPUCS.
var terminator = [...]byte{lastFlag >> 8, 0x01, cpucs >> 8, cpucs & 0xff, 0x00}

// Header describes the target that the boot ROM enumerates as.
type Header struct {
	Vendor  uint16
	Product uint16
	Device  uint16
	Config  byte
}

// Stream state errors.
var (
	ErrNotEmpty       = errors.New("iic: stream not empty")
	ErrNotInitialised = errors.New("iic: stream not initialised")
	ErrDestNotEmpty   = errors.New("iic: stream already contains records")
	ErrSealed         = errors.New("iic: stream finalised")
)

// AddressError reports data that cannot be addressed by a 16-bit record
// address.
type AddressError struct {
	Addr int
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("iic: address %#x beyond 64 KiB", e.Addr)
}

type state uint8

const (
	empty state = iota
	header
	records
	sealed
)

// Stream is a boot record stream under construction. The zero value is an
// empty stream. Init, WriteRecords and Finalise must be called exactly once,
// in this order.
type Stream struct {
	buf   []byte
	state state
}

// Init writes the stream header.
func (s *Stream) Init(h Header) error {
	if s.state != empty || len(s.buf) != 0 {
		return ErrNotEmpty
	}
	s.buf = append(s.buf, MarkerLoad)
	le := binary.LittleEndian
	s.buf = le.AppendUint16(s.buf, h.Vendor)
	s.buf = le.AppendUint16(s.buf, h.Product)
	s.buf = le.AppendUint16(s.buf, h.Device)
	s.buf = append(s.buf, h.Config)
	s.state = header
	return nil
}

// WriteRecords appends records for every contiguous run of defined bytes of
// m, in the ascending address order. Runs longer than MaxRecordLen are split
// into records at advancing addresses. It returns the number of payload
// bytes encoded.
func (s *Stream) WriteRecords(m *sparse.Image) (n int, err error) {
	switch s.state {
	case empty:
		return 0, ErrNotInitialised
	case records:
		return 0, ErrDestNotEmpty
	case sealed:
		return 0, ErrSealed
	}
	// Validate before writing anything so a failure leaves the stream intact.
	for r := range m.Runs(0) {
		if end := r.Addr + len(r.Data); end > 0x10000 {
			return 0, &AddressError{end - 1}
		}
	}
	be := binary.BigEndian
	for r := range m.Runs(MaxRecordLen) {
		s.buf = be.AppendUint16(s.buf, uint16(len(r.Data)))
		s.buf = be.AppendUint16(s.buf, uint16(r.Addr))
		s.buf = append(s.buf, r.Data...)
		n += len(r.Data)
	}
	s.state = records
	return n, nil
}

// Finalise appends the last record. After Finalise the stream cannot be
// modified.
func (s *Stream) Finalise() error {
	switch s.state {
	case empty:
		return ErrNotInitialised
	case sealed:
		return ErrSealed
	}
	s.buf = append(s.buf, terminator[:]...)
	s.state = sealed
	return nil
}

// Bytes returns the content of the stream.
func (s *Stream) Bytes() []byte {
	return s.buf
}

// Encode returns the complete boot record stream for the image m.
func Encode(h Header, m *sparse.Image) ([]byte, error) {
	var s Stream
	if err := s.Init(h); err != nil {
		return nil, err
	}
	if _, err := s.WriteRecords(m); err != nil {
		return nil, err
	}
	if err := s.Finalise(); err != nil {
		return nil, err
	}
	return s.Bytes(), nil
}

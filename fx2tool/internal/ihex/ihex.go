// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ihex converts between the Intel HEX format and sparse images.
//
// Decode accepts the I8HEX, I16HEX and I32HEX variants: data, end of file,
// extended segment address and extended linear address records. The start
// address records are accepted and ignored. Encode emits extended linear
// address records only for images with data above 64 KiB.
package ihex

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/embeddedgo/fx2tools/fx2tool/internal/sparse"
	"github.com/marcinbor85/gohex"
)

const startCode = ':'

// Record types.
const (
	TypeData         = 0x00
	TypeEOF          = 0x01
	TypeExtSegAddr   = 0x02
	TypeStartSegAddr = 0x03
	TypeExtLinAddr   = 0x04
	TypeStartLinAddr = 0x05
)

// SyntaxError reports a malformed line.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("ihex: line %d: %s", e.Line, e.Msg)
}

// ChecksumError reports a line whose checksum byte does not match the sum
// of the preceding bytes.
type ChecksumError struct {
	Line int
	Want byte // computed from the line content
	Got  byte // read from the line
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf(
		"ihex: line %d: bad checksum %#02x, computed %#02x",
		e.Line, e.Got, e.Want,
	)
}

// Checksum returns the two's complement of the sum of p.
func Checksum(p []byte) byte {
	var sum byte
	for _, b := range p {
		sum += b
	}
	return -sum
}

type record struct {
	typ  byte
	addr uint16
	data []byte
}

// parseRecord parses a single line (without the line terminator). The
// returned errors have the Line field unset.
func parseRecord(line []byte) (rec record, err error) {
	if len(line) == 0 || line[0] != startCode {
		return rec, &SyntaxError{Msg: "missing start code"}
	}
	line = line[1:]
	if len(line) < 10 || len(line)%2 != 0 {
		return rec, &SyntaxError{Msg: "bad record length"}
	}
	buf := make([]byte, len(line)/2)
	if _, err := hex.Decode(buf, line); err != nil {
		return rec, &SyntaxError{Msg: "bad hex digit"}
	}
	n := int(buf[0])
	if len(buf) != n+5 {
		return rec, &SyntaxError{
			Msg: fmt.Sprintf("byte count %d does not match the record", n),
		}
	}
	last := len(buf) - 1
	if sum := Checksum(buf[:last]); sum != buf[last] {
		return rec, &ChecksumError{Want: sum, Got: buf[last]}
	}
	rec.addr = binary.BigEndian.Uint16(buf[1:3])
	rec.typ = buf[3]
	rec.data = buf[4:last]
	return rec, nil
}

func setLine(err error, line int) error {
	switch e := err.(type) {
	case *SyntaxError:
		e.Line = line
	case *ChecksumError:
		e.Line = line
	}
	return err
}

// Decode reads the Intel HEX text from r and returns its image. The data
// records may appear in any order; if they overlap, the last one wins. The
// end of file record terminates decoding, the following lines are not read.
// On any error no image is returned.
func Decode(r io.Reader) (*sparse.Image, error) {
	m := sparse.New(1024, 0)
	sc := bufio.NewScanner(r)
	var base uint32
	ln := 0
	for sc.Scan() {
		ln++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		rec, err := parseRecord(line)
		if err != nil {
			return nil, setLine(err, ln)
		}
		switch rec.typ {
		case TypeData:
			addr := base + uint32(rec.addr)
			if err := m.Set(int(addr), rec.data); err != nil {
				return nil, fmt.Errorf("ihex: line %d: address %#x: %w", ln, addr, err)
			}
		case TypeEOF:
			return m, nil
		case TypeExtSegAddr, TypeExtLinAddr:
			if len(rec.data) != 2 {
				return nil, &SyntaxError{ln, "bad extended address record"}
			}
			base = uint32(binary.BigEndian.Uint16(rec.data))
			if rec.typ == TypeExtSegAddr {
				base <<= 4
			} else {
				base <<= 16
			}
		case TypeStartSegAddr, TypeStartLinAddr:
			if len(rec.data) != 4 {
				return nil, &SyntaxError{ln, "bad start address record"}
			}
		default:
			return nil, &SyntaxError{
				ln, fmt.Sprintf("unknown record type %#02x", rec.typ),
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// Encode writes the defined bytes of m to w in the Intel HEX format. Every
// contiguous run of defined bytes is written using data records of at most
// width bytes. The output ends with the end of file record.
//
// Images that fit in 64 KiB are written as I8HEX: data and end of file
// records only, as expected by the EZ-USB loaders. Larger images are written
// as I32HEX.
func Encode(w io.Writer, m *sparse.Image, width int) error {
	if width < 1 || width > 255 {
		return fmt.Errorf("ihex: bad line width: %d", width)
	}
	if dataEnd(m) > 0x10000 {
		return encodeLinear(w, m, byte(width))
	}
	bw := bufio.NewWriter(w)
	for r := range m.Runs(width) {
		writeRecord(bw, TypeData, uint16(r.Addr), r.Data)
	}
	writeRecord(bw, TypeEOF, 0, nil)
	return bw.Flush()
}

// dataEnd returns the offset just past the last defined byte of m.
func dataEnd(m *sparse.Image) (end int) {
	for r := range m.Runs(0) {
		end = r.Addr + len(r.Data)
	}
	return
}

func writeRecord(w *bufio.Writer, typ byte, addr uint16, data []byte) {
	buf := make([]byte, 0, 5+len(data))
	buf = append(buf, byte(len(data)), byte(addr>>8), byte(addr), typ)
	buf = append(buf, data...)
	buf = append(buf, Checksum(buf))
	fmt.Fprintf(w, "%c%X\n", startCode, buf)
}

func encodeLinear(w io.Writer, m *sparse.Image, width byte) error {
	mem := gohex.NewMemory()
	for r := range m.Runs(0) {
		if err := mem.AddBinary(uint32(r.Addr), r.Data); err != nil {
			return fmt.Errorf("ihex: %w", err)
		}
	}
	return mem.DumpIntelHex(w, width)
}

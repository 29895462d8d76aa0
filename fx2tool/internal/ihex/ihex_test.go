// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ihex

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/embeddedgo/fx2tools/fx2tool/internal/sparse"
)

// line formats a record with a correct checksum.
func line(typ byte, addr uint16, data ...byte) string {
	buf := []byte{byte(len(data)), byte(addr >> 8), byte(addr), typ}
	buf = append(buf, data...)
	buf = append(buf, Checksum(buf))
	return fmt.Sprintf(":%X\n", buf)
}

func TestChecksum(t *testing.T) {
	// https://en.wikipedia.org/wiki/Intel_HEX#Checksum_calculation
	p := []byte{0x03, 0x00, 0x30, 0x00, 0x02, 0x33, 0x7a}
	if sum := Checksum(p); sum != 0x1e {
		t.Errorf("got %#02x, want 0x1e", sum)
	}
}

func TestDecode(t *testing.T) {
	src := ":10010000214601360121470136007EFE09D2190140\r\n" +
		"\r\n" +
		":100110002146017E17C20001FF5F16002148011928\r\n" +
		":00000001FF\r\n"
	m, err := Decode(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	if m.Len() != 0x120 {
		t.Errorf("len: %#x, want 0x120", m.Len())
	}
	if n := m.DefinedLen(); n != 32 {
		t.Errorf("defined: %d, want 32", n)
	}
	if m.Defined(0xff) || !m.Defined(0x100) || !m.Defined(0x11f) {
		t.Error("bad mask around the records")
	}
	if m.Byte(0x100) != 0x21 || m.Byte(0x11f) != 0x19 {
		t.Errorf("bad data: %#x %#x", m.Byte(0x100), m.Byte(0x11f))
	}
}

func TestDecodeOverlapLastWins(t *testing.T) {
	src := line(TypeData, 0x10, 1, 2, 3, 4) +
		line(TypeData, 0x00, 9) +
		line(TypeData, 0x12, 0xaa, 0xbb, 0xcc) +
		line(TypeEOF, 0)
	m, err := Decode(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	want := sparse.New(0, 0)
	want.Set(0, []byte{9})
	want.Set(0x10, []byte{1, 2, 0xaa, 0xbb, 0xcc})
	if !m.Equal(want) {
		t.Errorf("got %x, want %x", m.Data(), want.Data())
	}
}

func TestDecodeStopsAtEOF(t *testing.T) {
	src := line(TypeData, 0, 1) + line(TypeEOF, 0) + "garbage\n" +
		line(TypeData, 1, 2)
	m, err := Decode(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	if m.Len() != 1 || m.Byte(0) != 1 {
		t.Errorf("got %x, want 01", m.Data())
	}
}

func TestDecodeExtendedAddress(t *testing.T) {
	src := line(TypeExtLinAddr, 0, 0x00, 0x01) +
		line(TypeData, 0x0002, 0x55) +
		line(TypeExtSegAddr, 0, 0x00, 0x10) +
		line(TypeData, 0x0001, 0x66) +
		line(TypeStartLinAddr, 0, 0, 0, 0, 0) +
		line(TypeEOF, 0)
	m, err := Decode(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	if !m.Defined(0x10002) || m.Byte(0x10002) != 0x55 {
		t.Error("extended linear address not applied")
	}
	if !m.Defined(0x101) || m.Byte(0x101) != 0x66 {
		t.Error("extended segment address not applied")
	}
	if m.DefinedLen() != 2 {
		t.Errorf("defined: %d, want 2", m.DefinedLen())
	}
}

func TestDecodeChecksumCorruption(t *testing.T) {
	lines := []string{
		line(TypeData, 0x0000, 1, 2, 3),
		line(TypeData, 0x0100, 0xff),
		line(TypeEOF, 0),
	}
	for i := range lines {
		// Corrupt the checksum byte (the last two hex digits) of line i.
		corrupt := make([]string, len(lines))
		copy(corrupt, lines)
		l := strings.TrimSuffix(corrupt[i], "\n")
		cs := l[len(l)-2:]
		bad := "00"
		if cs == "00" {
			bad = "01"
		}
		corrupt[i] = l[:len(l)-2] + bad + "\n"
		m, err := Decode(strings.NewReader(strings.Join(corrupt, "")))
		var ce *ChecksumError
		if !errors.As(err, &ce) {
			t.Errorf("line %d: got %v, want ChecksumError", i+1, err)
			continue
		}
		if ce.Line != i+1 {
			t.Errorf("line %d: error reports line %d", i+1, ce.Line)
		}
		if m != nil {
			t.Errorf("line %d: image returned together with an error", i+1)
		}
	}
}

func TestDecodeSyntaxErrors(t *testing.T) {
	for _, src := range []string{
		// no start code
		"10010000214601360121470136007EFE09D2190140\n",
		// too short
		":0000000\n",
		// bad digit
		":01000000GG00\n",
		// byte count mismatch
		":0200000001FD\n",
		// unknown type
		line(0x07, 0, 1),
		// bad extended address
		line(TypeExtLinAddr, 0, 1),
	} {
		_, err := Decode(strings.NewReader(src))
		var se *SyntaxError
		if !errors.As(err, &se) {
			t.Errorf("%q: got %v, want SyntaxError", src, err)
		}
	}
}

func TestDecodeTooLarge(t *testing.T) {
	src := line(TypeExtLinAddr, 0, 0x7f, 0xff) + line(TypeData, 0, 1)
	_, err := Decode(strings.NewReader(src))
	if !errors.Is(err, sparse.ErrTooLarge) {
		t.Errorf("got %v, want ErrTooLarge", err)
	}
}

// records parses the encoder output.
func records(t *testing.T, p []byte) []record {
	t.Helper()
	var recs []record
	sc := bufio.NewScanner(bytes.NewReader(p))
	for sc.Scan() {
		l := bytes.TrimSpace(sc.Bytes())
		if len(l) == 0 {
			continue
		}
		rec, err := parseRecord(l)
		if err != nil {
			t.Fatalf("%s: %v", l, err)
		}
		recs = append(recs, rec)
	}
	return recs
}

func TestEncodeLineSplit(t *testing.T) {
	m := sparse.New(0, 0)
	data := make([]byte, 20)
	for i := range data {
		data[i] = byte(i + 1)
	}
	m.Set(0x0010, data)
	var buf bytes.Buffer
	if err := Encode(&buf, m, 16); err != nil {
		t.Fatal(err)
	}
	want := ":100010000102030405060708090A0B0C0D0E0F1058\n" +
		":040020001112131492\n" +
		":00000001FF\n"
	if got := buf.String(); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestEncodeNoExtendedBelow64K(t *testing.T) {
	m := sparse.New(0, 0)
	m.Set(0, []byte{1})
	m.Set(0xfff0, bytes.Repeat([]byte{0xaa}, 16))
	m.Extend(0x100) // undefined tail beyond 64 KiB
	var buf bytes.Buffer
	if err := Encode(&buf, m, 16); err != nil {
		t.Fatal(err)
	}
	for _, r := range records(t, buf.Bytes()) {
		if r.typ != TypeData && r.typ != TypeEOF {
			t.Errorf("record type %#02x in an image below 64 KiB", r.typ)
		}
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(m) {
		t.Error("decoded image differs")
	}
}

func TestEncodeExtended(t *testing.T) {
	m := sparse.New(0, 0)
	m.Set(0x20010, bytes.Repeat([]byte{0x55}, 16))
	var buf bytes.Buffer
	if err := Encode(&buf, m, 16); err != nil {
		t.Fatal(err)
	}
	ext := 0
	for _, r := range records(t, buf.Bytes()) {
		if r.typ == TypeExtLinAddr {
			ext++
		}
	}
	if ext == 0 {
		t.Error("no extended linear address record")
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(m) {
		t.Error("decoded image differs")
	}
}

func TestEncodeBadWidth(t *testing.T) {
	m := sparse.New(0, 0)
	for _, w := range []int{0, -1, 256} {
		if err := Encode(new(bytes.Buffer), m, w); err == nil {
			t.Errorf("width %d: no error", w)
		}
	}
}

func randomImage(rnd *rand.Rand, size int) *sparse.Image {
	m := sparse.New(size, 0)
	for i := 0; i < 20; i++ {
		off := rnd.Intn(size)
		p := make([]byte, 1+rnd.Intn(300))
		rnd.Read(p)
		m.Set(off, p)
	}
	return m
}

func TestRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		size := 0x4000
		if i%4 == 3 {
			size = 0x30000 // needs extended addressing
		}
		m := randomImage(rnd, size)
		var a, b bytes.Buffer
		if err := Encode(&a, m, 16); err != nil {
			t.Fatal(err)
		}
		if err := Encode(&b, m, 16); err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(a.Bytes(), b.Bytes()) {
			t.Fatal("output is not deterministic")
		}
		m1, err := Decode(&a)
		if err != nil {
			t.Fatal(err)
		}
		if !m1.Equal(m) {
			t.Errorf("image %d: round trip mismatch", i)
		}
	}
}

// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import (
	"debug/elf"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/embeddedgo/fx2tools/fx2tool/internal/sparse"
)

type Section struct {
	Name  string
	Paddr uint64 // load address
	Data  []byte
}

type Sections []*Section

// ReadELF reads the loadable sections of the program and returns them as
// a slice. The order of the returned sections is unspecified.
func ReadELF(name string) (Sections, error) {
	r, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ss := make(Sections, 0, 8)
	for _, s := range f.Sections {
		if s.Type != elf.SHT_PROGBITS || s.Flags&elf.SHF_ALLOC == 0 {
			continue
		}
		data, err := s.Data()
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			continue
		}
		paddr := s.Addr
		for _, p := range f.Progs {
			if p.Type != elf.PT_LOAD {
				continue
			}
			if p.Off <= s.Offset && s.Offset < p.Off+p.Filesz {
				paddr = p.Paddr + s.Offset - p.Off
				break
			}
		}
		ss = append(ss, &Section{s.Name, paddr, data})
	}
	return ss, nil
}

// ReadBins reads binary files acording to the BIN1:ADDR1[,BIN2:ADDR2[,...]]
// description and returns them as a slice of sections.
func ReadBins(descr string) (Sections, error) {
	bins := strings.Split(descr, ",")
	ss := make(Sections, len(bins))
	for k, ba := range bins {
		i := strings.LastIndexByte(ba, ':')
		if i <= 0 {
			return nil, fmt.Errorf("bad '%s' in the -inc option", ba)
		}
		bin, addr := ba[:i], ba[i+1:]
		s := &Section{Name: bin}
		var err error
		s.Paddr, err = strconv.ParseUint(addr, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("bad address in '%s': %s", ba, err)
		}
		s.Data, err = os.ReadFile(bin)
		if err != nil {
			return nil, err
		}
		ss[k] = s
	}
	return ss, nil
}

// SortByPaddr sorts sections according to the Paddr field.
func (ss Sections) SortByPaddr() {
	sort.Slice(
		ss,
		func(i, j int) bool {
			return ss[i].Paddr < ss[j].Paddr
		},
	)
}

// AddTo writes the sections to m at their load addresses. The sections must
// not overlap each other. They may overwrite the content already present
// in m.
func (ss Sections) AddTo(m *sparse.Image) error {
	ss.SortByPaddr()
	var end uint64
	for i, s := range ss {
		if i != 0 && s.Paddr < end {
			return fmt.Errorf("section '%s' overlaps the previous one", s.Name)
		}
		end = s.Paddr + uint64(len(s.Data))
		if end > sparse.MaxLen {
			return fmt.Errorf("section '%s' at %#x: %w", s.Name, s.Paddr, sparse.ErrTooLarge)
		}
		if err := m.Set(int(s.Paddr), s.Data); err != nil {
			return err
		}
	}
	return nil
}

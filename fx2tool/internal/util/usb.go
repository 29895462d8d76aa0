// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/golang/glog"
	usb "github.com/google/gousb"
)

// ParseBusAddr parses the BUS:ADDR string where both BUS and ADDR are
// decimal unsigned integers. The empty string selects any bus and address
// (bus = addr = -1).
func ParseBusAddr(busAddr string) (bus, addr int, err error) {
	if busAddr == "" {
		return -1, -1, nil
	}
	s := strings.Split(busAddr, ":")
	if len(s) != 2 {
		return -1, -1, fmt.Errorf("bad USB device address: %s (want BUS:ADDR)", busAddr)
	}
	b, err := strconv.ParseUint(s[0], 10, 8)
	if err != nil {
		return -1, -1, fmt.Errorf("bad USB bus number: %s", s[0])
	}
	a, err := strconv.ParseUint(s[1], 10, 8)
	if err != nil {
		return -1, -1, fmt.Errorf("bad USB device address: %s", s[1])
	}
	return int(b), int(a), nil
}

// OpenUSB opens all USB devices with the given vendor and product IDs
// (limited to the one at busAddr if busAddr isn't empty). The caller is
// responsible for closing the returned devices and the context.
func OpenUSB(vendor, product usb.ID, busAddr string) (ctx *usb.Context, devs []*usb.Device, err error) {
	bus, addr, err := ParseBusAddr(busAddr)
	if err != nil {
		return
	}
	ctx = usb.NewContext()
	devs, err = ctx.OpenDevices(func(desc *usb.DeviceDesc) bool {
		if bus >= 0 && (desc.Bus != bus || desc.Address != addr) {
			return false
		}
		if desc.Vendor != vendor || desc.Product != product {
			return false
		}
		glog.V(1).Infof(
			"usb: found %s:%s at %d:%d", desc.Vendor, desc.Product,
			desc.Bus, desc.Address,
		)
		return true
	})
	if err != nil {
		for _, d := range devs {
			d.Close()
		}
		ctx.Close()
		devs = nil
	}
	return
}

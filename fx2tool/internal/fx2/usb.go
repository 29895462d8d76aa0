// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fx2

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/embeddedgo/fx2tools/fx2tool/internal/util"
	usb "github.com/google/gousb"
)

const (
	reqClearFeature  uint8  = 0x01
	featEndpointHalt uint16 = 0x00
)

type usbDevice struct {
	ctx     *usb.Context
	devs    []*usb.Device
	dev     *usb.Device
	cfg     *usb.Config
	intf    *usb.Interface
	timeout time.Duration
}

// OpenUSB opens the FX2 device using libusb and claims its interface 0.
func OpenUSB(vendor, product usb.ID, busAddr string, timeout time.Duration) (Device, error) {
	ctx, devs, err := util.OpenUSB(vendor, product, busAddr)
	if err != nil {
		return nil, err
	}
	d := &usbDevice{ctx: ctx, devs: devs, timeout: timeout}
	if len(devs) == 0 {
		d.Close()
		return nil, fmt.Errorf("no USB device %04x:%04x was found", uint16(vendor), uint16(product))
	}
	if len(devs) != 1 {
		d.Close()
		return nil, fmt.Errorf(
			"found more than one USB device %04x:%04x (select one with BUS:ADDR)",
			uint16(vendor), uint16(product),
		)
	}
	d.dev = devs[0]
	d.dev.ControlTimeout = timeout
	if err = d.dev.SetAutoDetach(true); err != nil {
		d.Close()
		return nil, err
	}
	if d.cfg, err = d.dev.Config(1); err != nil {
		d.Close()
		return nil, err
	}
	if d.intf, err = d.cfg.Interface(0, 0); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *usbDevice) Control(rType, request uint8, val, idx uint16, data []byte) (int, error) {
	return d.dev.Control(rType, request, val, idx, data)
}

// ClearHalt sends the standard CLEAR_FEATURE(ENDPOINT_HALT) request to the
// OUT endpoint ep. gousb has no clear-halt call, so unlike libusb_clear_halt
// this clears the halt on the device side only and leaves the host-side data
// toggle of the endpoint untouched.
func (d *usbDevice) ClearHalt(ep uint8) error {
	_, err := d.dev.Control(
		usb.ControlOut|usb.ControlStandard|usb.ControlEndpoint,
		reqClearFeature, featEndpointHalt, uint16(ep), nil,
	)
	return err
}

func (d *usbDevice) BulkWrite(ep int, p []byte) (int, error) {
	if d.intf == nil {
		return 0, errors.New("interface not claimed")
	}
	oe, err := d.intf.OutEndpoint(ep)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	return oe.WriteContext(ctx, p)
}

// Close releases the interface and the configuration and closes all devices
// opened together with the FX2.
func (d *usbDevice) Close() (err error) {
	if d.intf != nil {
		d.intf.Close()
		d.intf = nil
	}
	if d.cfg != nil {
		err = d.cfg.Close()
		d.cfg = nil
	}
	for _, dev := range d.devs {
		if e := dev.Close(); err == nil {
			err = e
		}
	}
	d.devs = nil
	if d.ctx != nil {
		if e := d.ctx.Close(); err == nil {
			err = e
		}
		d.ctx = nil
	}
	return
}

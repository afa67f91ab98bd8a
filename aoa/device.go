package aoa

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/gousb"
)

const (
	// openAttempts bounds enumeration retries, one second apart.
	openAttempts = 5

	// settleDelay gives the Android device time to react to the mode switch
	// and to the interface claim.
	settleDelay = time.Second
)

// Device is an opened accessory with interface 0 claimed and the bulk
// endpoint pair resolved.  It exclusively owns the interface claim until
// Close.
type Device struct {
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	in   *gousb.InEndpoint
	out  *gousb.OutEndpoint
}

/*Open finds a compatible device, switches it into accessory mode if
necessary, and claims its bulk endpoints.

target pins an exact (vid, pid) pair; nil matches any compatible vendor.
If the matched device already presents an accessory product ID the
handshake is skipped.  Otherwise the handshake runs, the device
re-enumerates, and the accessory identity is located again.

The returned Device owns the gousb handle; the caller retains ownership of
ctx.
*/
func Open(ctx *gousb.Context, target *Target, id Identity) (*Device, error) {
	match := func(desc *gousb.DeviceDesc) bool {
		if target != nil {
			return desc.Vendor == target.VID && desc.Product == target.PID
		}
		return CompatibleVendors[desc.Vendor]
	}

	dev, err := findHandle(ctx, match)
	if err != nil {
		return nil, err
	}

	if !AccessoryProducts[dev.Desc.Product] {
		log.Printf("device %s:%s is not in accessory mode, starting handshake", dev.Desc.Vendor, dev.Desc.Product)
		if err := handshake(dev, id); err != nil {
			dev.Close()
			return nil, err
		}
		dev.Close()
		time.Sleep(settleDelay)

		dev, err = findHandle(ctx, func(desc *gousb.DeviceDesc) bool {
			return desc.Vendor == AccessoryVendor && AccessoryProducts[desc.Product]
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrModeSwitchFailed, err)
		}
	} else {
		log.Printf("device %s:%s already in accessory mode", dev.Desc.Vendor, dev.Desc.Product)
	}

	return claim(dev)
}

// findHandle enumerates and opens the first device match accepts, retrying
// once per second up to the attempt budget.
func findHandle(ctx *gousb.Context, match func(*gousb.DeviceDesc) bool) (*gousb.Device, error) {
	var dev *gousb.Device
	op := func() error {
		devs, err := ctx.OpenDevices(match)
		// OpenDevices can return partial results alongside an error; any
		// opened handle is usable
		for i, d := range devs {
			if i == 0 {
				dev = d
				continue
			}
			d.Close()
		}
		if dev != nil {
			return nil
		}
		if err != nil {
			return err
		}
		return ErrDeviceUnavailable
	}

	err := backoff.Retry(op, backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), openAttempts-1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	log.Printf("opened device %s:%s", dev.Desc.Vendor, dev.Desc.Product)
	return dev, nil
}

// claim takes ownership of interface 0 alt 0 and resolves the endpoint pair.
func claim(dev *gousb.Device) (*Device, error) {
	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		return nil, fmt.Errorf("enabling kernel driver auto-detach: %w", err)
	}
	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("selecting configuration 1: %w", err)
	}
	intf, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		return nil, fmt.Errorf("claiming interface 0: %w", err)
	}

	// pause so the android device can react to the claim
	time.Sleep(settleDelay)

	inDesc, outDesc, err := pickEndpoints(intf.Setting)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		return nil, err
	}
	in, err := intf.InEndpoint(inDesc.Number)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		return nil, fmt.Errorf("opening bulk-IN %d: %w", inDesc.Number, err)
	}
	out, err := intf.OutEndpoint(outDesc.Number)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		return nil, fmt.Errorf("opening bulk-OUT %d: %w", outDesc.Number, err)
	}
	log.Printf("endpoints resolved: IN %s, OUT %s", inDesc.Address, outDesc.Address)
	return &Device{dev: dev, cfg: cfg, intf: intf, in: in, out: out}, nil
}

// pickEndpoints selects the first IN and first OUT endpoint of a setting,
// in ascending address order.
func pickEndpoints(s gousb.InterfaceSetting) (in, out gousb.EndpointDesc, err error) {
	descs := make([]gousb.EndpointDesc, 0, len(s.Endpoints))
	for _, ep := range s.Endpoints {
		descs = append(descs, ep)
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Address < descs[j].Address })

	var haveIn, haveOut bool
	for _, ep := range descs {
		if ep.Direction == gousb.EndpointDirectionIn && !haveIn {
			in = ep
			haveIn = true
		}
		if ep.Direction == gousb.EndpointDirectionOut && !haveOut {
			out = ep
			haveOut = true
		}
	}
	if !haveIn || !haveOut {
		return in, out, ErrEndpointsMissing
	}
	return in, out, nil
}

// ReadBulk performs one bulk-IN transfer, honoring ctx for its timeout.
func (d *Device) ReadBulk(ctx context.Context, buf []byte) (int, error) {
	return d.in.ReadContext(ctx, buf)
}

// WriteBulk performs one bulk-OUT transfer.  Callers serialize; the
// accessory runtime is the only writer.
func (d *Device) WriteBulk(b []byte) (int, error) {
	return d.out.Write(b)
}

// VendorID returns the opened device's vendor ID.
func (d *Device) VendorID() uint16 { return uint16(d.dev.Desc.Vendor) }

// ProductID returns the opened device's product ID.
func (d *Device) ProductID() uint16 { return uint16(d.dev.Desc.Product) }

// Close releases the interface claim and the device handle.
func (d *Device) Close() error {
	d.intf.Close()
	d.cfg.Close()
	return d.dev.Close()
}

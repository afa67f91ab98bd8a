package aoa

import (
	"errors"
	"testing"

	"github.com/google/gousb"
)

func TestValidateCompatibleVendor(t *testing.T) {
	if err := Validate(Target{VID: 0x04e8, PID: 0x6860}); err != nil {
		t.Errorf("samsung target rejected: %v", err)
	}
}

func TestValidateUnknownVendor(t *testing.T) {
	err := Validate(Target{VID: 0x1234, PID: 0x0001})
	if !errors.Is(err, ErrIncompatibleVendor) {
		t.Errorf("got %v, want ErrIncompatibleVendor", err)
	}
}

func TestValidateAccessoryPair(t *testing.T) {
	err := Validate(Target{VID: AccessoryVendor, PID: 0x2d01})
	if !errors.Is(err, ErrTargetIsAccessory) {
		t.Errorf("got %v, want ErrTargetIsAccessory", err)
	}
}

func TestValidateGoogleNonAccessoryPID(t *testing.T) {
	// the accessory vendor with a regular product id is a normal phone
	if err := Validate(Target{VID: AccessoryVendor, PID: 0x4ee2}); err != nil {
		t.Errorf("pixel target rejected: %v", err)
	}
}

func TestIdentityStringOrder(t *testing.T) {
	id := Identity{
		Manufacturer: "m", Model: "mo", Description: "d",
		Version: "v", URI: "u", Serial: "s",
	}
	want := []string{"m", "mo", "d", "v", "u", "s"}
	got := id.strings()
	if len(got) != len(want) {
		t.Fatalf("got %d strings, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func endpoint(addr gousb.EndpointAddress, num int, in bool) gousb.EndpointDesc {
	dir := gousb.EndpointDirectionOut
	if in {
		dir = gousb.EndpointDirectionIn
	}
	return gousb.EndpointDesc{Address: addr, Number: num, Direction: dir, TransferType: gousb.TransferTypeBulk}
}

func TestPickEndpoints(t *testing.T) {
	s := gousb.InterfaceSetting{Endpoints: map[gousb.EndpointAddress]gousb.EndpointDesc{
		0x81: endpoint(0x81, 1, true),
		0x02: endpoint(0x02, 2, false),
	}}
	in, out, err := pickEndpoints(s)
	if err != nil {
		t.Fatal(err)
	}
	if in.Number != 1 || out.Number != 2 {
		t.Errorf("picked IN %d OUT %d, want IN 1 OUT 2", in.Number, out.Number)
	}
}

func TestPickEndpointsFirstOfEach(t *testing.T) {
	s := gousb.InterfaceSetting{Endpoints: map[gousb.EndpointAddress]gousb.EndpointDesc{
		0x81: endpoint(0x81, 1, true),
		0x83: endpoint(0x83, 3, true),
		0x02: endpoint(0x02, 2, false),
		0x04: endpoint(0x04, 4, false),
	}}
	in, out, err := pickEndpoints(s)
	if err != nil {
		t.Fatal(err)
	}
	if in.Address != 0x81 || out.Address != 0x02 {
		t.Errorf("picked IN %s OUT %s, want lowest addresses", in.Address, out.Address)
	}
}

func TestPickEndpointsMissingOut(t *testing.T) {
	s := gousb.InterfaceSetting{Endpoints: map[gousb.EndpointAddress]gousb.EndpointDesc{
		0x81: endpoint(0x81, 1, true),
	}}
	_, _, err := pickEndpoints(s)
	if !errors.Is(err, ErrEndpointsMissing) {
		t.Errorf("got %v, want ErrEndpointsMissing", err)
	}
}

/*Package aoa manages the USB side of the Android Open Accessory bridge:
finding and opening a compatible device, driving the vendor control-transfer
handshake that flips it into accessory mode, rediscovering it after
re-enumeration, and claiming the bulk endpoint pair on interface 0.
*/
package aoa

import (
	"errors"

	"github.com/google/gousb"
)

// AOA vendor control requests, issued on the default endpoint with
// bmRequestType vendor|device.
const (
	reqGetProtocol    = 51
	reqSendString     = 52
	reqStartAccessory = 53
	reqEnableAudio    = 58
)

// AccessoryVendor is the vendor ID a device re-enumerates under once it is
// in accessory mode.
const AccessoryVendor gousb.ID = 0x18d1

// AccessoryProducts are the product IDs of accessory mode, covering the
// accessory/audio/adb combinations.
var AccessoryProducts = map[gousb.ID]bool{
	0x2d00: true,
	0x2d01: true,
	0x2d02: true,
	0x2d03: true,
	0x2d04: true,
	0x2d05: true,
}

// CompatibleVendors are vendor IDs of known Android device makers, matched
// when the caller does not pin a (vid, pid) pair.
var CompatibleVendors = map[gousb.ID]bool{
	0x0409: true, // NEC
	0x0471: true, // Philips
	0x0482: true, // Kyocera
	0x0489: true, // Foxconn
	0x04c5: true, // Fujitsu
	0x04da: true, // Panasonic
	0x04dd: true, // Sharp
	0x04e8: true, // Samsung
	0x0502: true, // Acer
	0x05c6: true, // Qualcomm
	0x091e: true, // Garmin-Asus
	0x0930: true, // Toshiba
	0x0955: true, // NVIDIA
	0x0b05: true, // ASUS
	0x0bb4: true, // HTC
	0x0fce: true, // Sony Ericsson
	0x1004: true, // LG
	0x109b: true, // Hisense
	0x10a9: true, // Pantech
	0x12d1: true, // Huawei
	0x17ef: true, // Lenovo
	0x18d1: true, // Google
	0x19d2: true, // ZTE
	0x1d4d: true, // Pegatron
	0x22b8: true, // Motorola
	0x2340: true, // Teleepoch
	0x2717: true, // Xiaomi
	0x2a70: true, // OnePlus
	0x413c: true, // Dell
}

var (
	// ErrDeviceUnavailable is generated when no matching device opens after
	// the retry budget is exhausted.
	ErrDeviceUnavailable = errors.New("no compatible device available")

	// ErrModeSwitchFailed is generated when the handshake completes but the
	// device does not re-enumerate with an accessory product ID.
	ErrModeSwitchFailed = errors.New("device did not re-enumerate in accessory mode")

	// ErrEndpointsMissing is generated when interface 0 lacks a bulk IN or
	// OUT endpoint.
	ErrEndpointsMissing = errors.New("accessory interface is missing a bulk endpoint")

	// ErrIncompatibleVendor is generated by Validate for a vendor ID outside
	// the compatible table.
	ErrIncompatibleVendor = errors.New("vendor id is not a compatible Android device")

	// ErrTargetIsAccessory is generated by Validate when the requested pair
	// is already an accessory identity; the device's standard IDs must be
	// given instead.
	ErrTargetIsAccessory = errors.New("requested vid:pid is an accessory identity, use the device's standard ids")
)

// Identity holds the six AOA identity strings sent during the handshake,
// in wIndex order.
type Identity struct {
	Manufacturer string `yaml:"Manufacturer" koanf:"manufacturer"`
	Model        string `yaml:"Model" koanf:"model"`
	Description  string `yaml:"Description" koanf:"description"`
	Version      string `yaml:"Version" koanf:"version"`
	URI          string `yaml:"URI" koanf:"uri"`
	Serial       string `yaml:"Serial" koanf:"serial"`
}

// DefaultIdentity returns the identity this bridge announces by default.
func DefaultIdentity() Identity {
	return Identity{
		Manufacturer: "kaoqibutaitou",
		Model:        "aoa-port-forward",
		Description:  "Android accessory TCP port forwarder",
		Version:      "1.0",
		URI:          "https://github.com/kaoqibutaitou/aoa-port-forward",
		Serial:       "0000000000000001",
	}
}

// strings returns the identity values in wIndex order 0..5.
func (id Identity) strings() []string {
	return []string{id.Manufacturer, id.Model, id.Description, id.Version, id.URI, id.Serial}
}

// Target pins the device to open.  A nil Target matches any device from a
// compatible vendor.
type Target struct {
	VID gousb.ID
	PID gousb.ID
}

// Validate applies the CLI rules to a requested target: the vendor must be
// in the compatible table and the pair must not name an accessory identity.
func Validate(t Target) error {
	if !CompatibleVendors[t.VID] {
		return ErrIncompatibleVendor
	}
	if t.VID == AccessoryVendor && AccessoryProducts[t.PID] {
		return ErrTargetIsAccessory
	}
	return nil
}

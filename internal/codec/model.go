package codec

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidMAC indicates a MAC byte slice was not exactly 6 bytes long.
var ErrInvalidMAC = errors.New("codec: invalid mac address")

// MAC is a 6-byte Ethernet address, the scale's stable identifier.
type MAC [6]byte

// ParseMAC validates a raw 6-byte slice and returns a MAC.
func ParseMAC(raw []byte) (MAC, error) {
	if len(raw) != 6 {
		return MAC{}, fmt.Errorf("%w: expected 6 bytes, got %d", ErrInvalidMAC, len(raw))
	}
	var mac MAC
	copy(mac[:], raw)
	return mac, nil
}

// String renders the MAC as canonical colon-separated uppercase hex.
func (m MAC) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", m[0], m[1], m[2], m[3], m[4], m[5])
}

// Serial renders the MAC as lowercase hex with no separators.
func (m MAC) Serial() string {
	return strings.ToLower(fmt.Sprintf("%02x%02x%02x%02x%02x%02x", m[0], m[1], m[2], m[3], m[4], m[5]))
}

// IsZero reports whether the MAC is all-zero bytes.
func (m MAC) IsZero() bool {
	for _, b := range m {
		if b != 0 {
			return false
		}
	}
	return true
}

// IsBroadcast reports whether the MAC is all-0xFF bytes.
func (m MAC) IsBroadcast() bool {
	for _, b := range m {
		if b != 0xFF {
			return false
		}
	}
	return true
}

// Measurement is a single decoded weight/body-composition reading.
type Measurement struct {
	MeasurementID uint32
	Impedance     uint16
	WeightGrams   uint32
	Timestamp     uint32
	UserSlot      uint8
	FatRaw1       uint16
	FatRaw2       uint16
	Covariance    uint16
}

// IsGuest reports whether the measurement was taken by a guest (slot 0).
func (m Measurement) IsGuest() bool {
	return m.UserSlot == 0
}

// BodyFatPercent returns the derived body-fat percentage, or false if
// neither raw reading is available or the impedance is zero.
func (m Measurement) BodyFatPercent() (float32, bool) {
	if (m.FatRaw1 == 0 && m.FatRaw2 == 0) || m.Impedance == 0 {
		return 0, false
	}
	return (float32(m.FatRaw1) + float32(m.FatRaw2)) / 2.0 / 10.0, true
}

// WeightKilograms returns the measurement's weight in kilograms.
func (m Measurement) WeightKilograms() float64 {
	return float64(m.WeightGrams) / 1000.0
}

// WeightPounds returns the measurement's weight in pounds.
func (m Measurement) WeightPounds() float64 {
	return float64(m.WeightGrams) / 1000.0 * 2.20462
}

// UploadFrame is a fully decoded scale upload request.
type UploadFrame struct {
	ProtocolVersion  uint8
	HeaderFirmware   uint8
	BatteryPercent   uint8
	MACAddress       MAC
	AuthCode         [16]byte
	FirmwareVersion  uint8
	ScaleTimestamp   uint32
	DeclaredCount    uint16
	ReservedMetadata [9]byte
	Measurements     []Measurement
	CRCMismatch      bool
	Truncated        bool
	RawBytes         []byte
}

// AuthCodeHex renders the authorization code as lowercase hex.
func (f UploadFrame) AuthCodeHex() string {
	return fmt.Sprintf("%x", f.AuthCode[:])
}

// WeightUnit is the scale's display unit preference, as transmitted
// in the response frame's unit byte.
type WeightUnit uint8

const (
	// UnitKilograms displays weight in kilograms.
	UnitKilograms WeightUnit = 0
	// UnitPounds displays weight in pounds.
	UnitPounds WeightUnit = 1
	// UnitStones displays weight in stones.
	UnitStones WeightUnit = 2
)

// ParseWeightUnit maps a configuration string to a WeightUnit.
func ParseWeightUnit(value string) (WeightUnit, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "kg", "":
		return UnitKilograms, nil
	case "lbs", "lb", "pounds":
		return UnitPounds, nil
	case "stones", "stone", "st":
		return UnitStones, nil
	default:
		return 0, fmt.Errorf("codec: unknown weight unit %q", value)
	}
}

// ProfileSlot is one entry in the response's 8-slot user profile list.
type ProfileSlot struct {
	Occupied    bool
	Slot        uint8
	HeightMM    uint16
	Age         uint8
	Gender      uint8
	MinWeightG  uint32
	MaxWeightG  uint32
}

// ResponseFrame is the fully-specified scale upload response.
type ResponseFrame struct {
	ServerTimestamp uint32
	Unit            WeightUnit
	Status          uint8
	Profiles        [8]ProfileSlot
}

// StatusOK and StatusRetry are the only documented response status
// byte values (see spec design notes: "do not emit nonzero without a
// captured precedent").
const (
	StatusOK    uint8 = 0
	StatusRetry uint8 = 1
)

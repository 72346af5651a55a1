package codec

import (
	"encoding/binary"
	"testing"
)

func buildUploadFrame(t *testing.T, measurements []Measurement) []byte {
	t.Helper()
	buf := make([]byte, headerSize+metadataSize+measurementSize*len(measurements))
	buf[0] = 3
	buf[headerFirmwareOffset] = 39
	buf[headerBatteryOffset] = 85
	// Byte 14 is shared between the MAC's last byte and the auth
	// code's first byte; write the auth code first so the MAC wins,
	// matching Encode's ordering.
	authCode := []byte("0123456789ABCDEF")
	copy(buf[headerAuthCodeOffset:headerAuthCodeEnd], authCode)
	mac := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	copy(buf[headerMACOffset:headerMACEnd], mac)

	buf[metaFirmwareOffset] = 39
	binary.BigEndian.PutUint32(buf[metaTimestampOffset:metaTimestampOffset+4], 1705315840)
	binary.BigEndian.PutUint16(buf[metaCountOffset:metaCountOffset+2], uint16(len(measurements)))

	offset := measurementsOffset
	for _, m := range measurements {
		copy(buf[offset:offset+measurementSize], EncodeMeasurement(m))
		offset += measurementSize
	}

	return AppendCRC(buf)
}

func TestDecodeFreshScaleOneMeasurement(t *testing.T) {
	data := buildUploadFrame(t, []Measurement{{
		MeasurementID: 1,
		Impedance:     520,
		WeightGrams:   75300,
		Timestamp:     1705315840,
		UserSlot:      0,
		FatRaw1:       370,
		FatRaw2:       370,
	}})

	if len(data) != 80 {
		t.Fatalf("expected 80-byte frame, got %d", len(data))
	}

	frame, err := Decode(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame.CRCMismatch {
		t.Fatalf("expected valid crc")
	}
	if frame.MACAddress.String() != "AA:BB:CC:DD:EE:FF" {
		t.Fatalf("unexpected mac: %s", frame.MACAddress.String())
	}
	if len(frame.Measurements) != 1 {
		t.Fatalf("expected 1 measurement, got %d", len(frame.Measurements))
	}
	got := frame.Measurements[0]
	if got.WeightKilograms() != 75.3 {
		t.Fatalf("expected 75.3 kg, got %v", got.WeightKilograms())
	}
	fatPercent, ok := got.BodyFatPercent()
	if !ok || fatPercent != 37.0 {
		t.Fatalf("expected 37.0%% body fat, got %v (ok=%v)", fatPercent, ok)
	}
}

func TestBodyFatPercentDoesNotOverflowOnLargeRaws(t *testing.T) {
	m := Measurement{Impedance: 500, FatRaw1: 60000, FatRaw2: 60000}
	fatPercent, ok := m.BodyFatPercent()
	if !ok {
		t.Fatalf("expected a body fat percent")
	}
	if fatPercent != 6000 {
		t.Fatalf("expected 6000%%, got %v", fatPercent)
	}
}

func TestDecodeShortFrame(t *testing.T) {
	_, err := Decode(make([]byte, 10))
	decodeErr, ok := err.(*DecodeError)
	if !ok || decodeErr.Kind != KindShortFrame {
		t.Fatalf("expected short_frame error, got %v", err)
	}
}

func TestDecodeBadProtocolVersion(t *testing.T) {
	data := buildUploadFrame(t, nil)
	data[0] = 7
	// CRC no longer matches after mutating the header, but protocol
	// version is checked before CRC, so this should still fail with
	// bad_protocol_version rather than crc_mismatch.
	_, err := Decode(data)
	decodeErr, ok := err.(*DecodeError)
	if !ok || decodeErr.Kind != KindBadProtocolVersion {
		t.Fatalf("expected bad_protocol_version error, got %v", err)
	}
}

func TestDecodeBadMeasurementCount(t *testing.T) {
	data := buildUploadFrame(t, nil)
	binary.BigEndian.PutUint16(data[metaCountOffset:metaCountOffset+2], 65)
	_, err := Decode(data)
	decodeErr, ok := err.(*DecodeError)
	if !ok || decodeErr.Kind != KindBadMeasurementCount {
		t.Fatalf("expected bad_measurement_count error, got %v", err)
	}
}

func TestDecodeCRCMismatchIsNonFatal(t *testing.T) {
	data := buildUploadFrame(t, []Measurement{{MeasurementID: 1, WeightGrams: 75300}})
	data[len(data)-1] ^= 0xFF

	frame, err := Decode(data)
	if err != nil {
		t.Fatalf("expected crc mismatch to be non-fatal, got error: %v", err)
	}
	if !frame.CRCMismatch {
		t.Fatalf("expected CRCMismatch to be set")
	}
	if len(frame.Measurements) != 1 {
		t.Fatalf("expected measurement to still be decoded")
	}
}

func TestDecodeZeroMeasurements(t *testing.T) {
	data := buildUploadFrame(t, nil)
	frame, err := Decode(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frame.Measurements) != 0 {
		t.Fatalf("expected 0 measurements")
	}
}

func TestDecodeTruncatedMeasurements(t *testing.T) {
	// Declare 2 measurements in metadata but only supply bytes for 1,
	// then append CRC directly over the short buffer.
	body := make([]byte, headerSize+metadataSize+measurementSize)
	body[0] = 3
	copy(body[headerMACOffset:headerMACEnd], []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF})
	binary.BigEndian.PutUint16(body[metaCountOffset:metaCountOffset+2], 2)
	copy(body[measurementsOffset:measurementsOffset+measurementSize], EncodeMeasurement(Measurement{MeasurementID: 1}))
	data := AppendCRC(body)

	frame, err := Decode(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !frame.Truncated {
		t.Fatalf("expected Truncated to be set")
	}
	if len(frame.Measurements) != 1 {
		t.Fatalf("expected 1 fully-fitting measurement, got %d", len(frame.Measurements))
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := UploadFrame{
		ProtocolVersion: 3,
		HeaderFirmware:  39,
		BatteryPercent:  85,
		MACAddress:      MAC{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
		FirmwareVersion: 39,
		ScaleTimestamp:  1705315840,
		Measurements: []Measurement{
			{MeasurementID: 1, Impedance: 520, WeightGrams: 75300, Timestamp: 1705315840, FatRaw1: 370, FatRaw2: 370},
		},
	}
	encoded := Encode(original)
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.MACAddress != original.MACAddress {
		t.Fatalf("mac mismatch after round trip")
	}
	if len(decoded.Measurements) != 1 || decoded.Measurements[0].MeasurementID != 1 {
		t.Fatalf("measurement mismatch after round trip: %+v", decoded.Measurements)
	}
}

func TestExtractMACBestEffort(t *testing.T) {
	data := buildUploadFrame(t, nil)
	mac, ok := ExtractMACBestEffort(data)
	if !ok {
		t.Fatalf("expected mac extraction to succeed")
	}
	if mac.String() != "AA:BB:CC:DD:EE:FF" {
		t.Fatalf("unexpected mac: %s", mac.String())
	}

	_, ok = ExtractMACBestEffort(make([]byte, 4))
	if ok {
		t.Fatalf("expected extraction to fail for too-short data")
	}
}

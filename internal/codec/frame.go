package codec

import "encoding/binary"

const (
	headerSize             = 30
	metadataSize           = 16
	measurementSize        = 32
	crcSize                = 2
	minFrameSize           = headerSize + metadataSize + crcSize
	maxMeasurementCount    = 64
	headerFirmwareOffset   = 2
	headerBatteryOffset    = 8
	headerMACOffset        = 9
	headerMACEnd           = 15
	headerAuthCodeOffset   = 14
	headerAuthCodeEnd      = 30
	metaFirmwareOffset     = headerSize
	metaTimestampOffset    = headerSize + 1
	metaCountOffset        = headerSize + 5
	metaReservedOffset     = headerSize + 7
	measurementsOffset     = headerSize + metadataSize
)

// Decode parses a binary upload frame.
//
// crc_mismatch never aborts decode (§4.1): it is recorded on the
// returned frame's CRCMismatch field. A short measurement array is
// likewise not fatal here: Decode reads as many complete 32-byte
// measurements as fit and sets Truncated so the validator can flag
// truncated_measurements.
func Decode(data []byte) (UploadFrame, error) {
	if len(data) < minFrameSize {
		return UploadFrame{}, newDecodeError(KindShortFrame, "fewer than 48 bytes")
	}

	protocolVersion := data[0]
	if protocolVersion != 3 {
		return UploadFrame{}, newDecodeError(KindBadProtocolVersion, "only protocol version 3 is supported")
	}

	mac, err := ParseMAC(data[headerMACOffset:headerMACEnd])
	if err != nil {
		return UploadFrame{}, newDecodeError(KindShortFrame, err.Error())
	}

	var authCode [16]byte
	copy(authCode[:], data[headerAuthCodeOffset:headerAuthCodeEnd])

	declaredCount := binary.BigEndian.Uint16(data[metaCountOffset : metaCountOffset+2])
	if declaredCount > maxMeasurementCount {
		return UploadFrame{}, newDecodeError(KindBadMeasurementCount, "declared count exceeds 64")
	}

	var reserved [9]byte
	copy(reserved[:], data[metaReservedOffset:measurementsOffset])

	measurements := make([]Measurement, 0, declaredCount)
	truncated := false
	offset := measurementsOffset
	for i := uint16(0); i < declaredCount; i++ {
		if offset+measurementSize > len(data)-crcSize {
			truncated = true
			break
		}
		measurements = append(measurements, decodeMeasurement(data[offset : offset+measurementSize]))
		offset += measurementSize
	}

	crcMismatch := false
	if len(data) >= crcSize {
		payload := data[:len(data)-crcSize]
		expected := binary.BigEndian.Uint16(data[len(data)-crcSize:])
		if CRC16XMODEM(payload) != expected {
			crcMismatch = true
		}
	}

	return UploadFrame{
		ProtocolVersion:  protocolVersion,
		HeaderFirmware:   data[headerFirmwareOffset],
		BatteryPercent:   data[headerBatteryOffset],
		MACAddress:       mac,
		AuthCode:         authCode,
		FirmwareVersion:  data[metaFirmwareOffset],
		ScaleTimestamp:   binary.BigEndian.Uint32(data[metaTimestampOffset : metaTimestampOffset+4]),
		DeclaredCount:    declaredCount,
		ReservedMetadata: reserved,
		Measurements:     measurements,
		CRCMismatch:      crcMismatch,
		Truncated:        truncated,
		RawBytes:         data,
	}, nil
}

func decodeMeasurement(b []byte) Measurement {
	return Measurement{
		MeasurementID: binary.BigEndian.Uint32(b[0:4]),
		Impedance:     binary.BigEndian.Uint16(b[4:6]),
		WeightGrams:   binary.BigEndian.Uint32(b[6:10]),
		Timestamp:     binary.BigEndian.Uint32(b[10:14]),
		UserSlot:      b[14],
		FatRaw1:       binary.BigEndian.Uint16(b[15:17]),
		FatRaw2:       binary.BigEndian.Uint16(b[17:19]),
		Covariance:    binary.BigEndian.Uint16(b[19:21]),
	}
}

// ExtractMACBestEffort returns the MAC embedded in a raw upload body
// without requiring the frame to otherwise decode, for the raw-upload
// audit row the ingestion pipeline writes before parsing.
func ExtractMACBestEffort(data []byte) (MAC, bool) {
	if len(data) < headerMACEnd {
		return MAC{}, false
	}
	mac, err := ParseMAC(data[headerMACOffset:headerMACEnd])
	if err != nil {
		return MAC{}, false
	}
	return mac, true
}

// EncodeMeasurement serializes a single measurement back to its
// 32-byte wire representation (11 reserved trailing bytes are
// zero-filled since Measurement does not retain them).
func EncodeMeasurement(m Measurement) []byte {
	b := make([]byte, measurementSize)
	binary.BigEndian.PutUint32(b[0:4], m.MeasurementID)
	binary.BigEndian.PutUint16(b[4:6], m.Impedance)
	binary.BigEndian.PutUint32(b[6:10], m.WeightGrams)
	binary.BigEndian.PutUint32(b[10:14], m.Timestamp)
	b[14] = m.UserSlot
	binary.BigEndian.PutUint16(b[15:17], m.FatRaw1)
	binary.BigEndian.PutUint16(b[17:19], m.FatRaw2)
	binary.BigEndian.PutUint16(b[19:21], m.Covariance)
	return b
}

// Encode serializes an UploadFrame back to its wire representation.
// Used by round-trip tests; reserved header bytes 1,3-7 are zero-filled
// since UploadFrame does not retain them individually.
func Encode(f UploadFrame) []byte {
	buf := make([]byte, headerSize+metadataSize+measurementSize*len(f.Measurements))
	buf[0] = f.ProtocolVersion
	buf[headerFirmwareOffset] = f.HeaderFirmware
	buf[headerBatteryOffset] = f.BatteryPercent
	// Byte 14 is shared between the MAC's last byte and the auth
	// code's first byte (real frames guarantee MAC[5]==AuthCode[0]).
	// Write the auth code first so the MAC, the authoritative
	// identity, always wins that byte.
	copy(buf[headerAuthCodeOffset:headerAuthCodeEnd], f.AuthCode[:])
	copy(buf[headerMACOffset:headerMACEnd], f.MACAddress[:])

	buf[metaFirmwareOffset] = f.FirmwareVersion
	binary.BigEndian.PutUint32(buf[metaTimestampOffset:metaTimestampOffset+4], f.ScaleTimestamp)
	binary.BigEndian.PutUint16(buf[metaCountOffset:metaCountOffset+2], uint16(len(f.Measurements)))
	copy(buf[metaReservedOffset:measurementsOffset], f.ReservedMetadata[:])

	offset := measurementsOffset
	for _, m := range f.Measurements {
		copy(buf[offset:offset+measurementSize], EncodeMeasurement(m))
		offset += measurementSize
	}

	return AppendCRC(buf)
}

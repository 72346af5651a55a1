package codec

import "encoding/binary"

const (
	profileBlockSize  = 13
	responseBodySize  = 4 + 1 + 1 + profileBlockSize*8
	trailerByteHigh   = 0x66
	trailerByteLow    = 0x00
)

// EncodeResponse serializes a ResponseFrame to its wire representation:
// body, then big-endian CRC-16/XMODEM, then the 0x66 0x00 trailer.
func EncodeResponse(r ResponseFrame) []byte {
	buf := make([]byte, responseBodySize)
	binary.BigEndian.PutUint32(buf[0:4], r.ServerTimestamp)
	buf[4] = byte(r.Unit)
	buf[5] = r.Status

	offset := 6
	for _, profile := range r.Profiles {
		encodeProfileSlot(buf[offset:offset+profileBlockSize], profile)
		offset += profileBlockSize
	}

	buf = AppendCRC(buf)
	buf = append(buf, trailerByteHigh, trailerByteLow)
	return buf
}

func encodeProfileSlot(b []byte, p ProfileSlot) {
	if !p.Occupied {
		for i := range b {
			b[i] = 0
		}
		return
	}
	b[0] = p.Slot
	binary.BigEndian.PutUint16(b[1:3], p.HeightMM)
	b[3] = p.Age
	b[4] = p.Gender
	binary.BigEndian.PutUint32(b[5:9], p.MinWeightG)
	binary.BigEndian.PutUint32(b[9:13], p.MaxWeightG)
}

// DecodeResponse parses a response frame previously produced by
// EncodeResponse. Used by round-trip tests.
func DecodeResponse(data []byte) (ResponseFrame, error) {
	if len(data) != responseBodySize+2+2 {
		return ResponseFrame{}, newDecodeError(KindShortFrame, "unexpected response length")
	}
	if data[len(data)-2] != trailerByteHigh || data[len(data)-1] != trailerByteLow {
		return ResponseFrame{}, newDecodeError(KindShortFrame, "missing trailer")
	}

	var r ResponseFrame
	r.ServerTimestamp = binary.BigEndian.Uint32(data[0:4])
	r.Unit = WeightUnit(data[4])
	r.Status = data[5]

	offset := 6
	for i := 0; i < 8; i++ {
		r.Profiles[i] = decodeProfileSlot(data[offset : offset+profileBlockSize])
		offset += profileBlockSize
	}
	return r, nil
}

func decodeProfileSlot(b []byte) ProfileSlot {
	allZero := true
	for _, v := range b {
		if v != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return ProfileSlot{}
	}
	return ProfileSlot{
		Occupied:   true,
		Slot:       b[0],
		HeightMM:   binary.BigEndian.Uint16(b[1:3]),
		Age:        b[3],
		Gender:     b[4],
		MinWeightG: binary.BigEndian.Uint32(b[5:9]),
		MaxWeightG: binary.BigEndian.Uint32(b[9:13]),
	}
}

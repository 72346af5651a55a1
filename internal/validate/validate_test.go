package validate

import (
	"testing"
	"time"

	"github.com/fitaria/scale-api/internal/codec"
)

func TestFrameSkipsOutOfRangeWeightButKeepsOthers(t *testing.T) {
	now := time.Unix(1705315840, 0).UTC()
	frame := codec.UploadFrame{
		MACAddress:    codec.MAC{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
		DeclaredCount: 2,
		Measurements: []codec.Measurement{
			{MeasurementID: 2, WeightGrams: 80000, Timestamp: uint32(now.Unix())},
			{MeasurementID: 3, WeightGrams: 0, Timestamp: uint32(now.Unix())},
		},
	}

	result := Frame(frame, now)
	if len(result.Measurements) != 1 {
		t.Fatalf("expected 1 surviving measurement, got %d", len(result.Measurements))
	}
	if result.Measurements[0].MeasurementID != 2 {
		t.Fatalf("expected measurement 2 to survive")
	}

	found := false
	for _, issue := range result.Issues {
		if issue.Kind == KindWeightOutOfRange {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected weight_out_of_range issue")
	}
}

func TestFrameBoundaryWeights(t *testing.T) {
	now := time.Unix(1705315840, 0).UTC()
	frame := codec.UploadFrame{
		MACAddress:    codec.MAC{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
		DeclaredCount: 2,
		Measurements: []codec.Measurement{
			{MeasurementID: 1, WeightGrams: 1000, Timestamp: uint32(now.Unix())},
			{MeasurementID: 2, WeightGrams: 400000, Timestamp: uint32(now.Unix())},
		},
	}
	result := Frame(frame, now)
	if len(result.Measurements) != 2 {
		t.Fatalf("expected both boundary weights accepted, got %d", len(result.Measurements))
	}
}

func TestFrameFlagsBadMAC(t *testing.T) {
	now := time.Unix(1705315840, 0).UTC()
	frame := codec.UploadFrame{MACAddress: codec.MAC{}}
	result := Frame(frame, now)
	if len(result.Issues) == 0 || result.Issues[0].Kind != KindBadMAC {
		t.Fatalf("expected bad_mac issue, got %+v", result.Issues)
	}
}

func TestFrameFlagsSuspectTimestamp(t *testing.T) {
	now := time.Unix(1705315840, 0).UTC()
	frame := codec.UploadFrame{
		MACAddress:    codec.MAC{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
		DeclaredCount: 1,
		Measurements: []codec.Measurement{
			{MeasurementID: 1, WeightGrams: 80000, Timestamp: 1000000}, // before 2015
		},
	}
	result := Frame(frame, now)
	if len(result.Measurements) != 1 {
		t.Fatalf("measurement with suspect timestamp should still be retained")
	}
	found := false
	for _, issue := range result.Issues {
		if issue.Kind == KindTimestampSuspect {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected timestamp_suspect issue")
	}
}

func TestClampBattery(t *testing.T) {
	now := time.Now()
	frame := codec.UploadFrame{BatteryPercent: 250, MACAddress: codec.MAC{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}}
	result := Frame(frame, now)
	if result.BatteryPercent != 100 {
		t.Fatalf("expected clamped battery of 100, got %d", result.BatteryPercent)
	}
}

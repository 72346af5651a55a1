// Package validate applies bounds, range, and structural checks to
// decoded upload frames. It never rejects a frame outright; instead
// it annotates issues for the ingestion pipeline to record and skips
// individual measurements that fall outside acceptable ranges.
package validate

import (
	"fmt"
	"time"

	"github.com/fitaria/scale-api/internal/codec"
)

// IssueKind enumerates validation issue categories.
type IssueKind string

const (
	// KindBadMAC indicates the MAC address was all-zero or broadcast.
	KindBadMAC IssueKind = "bad_mac"
	// KindWeightOutOfRange indicates a measurement's weight fell
	// outside [1000, 400000] grams.
	KindWeightOutOfRange IssueKind = "weight_out_of_range"
	// KindTimestampSuspect indicates a measurement's timestamp fell
	// outside the plausible window.
	KindTimestampSuspect IssueKind = "timestamp_suspect"
	// KindTruncatedMeasurements indicates fewer measurements were
	// present than the frame declared.
	KindTruncatedMeasurements IssueKind = "truncated_measurements"
)

const (
	minWeightGrams uint32 = 1000
	maxWeightGrams uint32 = 400000
	minTimestampUnix int64 = 1420070400 // 2015-01-01T00:00:00Z
	timestampFutureSlack = 24 * time.Hour
)

// Issue is a single validation finding attached to a frame or
// measurement.
type Issue struct {
	Kind   IssueKind
	Detail string
}

func (i Issue) String() string {
	if i.Detail == "" {
		return string(i.Kind)
	}
	return fmt.Sprintf("%s: %s", i.Kind, i.Detail)
}

// Result is the outcome of validating a decoded upload frame: the
// measurements that survived (in original order) plus every issue
// encountered, frame-level and per-measurement alike.
type Result struct {
	BatteryPercent uint8
	Measurements   []codec.Measurement
	Issues         []Issue
}

// Frame validates a decoded upload frame against the bounds in
// spec §4.2, clamping battery percent and filtering out-of-range
// measurements while retaining everything else.
func Frame(frame codec.UploadFrame, now time.Time) Result {
	result := Result{
		BatteryPercent: clampBattery(frame.BatteryPercent),
		Measurements:   make([]codec.Measurement, 0, len(frame.Measurements)),
	}

	if frame.MACAddress.IsZero() || frame.MACAddress.IsBroadcast() {
		result.Issues = append(result.Issues, Issue{Kind: KindBadMAC, Detail: frame.MACAddress.String()})
	}

	if frame.Truncated || len(frame.Measurements) != int(frame.DeclaredCount) {
		result.Issues = append(result.Issues, Issue{
			Kind:   KindTruncatedMeasurements,
			Detail: fmt.Sprintf("declared %d, decoded %d", frame.DeclaredCount, len(frame.Measurements)),
		})
	}

	maxTimestamp := uint32(now.Add(timestampFutureSlack).Unix())
	for _, m := range frame.Measurements {
		if m.WeightGrams < minWeightGrams || m.WeightGrams > maxWeightGrams {
			result.Issues = append(result.Issues, Issue{
				Kind:   KindWeightOutOfRange,
				Detail: fmt.Sprintf("measurement %d: %d g", m.MeasurementID, m.WeightGrams),
			})
			continue
		}

		if int64(m.Timestamp) < minTimestampUnix || m.Timestamp > maxTimestamp {
			result.Issues = append(result.Issues, Issue{
				Kind:   KindTimestampSuspect,
				Detail: fmt.Sprintf("measurement %d: timestamp %d", m.MeasurementID, m.Timestamp),
			})
		}

		result.Measurements = append(result.Measurements, m)
	}

	return result
}

func clampBattery(percent uint8) uint8 {
	if percent > 100 {
		return 100
	}
	return percent
}

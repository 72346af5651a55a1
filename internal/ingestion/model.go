package ingestion

import "time"

// Measurement is a persisted scale reading. Weight is canonical in
// grams; body-fat percent and unit conversions are derived at read
// time and never stored.
type Measurement struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ScaleMAC      string    `gorm:"column:scale_mac;size:17;not null;uniqueIndex:idx_measurements_mac_id"`
	MeasurementID uint32    `gorm:"column:measurement_id;not null;uniqueIndex:idx_measurements_mac_id"`
	WeightGrams   uint32    `gorm:"column:weight_grams;not null"`
	Impedance     uint16    `gorm:"column:impedance;not null;default:0"`
	FatRaw1       uint16    `gorm:"column:fat_raw_1;not null;default:0"`
	FatRaw2       uint16    `gorm:"column:fat_raw_2;not null;default:0"`
	Covariance    uint16    `gorm:"column:covariance;not null;default:0"`
	Timestamp     uint32    `gorm:"column:timestamp;not null"`
	UserSlot      uint8     `gorm:"column:user_slot;not null;default:0"`
	IsGuest       bool      `gorm:"column:is_guest;not null;default:false"`
	ReceivedAt    time.Time `gorm:"column:received_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Measurement) TableName() string { return "measurements" }

// MeasurementConflict records a re-upload of an existing (MAC, ID)
// pair whose bytes disagree with the original. The original always
// wins; this row exists purely for operator visibility.
type MeasurementConflict struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ScaleMAC      string    `gorm:"column:scale_mac;size:17;not null"`
	MeasurementID uint32    `gorm:"column:measurement_id;not null"`
	DetectedAt    time.Time `gorm:"column:detected_at;not null"`
	Detail        string    `gorm:"column:detail;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (MeasurementConflict) TableName() string { return "measurement_conflicts" }

// RawUpload is the verbatim record of one inbound /scale/upload
// request, kept regardless of parse outcome.
type RawUpload struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ScaleMAC     string    `gorm:"column:scale_mac;size:17;not null;default:''"`
	ReceivedAt   time.Time `gorm:"column:received_at;not null"`
	RequestBody  []byte    `gorm:"column:request_body;not null"`
	ResponseBody []byte    `gorm:"column:response_body"`
	ParseOK      bool      `gorm:"column:parse_ok;not null;default:false"`
	ErrorMessage string    `gorm:"column:error_message;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (RawUpload) TableName() string { return "raw_uploads" }

package registry

import "time"

// Scale is the persisted record of a scale device's identity.
type Scale struct {
	ID               int64     `gorm:"column:id;primaryKey;autoIncrement"`
	MACAddress       string    `gorm:"column:mac_address;size:17;not null;uniqueIndex:idx_scales_mac"`
	Serial           string    `gorm:"column:serial;size:12;not null;uniqueIndex:idx_scales_serial"`
	FirmwareVersion  uint8     `gorm:"column:firmware_version;not null;default:0"`
	ProtocolVersion  uint8     `gorm:"column:protocol_version;not null;default:0"`
	BatteryPercent   uint8     `gorm:"column:battery_percent;not null;default:0"`
	SSID             string    `gorm:"column:ssid;size:64;not null;default:''"`
	AuthCodeHex      string    `gorm:"column:auth_code_hex;size:32;not null;default:''"`
	AuthorizationTok string    `gorm:"column:authorization_token;size:64;not null;default:''"`
	FirstSeenAt      time.Time `gorm:"column:first_seen_at;not null"`
	LastSeenAt       time.Time `gorm:"column:last_seen_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Scale) TableName() string {
	return "scales"
}

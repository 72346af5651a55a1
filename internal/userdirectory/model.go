package userdirectory

import "time"

// Profile is a persisted user profile delivered to the scale in slot
// order. Deleting a profile sets Active to false and frees its slot;
// the unique index on scale_slot is scoped to active rows so a freed
// slot can be reused.
type Profile struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	DisplayName string    `gorm:"column:display_name;size:20;not null"`
	ScaleSlot   uint8     `gorm:"column:scale_slot;not null"`
	HeightMM    uint16    `gorm:"column:height_mm;not null"`
	Age         uint8     `gorm:"column:age;not null"`
	Gender      uint8     `gorm:"column:gender;not null;default:0"`
	MinWeightG  uint32    `gorm:"column:min_weight_g;not null"`
	MaxWeightG  uint32    `gorm:"column:max_weight_g;not null"`
	Active      bool      `gorm:"column:active;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Profile) TableName() string {
	return "users"
}

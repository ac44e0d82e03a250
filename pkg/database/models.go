package database

import (
	"time"

	"gorm.io/gorm"
)

// Sighting is one decoded advertisement from a nearby unit. Counters are
// nullable since older payload layouts carry fewer fields.
type Sighting struct {
	ID         uint   `gorm:"primarykey" json:"id"`
	Address    string `gorm:"index;size:32;not null" json:"address"`
	Name       string `gorm:"size:64" json:"name,omitempty"`
	RSSI       int    `json:"rssi"`
	Version    uint8  `gorm:"not null" json:"version"`
	Layout     uint8  `gorm:"not null" json:"layout"`
	PayloadHex string `gorm:"size:64;not null" json:"payload"`

	Handshakes  *uint16  `json:"handshakes,omitempty"`
	Points      *uint16  `json:"points,omitempty"`
	Epochs      *uint16  `json:"epochs,omitempty"`
	TrainEpochs *uint16  `json:"train_epochs,omitempty"`
	TravelerXP  *uint16  `json:"traveler_xp,omitempty"`
	CPUTemp     *float64 `json:"cpu_temp,omitempty"`
	BatteryPct  *uint8   `json:"battery,omitempty"`
	Charging    *bool    `json:"charging,omitempty"`

	AgeTitle      string `gorm:"size:64" json:"age_title,omitempty"`
	StrengthTitle string `gorm:"size:64" json:"strength_title,omitempty"`
	TravelerTitle string `gorm:"size:64" json:"traveler_title,omitempty"`
	FaceID        *uint8 `json:"face_id,omitempty"`
	Face          string `gorm:"size:32" json:"face,omitempty"`
	Mood          string `gorm:"size:32" json:"mood,omitempty"`

	SeenAt    time.Time `gorm:"index;not null" json:"seen_at"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for Sighting
func (Sighting) TableName() string {
	return "sightings"
}

// BeforeCreate fills timestamps the caller left empty
func (s *Sighting) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	if s.SeenAt.IsZero() {
		s.SeenAt = s.CreatedAt
	}
	return nil
}

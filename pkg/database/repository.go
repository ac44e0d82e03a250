package database

import (
	"encoding/hex"
	"time"

	"github.com/dbehnke/pwn-beacon/pkg/protocol"
	"github.com/dbehnke/pwn-beacon/pkg/scanner"
	"gorm.io/gorm"
)

// SightingRepository handles sighting database operations
type SightingRepository struct {
	db *gorm.DB
}

// NewSightingRepository creates a new sighting repository
func NewSightingRepository(db *gorm.DB) *SightingRepository {
	return &SightingRepository{db: db}
}

// Create adds a new sighting record
func (r *SightingRepository) Create(s *Sighting) error {
	return r.db.Create(s).Error
}

// HandleSighting stores every sighting the scanner accepts
func (r *SightingRepository) HandleSighting(s scanner.Sighting) error {
	return r.Create(SightingFromReading(s.Address, s.Name, s.RSSI, s.Payload, s.Reading, s.SeenAt))
}

// GetRecent retrieves the most recent N sightings
func (r *SightingRepository) GetRecent(limit int) ([]Sighting, error) {
	var sightings []Sighting
	err := r.db.Order("seen_at DESC").Limit(limit).Find(&sightings).Error
	return sightings, err
}

// GetRecentPaginated retrieves sightings with pagination
func (r *SightingRepository) GetRecentPaginated(page, perPage int) ([]Sighting, int64, error) {
	var sightings []Sighting
	var total int64

	if err := r.db.Model(&Sighting{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	err := r.db.Order("seen_at DESC").
		Offset(offset).
		Limit(perPage).
		Find(&sightings).Error

	return sightings, total, err
}

// GetByAddress retrieves sightings for one device, newest first
func (r *SightingRepository) GetByAddress(address string, limit int) ([]Sighting, error) {
	var sightings []Sighting
	err := r.db.Where("address = ?", scanner.NormalizeAddress(address)).
		Order("seen_at DESC").
		Limit(limit).
		Find(&sightings).Error
	return sightings, err
}

// DeleteOlderThan deletes sightings seen before the specified time
func (r *SightingRepository) DeleteOlderThan(before time.Time) (int64, error) {
	result := r.db.Where("seen_at < ?", before).Delete(&Sighting{})
	return result.RowsAffected, result.Error
}

// Count returns the total number of stored sightings
func (r *SightingRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&Sighting{}).Count(&count).Error
	return count, err
}

// SightingFromReading maps a decoded reading onto a row
func SightingFromReading(address, name string, rssi int, payload []byte, reading protocol.Reading, seenAt time.Time) *Sighting {
	s := &Sighting{
		Address:     scanner.NormalizeAddress(address),
		Name:        name,
		RSSI:        rssi,
		Version:     reading.Version,
		Layout:      reading.Layout,
		PayloadHex:  hex.EncodeToString(payload),
		Handshakes:  reading.Handshakes,
		Points:      reading.Points,
		Epochs:      reading.Epochs,
		TrainEpochs: reading.TrainEpochs,
		TravelerXP:  reading.TravelerXP,
		CPUTemp:     reading.CPUTemp,
		BatteryPct:  reading.BatteryPct,
		Charging:    reading.Charging,
		FaceID:      reading.FaceID,
		SeenAt:      seenAt,
	}
	s.AgeTitle = deref(reading.AgeTitle)
	s.StrengthTitle = deref(reading.StrengthTitle)
	s.TravelerTitle = deref(reading.TravelerTitle)
	s.Face = deref(reading.Face)
	s.Mood = deref(reading.Mood)
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

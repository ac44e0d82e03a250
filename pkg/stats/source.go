// Package stats gathers the counters a beacon advertises.
package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/dbehnke/pwn-beacon/pkg/face"
	"github.com/dbehnke/pwn-beacon/pkg/logger"
	"github.com/dbehnke/pwn-beacon/pkg/protocol"
)

// Source produces the record for the next advertising cycle. Implementations
// never fail: unreadable inputs contribute zero values.
type Source interface {
	Snapshot(ctx context.Context) protocol.StatRecord
}

// FileConfig names the files FileSource reads. Empty paths are skipped.
type FileConfig struct {
	AgeFile             string // JSON: handshakes, points, epochs, train_epochs|trainings
	TravelerFile        string // JSON: travel_xp
	CPUTempFile         string // sysfs thermal zone, millidegrees
	BatteryCapacityFile string // percent
	BatteryStatusFile   string // "Charging", "Discharging", ...
	FaceFile            string // current face glyph
}

// FileSource reads the pwnagotchi state files on every snapshot
type FileSource struct {
	cfg   FileConfig
	faces *face.Tracker
	log   *logger.Logger
}

// NewFileSource creates a file backed source. faces may be shared with
// other writers; when cfg.FaceFile is set it is refreshed on every snapshot.
func NewFileSource(cfg FileConfig, faces *face.Tracker, log *logger.Logger) *FileSource {
	if faces == nil {
		faces = &face.Tracker{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &FileSource{
		cfg:   cfg,
		faces: faces,
		log:   log.WithComponent("stats"),
	}
}

// Faces returns the tracker the source reads face codes from
func (s *FileSource) Faces() *face.Tracker {
	return s.faces
}

// Snapshot implements Source
func (s *FileSource) Snapshot(ctx context.Context) protocol.StatRecord {
	var rec protocol.StatRecord

	if age, err := readJSON(s.cfg.AgeFile); err != nil {
		s.skip("age", s.cfg.AgeFile, err)
	} else if age != nil {
		rec.Handshakes = intField(age, "handshakes")
		rec.Points = intField(age, "points")
		rec.Epochs = intField(age, "epochs")
		if _, ok := age["train_epochs"]; ok {
			rec.TrainEpochs = intField(age, "train_epochs")
		} else {
			rec.TrainEpochs = intField(age, "trainings")
		}
	}

	if trav, err := readJSON(s.cfg.TravelerFile); err != nil {
		s.skip("traveler", s.cfg.TravelerFile, err)
	} else if trav != nil {
		rec.TravelerXP = intField(trav, "travel_xp")
	}

	if milli, err := readInt(s.cfg.CPUTempFile); err != nil {
		s.skip("cpu temperature", s.cfg.CPUTempFile, err)
	} else {
		rec.CPUTempHalfDegrees = protocol.HalfDegrees(float64(milli) / 1000.0)
	}

	rec.BatteryPct = protocol.BatteryUnknown
	if s.cfg.BatteryCapacityFile != "" {
		if pct, err := readInt(s.cfg.BatteryCapacityFile); err != nil {
			s.skip("battery capacity", s.cfg.BatteryCapacityFile, err)
		} else if pct >= 0 && pct <= 100 {
			rec.BatteryPct = pct
		}
	}
	if status, err := readText(s.cfg.BatteryStatusFile); err != nil {
		s.skip("battery status", s.cfg.BatteryStatusFile, err)
	} else {
		rec.Charging = strings.EqualFold(status, "charging")
	}

	if glyph, err := readText(s.cfg.FaceFile); err != nil {
		s.skip("face", s.cfg.FaceFile, err)
	} else if glyph != "" {
		s.faces.SetGlyph(glyph)
	}
	rec.FaceID = int(s.faces.Code())
	rec.FaceRevision = int(face.Revision)

	return rec
}

func (s *FileSource) skip(what, path string, err error) {
	s.log.Debug("Skipping stat input",
		logger.String("input", what),
		logger.String("path", path),
		logger.Error(err))
}

// readJSON returns nil, nil for an unset path
func readJSON(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, nil
}

func readText(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func readInt(path string) (int, error) {
	text, err := readText(path)
	if err != nil {
		return 0, err
	}
	if text == "" {
		return 0, nil
	}
	return strconv.Atoi(text)
}

// intField accepts JSON numbers and numeric strings; anything else is 0
func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		// saturate before converting; out-of-range float to int is undefined
		switch {
		case math.IsNaN(v):
			return 0
		case v >= math.MaxInt32:
			return math.MaxInt32
		case v <= math.MinInt32:
			return math.MinInt32
		}
		return int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return n
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// StaticSource returns a fixed record; used for dry runs and tests
type StaticSource struct {
	mu  sync.RWMutex
	rec protocol.StatRecord
}

// NewStaticSource creates a source that always returns rec
func NewStaticSource(rec protocol.StatRecord) *StaticSource {
	return &StaticSource{rec: rec}
}

// Set replaces the record returned by later snapshots
func (s *StaticSource) Set(rec protocol.StatRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = rec
}

// Snapshot implements Source
func (s *StaticSource) Snapshot(ctx context.Context) protocol.StatRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec
}

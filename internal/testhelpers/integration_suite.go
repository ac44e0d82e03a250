package testhelpers

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dbehnke/pwn-beacon/pkg/config"
	"github.com/dbehnke/pwn-beacon/pkg/logger"
)

// IntegrationSuite wires a shared air, a throwaway config and a bounded
// context for end-to-end tests
type IntegrationSuite struct {
	T      *testing.T
	Config *config.Config
	Logger *logger.Logger
	Ctx    context.Context
	Cancel context.CancelFunc
	Air    *MockAir
	Radios []*MockRadio

	once sync.Once
}

// NewIntegrationSuite builds a suite whose context expires after 30s.
// Cleanup runs automatically at the end of the test; calling it early is
// allowed.
func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	s := &IntegrationSuite{
		T:      t,
		Config: CreateDefaultConfig(t.TempDir()),
		Logger: logger.New(logger.Config{Level: "debug", Format: "text"}),
		Ctx:    ctx,
		Cancel: cancel,
		Air:    NewMockAir(),
	}
	t.Cleanup(s.Cleanup)
	return s
}

// CreateMockRadio returns a controller broadcasting onto the suite's air
func (s *IntegrationSuite) CreateMockRadio(address string) *MockRadio {
	r := NewMockRadio(address)
	r.Attach(s.Air)
	s.Radios = append(s.Radios, r)
	return r
}

// GetFreePort asks the kernel for an unused TCP port
func (s *IntegrationSuite) GetFreePort() int {
	s.T.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		s.T.Fatalf("reserve port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	if err := ln.Close(); err != nil {
		s.T.Fatalf("release port: %v", err)
	}
	return port
}

// BaseURL returns the http address of a local server on port
func (s *IntegrationSuite) BaseURL(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

// Cleanup stops the air and cancels the suite context. Safe to call twice.
func (s *IntegrationSuite) Cleanup() {
	s.once.Do(func() {
		s.Air.Close()
		s.Cancel()
	})
}

// WaitFor polls cond every 10ms until it holds or timeout elapses
func (s *IntegrationSuite) WaitFor(cond func() bool, timeout time.Duration, what string) bool {
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	expired := time.After(timeout)
	for {
		if cond() {
			return true
		}
		select {
		case <-tick.C:
		case <-expired:
			s.T.Logf("gave up waiting for %s after %v", what, timeout)
			return false
		case <-s.Ctx.Done():
			s.T.Logf("suite context done while waiting for %s", what)
			return false
		}
	}
}

// AssertEventually fails the test unless cond holds within timeout
func (s *IntegrationSuite) AssertEventually(cond func() bool, timeout time.Duration, what string) {
	s.T.Helper()
	if !s.WaitFor(cond, timeout, what) {
		s.T.Errorf("condition never held: %s", what)
	}
}

// CreateDefaultConfig creates a test configuration with outer surfaces
// disabled and the database placed in dir
func CreateDefaultConfig(dir string) *config.Config {
	return &config.Config{
		Beacon: config.BeaconConfig{
			Interval:       50 * time.Millisecond,
			Version:        6,
			CompanyID:      0xFFFF,
			HCIDevice:      "hci0",
			HCIToolPath:    "/usr/bin/hcitool",
			CommandTimeout: time.Second,
			AdvIntervalMS:  100,
			DryRun:         true,
		},
		Scanner: config.ScannerConfig{
			CompanyID:  0xFFFF,
			Input:      "-",
			StaleAfter: time.Minute,
		},
		Web: config.WebConfig{
			Enabled: false,
		},
		Database: config.DatabaseConfig{
			Enabled:       true,
			Path:          filepath.Join(dir, "sightings.db"),
			Retention:     time.Hour,
			PruneInterval: time.Minute,
		},
		MQTT: config.MQTTConfig{
			Enabled: false,
		},
		Logging: config.LoggingConfig{
			Level:  "debug",
			Format: "text",
		},
		Metrics: config.MetricsConfig{
			Enabled: false,
		},
	}
}

//go:build integration
// +build integration

package integration

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dbehnke/pwn-beacon/internal/testhelpers"
	"github.com/dbehnke/pwn-beacon/pkg/beacon"
	"github.com/dbehnke/pwn-beacon/pkg/config"
	"github.com/dbehnke/pwn-beacon/pkg/database"
	"github.com/dbehnke/pwn-beacon/pkg/metrics"
	"github.com/dbehnke/pwn-beacon/pkg/protocol"
	"github.com/dbehnke/pwn-beacon/pkg/scanner"
	"github.com/dbehnke/pwn-beacon/pkg/stats"
	"github.com/dbehnke/pwn-beacon/pkg/web"
)

// startBeacon runs a beacon on a mock radio until the suite context ends
func startBeacon(t *testing.T, suite *testhelpers.IntegrationSuite, address string, version uint8, rec protocol.StatRecord, m *metrics.Collector) *beacon.Beacon {
	t.Helper()
	r := suite.CreateMockRadio(address)
	b, err := beacon.New(beacon.Config{
		Interval:  suite.Config.Beacon.Interval,
		Version:   version,
		CompanyID: uint16(suite.Config.Beacon.CompanyID),
	}, stats.NewStaticSource(rec), r, m, suite.Logger)
	if err != nil {
		t.Fatalf("beacon.New failed: %v", err)
	}
	go func() { _ = b.Start(suite.Ctx) }()
	return b
}

// pipeAir renders every packet on the air as an ingest line
func pipeAir(suite *testhelpers.IntegrationSuite) io.Reader {
	packets := suite.Air.Subscribe(256)
	pr, pw := io.Pipe()
	go func() {
		defer func() { _ = pw.Close() }()
		for {
			select {
			case p, ok := <-packets:
				if !ok {
					return
				}
				if _, err := fmt.Fprintln(pw, p.Line()); err != nil {
					return
				}
			case <-suite.Ctx.Done():
				return
			}
		}
	}()
	return pr
}

func TestBeaconToScanner(t *testing.T) {
	suite := testhelpers.NewIntegrationSuite(t)
	defer suite.Cleanup()

	db, err := database.NewDB(database.Config{Path: suite.Config.Database.Path}, suite.Logger)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()
	repo := db.Sightings()

	scanMetrics := metrics.NewCollector()
	processor := scanner.NewProcessor(scanner.Config{
		CompanyID:  uint16(suite.Config.Scanner.CompanyID),
		StaleAfter: suite.Config.Scanner.StaleAfter,
	}, scanMetrics, suite.Logger)
	processor.AddSink(repo)

	input := pipeAir(suite)
	go func() { _ = scanner.ReadLines(suite.Ctx, input, processor) }()

	beaconMetrics := metrics.NewCollector()
	startBeacon(t, suite, "AA:00:00:00:00:01", protocol.Version6, protocol.StatRecord{
		Handshakes: 10, Epochs: 1050, TravelerXP: 700, FaceID: 9, FaceRevision: 1,
	}, beaconMetrics)
	startBeacon(t, suite, "AA:00:00:00:00:02", protocol.Version3, protocol.StatRecord{
		Handshakes: 20, Epochs: 50, BatteryPct: 80, Charging: true,
	}, beaconMetrics)

	suite.AssertEventually(func() bool {
		return processor.DeviceCount() == 2
	}, 5*time.Second, "both beacons should be decoded")

	suite.AssertEventually(func() bool {
		n, err := repo.Count()
		return err == nil && n >= 4
	}, 5*time.Second, "repeated adverts should be stored")

	one, ok := processor.Device("aa:00:00:00:00:01")
	if !ok {
		t.Fatal("Device 01 missing")
	}
	if one.Reading.Layout != protocol.Version6 || *one.Reading.Handshakes != 10 || *one.Reading.AgeTitle != "Orbitling" {
		t.Errorf("Unexpected v6 reading %+v", one.Reading)
	}
	if one.RSSI != suite.Air.RSSI {
		t.Errorf("Expected rssi %d, got %d", suite.Air.RSSI, one.RSSI)
	}

	two, ok := processor.Device("AA:00:00:00:00:02")
	if !ok {
		t.Fatal("Device 02 missing")
	}
	if two.Reading.Layout != protocol.Version3 || *two.Reading.BatteryPct != 80 || !*two.Reading.Charging {
		t.Errorf("Unexpected v3 reading %+v", two.Reading)
	}

	if scanMetrics.GetFramesDecodedByLayout()[protocol.Version6] == 0 {
		t.Error("Expected v6 frames counted")
	}
	if beaconMetrics.GetAdvertisingUpdates() < 2 {
		t.Errorf("Expected advertising updates, got %d", beaconMetrics.GetAdvertisingUpdates())
	}
}

func TestStatChangesPropagate(t *testing.T) {
	suite := testhelpers.NewIntegrationSuite(t)
	defer suite.Cleanup()

	processor := scanner.NewProcessor(scanner.Config{CompanyID: protocol.DefaultCompanyID}, nil, suite.Logger)
	go func() { _ = scanner.ReadLines(suite.Ctx, pipeAir(suite), processor) }()

	src := stats.NewStaticSource(protocol.StatRecord{Handshakes: 1})
	r := suite.CreateMockRadio("BB:00:00:00:00:01")
	b, err := beacon.New(beacon.Config{Interval: 20 * time.Millisecond, Version: protocol.Version5}, src, r, nil, suite.Logger)
	if err != nil {
		t.Fatalf("beacon.New failed: %v", err)
	}
	go func() { _ = b.Start(suite.Ctx) }()

	handshakes := func(want uint16) func() bool {
		return func() bool {
			s, ok := processor.Device("BB:00:00:00:00:01")
			return ok && s.Reading.Handshakes != nil && *s.Reading.Handshakes == want
		}
	}

	suite.AssertEventually(handshakes(1), 5*time.Second, "initial handshakes should be seen")
	src.Set(protocol.StatRecord{Handshakes: 2})
	suite.AssertEventually(handshakes(2), 5*time.Second, "updated handshakes should be seen on a later refresh")
}

func TestBeaconStopDisablesAdvertising(t *testing.T) {
	suite := testhelpers.NewIntegrationSuite(t)
	defer suite.Cleanup()

	ctx, cancel := context.WithCancel(suite.Ctx)
	r := suite.CreateMockRadio("CC:00:00:00:00:01")
	b, err := beacon.New(beacon.Config{Interval: 10 * time.Millisecond, Version: protocol.Version6}, stats.NewStaticSource(protocol.StatRecord{}), r, nil, suite.Logger)
	if err != nil {
		t.Fatalf("beacon.New failed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = b.Start(ctx)
	}()

	suite.AssertEventually(r.Enabled, 2*time.Second, "advertising should be enabled")
	cancel()
	wg.Wait()

	if r.Enabled() {
		t.Error("Expected advertising disabled after stop")
	}
	if len(suite.Air.Packets()) == 0 {
		t.Error("Expected packets on the air")
	}
}

func TestDashboardServesSightings(t *testing.T) {
	suite := testhelpers.NewIntegrationSuite(t)
	defer suite.Cleanup()

	db, err := database.NewDB(database.Config{Path: suite.Config.Database.Path}, suite.Logger)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	m := metrics.NewCollector()
	processor := scanner.NewProcessor(scanner.Config{CompanyID: protocol.DefaultCompanyID}, m, suite.Logger)
	processor.AddSink(db.Sightings())

	port := suite.GetFreePort()
	srv := web.NewServer(config.WebConfig{
		Enabled: true,
		Host:    "127.0.0.1",
		Port:    port,
	}, web.Dependencies{Devices: processor, Store: db.Sightings(), Metrics: m}, suite.Logger)
	processor.AddSink(srv.GetHub())
	go func() { _ = srv.Start(suite.Ctx) }()

	suite.AssertEventually(func() bool { return srv.GetAddr() != "" }, 2*time.Second, "web server should listen")

	lines := strings.Join([]string{
		"DD:00:00:00:00:01 -40 mfr:" + hex.EncodeToString(protocol.MustEncode(protocol.Version6, protocol.StatRecord{Handshakes: 3})),
		"DD:00:00:00:00:02 -45 mfr:" + hex.EncodeToString(protocol.MustEncode(protocol.Version5, protocol.StatRecord{Handshakes: 4})),
	}, "\n")
	if err := scanner.ReadLines(suite.Ctx, strings.NewReader(lines), processor); err != nil {
		t.Fatalf("ReadLines failed: %v", err)
	}

	resp, err := http.Get(suite.BaseURL(port) + "/api/devices")
	if err != nil {
		t.Fatalf("GET /api/devices failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var devices []scanner.Sighting
	if err := json.NewDecoder(resp.Body).Decode(&devices); err != nil {
		t.Fatalf("Failed to decode devices: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("Expected 2 devices, got %d", len(devices))
	}

	resp2, err := http.Get(suite.BaseURL(port) + "/api/sightings")
	if err != nil {
		t.Fatalf("GET /api/sightings failed: %v", err)
	}
	defer func() { _ = resp2.Body.Close() }()

	var page struct {
		Total int64 `json:"total"`
	}
	if err := json.NewDecoder(resp2.Body).Decode(&page); err != nil {
		t.Fatalf("Failed to decode sightings: %v", err)
	}
	if page.Total != 2 {
		t.Errorf("Expected 2 stored sightings, got %d", page.Total)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	suite := testhelpers.NewIntegrationSuite(t)
	defer suite.Cleanup()

	m := metrics.NewCollector()
	m.FrameEncoded(protocol.Version6)
	m.AdvertisingUpdated(time.Now())

	port := suite.GetFreePort()
	srv := metrics.NewPrometheusServer(metrics.PrometheusConfig{Enabled: true, Port: port, Path: "/metrics"}, m, suite.Logger)
	go func() { _ = srv.Start(suite.Ctx) }()

	var body string
	suite.AssertEventually(func() bool {
		resp, err := http.Get(suite.BaseURL(port) + "/metrics")
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		body = string(data)
		return true
	}, 2*time.Second, "metrics endpoint should respond")

	if !strings.Contains(body, `pwn_frames_encoded_total{version="6"} 1`) {
		t.Errorf("Expected encoded frame counter in output:\n%s", body)
	}
}

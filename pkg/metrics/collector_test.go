package metrics

import (
	"sync"
	"testing"
	"time"
)

// TestNewCollector tests creating a new metrics collector
func TestNewCollector(t *testing.T) {
	collector := NewCollector()
	if collector == nil {
		t.Fatal("Expected non-nil collector")
	}
	if collector.GetActiveDevices() != 0 {
		t.Error("Expected no active devices")
	}
}

// TestCollector_BeaconMetrics tests encoder and radio counters
func TestCollector_BeaconMetrics(t *testing.T) {
	collector := NewCollector()

	collector.FrameEncoded(6)
	collector.FrameEncoded(6)
	collector.FrameEncoded(5)

	if got := collector.GetFramesEncoded(); got != 3 {
		t.Errorf("Expected 3 frames encoded, got %d", got)
	}
	byVersion := collector.GetFramesEncodedByVersion()
	if byVersion[6] != 2 || byVersion[5] != 1 {
		t.Errorf("Unexpected per-version counts: %v", byVersion)
	}

	now := time.Unix(1700000000, 0)
	collector.AdvertisingUpdated(now)
	if collector.GetAdvertisingUpdates() != 1 {
		t.Errorf("Expected 1 advertising update, got %d", collector.GetAdvertisingUpdates())
	}
	if !collector.GetLastAdvertised().Equal(now) {
		t.Errorf("Expected last advertised %v, got %v", now, collector.GetLastAdvertised())
	}

	collector.RadioError("set_data")
	collector.RadioError("enable")
	collector.RadioError("enable")
	if collector.GetRadioErrors() != 3 {
		t.Errorf("Expected 3 radio errors, got %d", collector.GetRadioErrors())
	}
	if collector.GetRadioErrorsByOp()["enable"] != 2 {
		t.Errorf("Expected 2 enable errors, got %v", collector.GetRadioErrorsByOp())
	}
}

// TestCollector_ScannerMetrics tests receive side counters
func TestCollector_ScannerMetrics(t *testing.T) {
	collector := NewCollector()

	collector.AdvertReceived(14)
	collector.AdvertReceived(12)
	collector.AdvertReceived(-1)
	collector.FrameDecoded(6)
	collector.FrameDecoded(5)
	collector.FrameIgnored("no_manufacturer_data")

	if collector.GetAdvertsReceived() != 3 {
		t.Errorf("Expected 3 adverts, got %d", collector.GetAdvertsReceived())
	}
	if collector.GetBytesReceived() != 26 {
		t.Errorf("Expected 26 bytes, got %d", collector.GetBytesReceived())
	}
	if collector.GetFramesDecoded() != 2 {
		t.Errorf("Expected 2 decoded frames, got %d", collector.GetFramesDecoded())
	}
	if collector.GetFramesIgnoredByReason()["no_manufacturer_data"] != 1 {
		t.Errorf("Unexpected ignore counts: %v", collector.GetFramesIgnoredByReason())
	}
}

// TestCollector_ActiveDevices tests device tracking and pruning
func TestCollector_ActiveDevices(t *testing.T) {
	collector := NewCollector()
	base := time.Unix(1700000000, 0)

	collector.DeviceSeen("AA:BB:CC:DD:EE:01", base)
	collector.DeviceSeen("AA:BB:CC:DD:EE:02", base.Add(time.Minute))
	collector.DeviceSeen("AA:BB:CC:DD:EE:01", base.Add(2*time.Minute))

	if collector.GetActiveDevices() != 2 {
		t.Fatalf("Expected 2 active devices, got %d", collector.GetActiveDevices())
	}

	removed := collector.PruneDevices(base.Add(90 * time.Second))
	if removed != 1 || collector.GetActiveDevices() != 1 {
		t.Errorf("Expected 1 device pruned and 1 left, got %d removed, %d left", removed, collector.GetActiveDevices())
	}

	collector.Reset()
	if collector.GetActiveDevices() != 0 {
		t.Error("Expected no active devices after reset")
	}
}

// TestCollector_Concurrent exercises the collector from many goroutines
func TestCollector_Concurrent(t *testing.T) {
	collector := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				collector.FrameEncoded(6)
				collector.AdvertReceived(1)
				_ = collector.GetFramesEncoded()
			}
		}()
	}
	wg.Wait()

	if collector.GetFramesEncoded() != 1000 {
		t.Errorf("Expected 1000 frames, got %d", collector.GetFramesEncoded())
	}
	if collector.GetAdvertsReceived() != 1000 {
		t.Errorf("Expected 1000 adverts, got %d", collector.GetAdvertsReceived())
	}
}

package testhelpers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dbehnke/pwn-beacon/pkg/protocol"
	"github.com/dbehnke/pwn-beacon/pkg/radio"
)

func TestIntegrationSuite_Defaults(t *testing.T) {
	suite := NewIntegrationSuite(t)

	if err := suite.Config.Validate(); err != nil {
		t.Errorf("default test config invalid: %v", err)
	}
	if !suite.Config.Beacon.DryRun {
		t.Error("test config must never touch a real adapter")
	}

	suite.Cleanup()
	suite.Cleanup()
	if suite.Ctx.Err() == nil {
		t.Error("Cleanup should cancel the suite context")
	}
}

func TestMockRadio_BroadcastsWhenEnabled(t *testing.T) {
	suite := NewIntegrationSuite(t)
	r := suite.CreateMockRadio("AA:BB:CC:DD:EE:FF")
	sub := suite.Air.Subscribe(4)
	ctx := context.Background()

	adv := protocol.Frame([]byte{0x06, 0x01}, protocol.DefaultCompanyID)
	if err := r.SetAdvertisingData(ctx, adv); err != nil {
		t.Fatalf("SetAdvertisingData: %v", err)
	}
	if len(suite.Air.Packets()) != 0 {
		t.Fatal("Nothing should be broadcast before enabling")
	}

	if err := r.SetAdvertisingEnabled(ctx, true); err != nil {
		t.Fatalf("SetAdvertisingEnabled: %v", err)
	}

	select {
	case p := <-sub:
		if p.Address != "AA:BB:CC:DD:EE:FF" || len(p.Data) != protocol.MaxAdvertisingDataLen {
			t.Errorf("Unexpected packet %+v", p)
		}
		if !strings.HasPrefix(p.Line(), "AA:BB:CC:DD:EE:FF -55 020106") {
			t.Errorf("Unexpected line %q", p.Line())
		}
	case <-time.After(time.Second):
		t.Fatal("Expected a broadcast")
	}

	if !r.Enabled() {
		t.Error("Expected radio enabled")
	}
	if strings.Join(r.Ops(), ",") != "set_data,enable" {
		t.Errorf("Unexpected ops %v", r.Ops())
	}
}

func TestMockRadio_FailOn(t *testing.T) {
	r := NewMockRadio("AA")
	boom := errors.New("boom")
	r.FailOn(radio.OpSetParameters, boom)

	err := r.SetAdvertisingParameters(context.Background(), radio.DefaultAdvertisingParameters())
	if !errors.Is(err, boom) {
		t.Errorf("Expected injected error, got %v", err)
	}

	r.FailOn(radio.OpSetParameters, nil)
	if err := r.SetAdvertisingParameters(context.Background(), radio.DefaultAdvertisingParameters()); err != nil {
		t.Errorf("Expected success after clearing failure, got %v", err)
	}
	if len(r.Calls()) != 2 {
		t.Errorf("Expected 2 recorded calls, got %d", len(r.Calls()))
	}
}

func TestIntegrationSuite_WaitFor(t *testing.T) {
	suite := NewIntegrationSuite(t)

	calls := 0
	if !suite.WaitFor(func() bool { calls++; return calls >= 5 }, time.Second, "five polls") {
		t.Fatal("WaitFor gave up on a condition that becomes true")
	}
	if calls != 5 {
		t.Errorf("polled %d times, want 5", calls)
	}

	start := time.Now()
	if suite.WaitFor(func() bool { return false }, 50*time.Millisecond, "never") {
		t.Error("WaitFor reported success for a false condition")
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("WaitFor returned before its timeout")
	}
}

func TestIntegrationSuite_GetFreePort(t *testing.T) {
	suite := NewIntegrationSuite(t)

	a, b := suite.GetFreePort(), suite.GetFreePort()
	if a <= 0 || a > 65535 || b <= 0 || b > 65535 {
		t.Errorf("invalid ports %d, %d", a, b)
	}
	if got := suite.BaseURL(a); !strings.HasPrefix(got, "http://127.0.0.1:") {
		t.Errorf("BaseURL = %q", got)
	}
}

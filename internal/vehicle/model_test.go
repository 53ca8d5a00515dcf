package vehicle

import (
	"math/rand/v2"
	"testing"
	"time"

	"gps-svr/internal/codec"
)

func newModel() *Model {
	return New(rand.New(rand.NewPCG(1, 2)))
}

func TestStaticModelDoesNotMove(t *testing.T) {
	m := newModel()
	sc, err := LookupScenario("static")
	if err != nil {
		t.Fatal(err)
	}
	sc.Apply(m, 0)
	for i := 0; i < 10; i++ {
		m.Step(10 * time.Second)
	}
	if m.Lat != defaultLatitude || m.Lon != defaultLongitude {
		t.Fatalf("static model moved to %v,%v", m.Lat, m.Lon)
	}
	if m.Battery >= 100 || m.Battery < 99 {
		t.Fatalf("battery = %v", m.Battery)
	}
	if m.Flags() != 0 {
		t.Fatalf("flags = %v", m.Flags())
	}
}

func TestMovingModelStaysInRange(t *testing.T) {
	m := newModel()
	sc, _ := LookupScenario("highway")
	sc.Apply(m, 0)
	for i := 0; i < 1000; i++ {
		m.Step(3 * time.Second)
		if m.SpeedKmh < 0 || m.SpeedKmh > maxSpeedKmh {
			t.Fatalf("speed out of range: %v", m.SpeedKmh)
		}
		if m.HeadingDeg < 0 || m.HeadingDeg >= 360 {
			t.Fatalf("heading out of range: %v", m.HeadingDeg)
		}
		if r := m.Report(); r.HeadingD > 3599 || r.BatteryPct > 100 {
			t.Fatalf("report out of range: %+v", r)
		}
	}
	if !m.Flags().Has(codec.FlagMoving | codec.FlagIgnitionOn) {
		t.Fatalf("flags = %v", m.Flags())
	}
}

func TestLowBatteryFlag(t *testing.T) {
	m := newModel()
	m.Battery = 19.5
	if !m.Flags().Has(codec.FlagLowBattery) {
		t.Fatal("low battery flag not set")
	}
	if got := m.Report().BatteryPct; got != 19 {
		t.Fatalf("battery pct = %d", got)
	}
}

func TestLookupScenario(t *testing.T) {
	sc, err := LookupScenario(" Urban ")
	if err != nil || sc.Interval != 5*time.Second || sc.SpeedKmh != 30 {
		t.Fatalf("urban = %+v err = %v", sc, err)
	}
	if hb, _ := LookupScenario("heartbeat"); !hb.Heartbeat {
		t.Fatal("heartbeat scenario does not send heartbeats")
	}
	if _, err := LookupScenario("teleport"); err == nil {
		t.Fatal("unknown scenario accepted")
	}
}

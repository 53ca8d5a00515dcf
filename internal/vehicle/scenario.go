package vehicle

import (
	"fmt"
	"strings"
	"time"
)

type Scenario struct {
	Name      string
	Interval  time.Duration
	SpeedKmh  float64
	Heartbeat bool
	// RandomHeading elige un rumbo inicial al azar.
	RandomHeading bool
}

var presets = map[string]Scenario{
	"static":    {Name: "static", Interval: 10 * time.Second},
	"urban":     {Name: "urban", Interval: 5 * time.Second, SpeedKmh: 30, RandomHeading: true},
	"highway":   {Name: "highway", Interval: 3 * time.Second, SpeedKmh: 80, RandomHeading: true},
	"custom":    {Name: "custom", Interval: 5 * time.Second},
	"heartbeat": {Name: "heartbeat", Interval: 10 * time.Second, Heartbeat: true},
}

func LookupScenario(name string) (Scenario, error) {
	sc, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Scenario{}, fmt.Errorf("unknown scenario %q", name)
	}
	return sc, nil
}

// Apply deja el modelo en el estado inicial del escenario.
func (sc Scenario) Apply(m *Model, headingDeg float64) {
	m.SpeedKmh = sc.SpeedKmh
	m.HeadingDeg = headingDeg
	if sc.RandomHeading {
		m.HeadingDeg = m.uniform(0, 360)
	}
	m.Moving = sc.SpeedKmh > 0 && !sc.Heartbeat
	m.Ignition = m.Moving
}

package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestResultLabel(t *testing.T) {
	if ResultLabel(nil) != ResultOK {
		t.Errorf("nil error should map to %q", ResultOK)
	}
	if ResultLabel(errors.New("x")) != ResultError {
		t.Errorf("non-nil error should map to %q", ResultError)
	}
}

func counterValue(t *testing.T, name, label, value string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == label && l.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestBotTurnsRegistered(t *testing.T) {
	before := counterValue(t, "resellerbot_bot_turns_total", "outcome", "metrics_test")
	BotTurns.WithLabelValues("metrics_test").Inc()
	if got := counterValue(t, "resellerbot_bot_turns_total", "outcome", "metrics_test"); got != before+1 {
		t.Errorf("counter = %v, want %v", got, before+1)
	}
}

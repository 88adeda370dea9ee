package budget

import (
	"errors"
	"testing"
	"time"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "", want: ModeConcise},
		{in: "concise", want: ModeConcise},
		{in: " Research ", want: ModeResearch},
		{in: "deep", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseMode(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseMode(%q) unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDefaultsValidate(t *testing.T) {
	for _, mode := range []Mode{ModeConcise, ModeResearch} {
		if err := Defaults(mode).Validate(); err != nil {
			t.Fatalf("defaults for %s invalid: %v", mode, err)
		}
	}
	concise, research := Defaults(ModeConcise), Defaults(ModeResearch)
	if research.MaxIterations <= concise.MaxIterations || research.MaxGoals <= concise.MaxGoals {
		t.Fatalf("research budgets should be larger than concise")
	}
	if concise.Depth != DepthBasic || research.Depth != DepthAdvanced {
		t.Fatalf("unexpected depth defaults: %q %q", concise.Depth, research.Depth)
	}
}

func TestLimitsValidate(t *testing.T) {
	l := Defaults(ModeConcise)
	l.PlanGoals = l.MaxGoals + 1
	if err := l.Validate(); err == nil {
		t.Fatalf("expected plan_goals validation error")
	}
	l = Defaults(ModeConcise)
	l.Depth = "deep"
	if err := l.Validate(); err == nil {
		t.Fatalf("expected depth validation error")
	}
}

func TestMerge(t *testing.T) {
	base := Defaults(ModeResearch)
	merged := Merge(base, Limits{MaxGoals: 4, Depth: "BASIC"})
	if merged.MaxGoals != 4 {
		t.Fatalf("expected max goals override, got %d", merged.MaxGoals)
	}
	if merged.Depth != DepthBasic {
		t.Fatalf("expected depth override, got %q", merged.Depth)
	}
	if merged.MaxIterations != base.MaxIterations {
		t.Fatalf("expected max iterations to persist")
	}
	if !(Limits{}).IsZero() || base.IsZero() {
		t.Fatalf("IsZero mismatch")
	}
}

func TestMonitor(t *testing.T) {
	mon := NewMonitor(Limits{MaxIterations: 2, MaxGoals: 3, MaxSearchesPerGoal: 1})
	if err := mon.CheckIteration(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := mon.CheckIteration(2)
	var exceeded ErrExceeded
	if !errors.As(err, &exceeded) || exceeded.Kind != KindIterations {
		t.Fatalf("expected iterations breach, got %v", err)
	}
	if err := mon.CheckGoals(3); err != nil {
		t.Fatalf("unexpected goals error: %v", err)
	}
	if err := mon.CheckGoals(4); err == nil {
		t.Fatalf("expected goals breach")
	}
	if err := mon.AdmitGoals(1, 1); err != nil {
		t.Fatalf("expected 1+1+1 to fit: %v", err)
	}
	if err := mon.AdmitGoals(1, 2); err == nil {
		t.Fatalf("expected 1+1+2 to exceed")
	}
	if !mon.CanSearch(0, 2) || mon.CanSearch(1, 2) || mon.CanSearch(0, 0) {
		t.Fatalf("CanSearch mismatch")
	}
}

func TestMonitorElapsed(t *testing.T) {
	mon := NewMonitor(Defaults(ModeConcise))
	time.Sleep(2 * time.Millisecond)
	if got := mon.Elapsed(); got < 2*time.Millisecond {
		t.Fatalf("elapsed = %v, want at least 2ms", got)
	}
}

package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExecutePassesThrough(t *testing.T) {
	cb := New(DefaultConfig("test"), nil, nil)

	result, err := cb.Execute(context.Background(), func() (interface{}, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if result != "ok" {
		t.Errorf("result = %v", result)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("state = %v", cb.GetState())
	}
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	cfg := Config{
		Name:             "test",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 3,
		FailureRatio:     0.6,
		MinRequests:      100,
	}

	var transitions []State
	cb := New(cfg, nil, func(name string, to State) {
		transitions = append(transitions, to)
	})

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		if _, err := cb.Execute(context.Background(), func() (interface{}, error) {
			return nil, boom
		}); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: err = %v", i, err)
		}
	}

	if !cb.IsOpen() {
		t.Fatal("breaker should be open after the failure threshold")
	}
	if len(transitions) == 0 || transitions[len(transitions)-1] != StateOpen {
		t.Errorf("transitions = %v", transitions)
	}

	_, err := cb.Execute(context.Background(), func() (interface{}, error) {
		t.Error("call must not run while open")
		return nil, nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("err = %v, want ErrOpen", err)
	}
}

func TestGaugeValues(t *testing.T) {
	cases := map[State]float64{
		StateClosed:   0,
		StateOpen:     1,
		StateHalfOpen: 2,
	}
	for state, want := range cases {
		if got := state.GaugeValue(); got != want {
			t.Errorf("%s gauge = %v, want %v", state, got, want)
		}
	}
}

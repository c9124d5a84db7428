package event_test

import (
	"errors"
	"testing"

	"github.com/felixgeelhaar/omni/domain/event"
)

func TestEvent_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		e       event.Event
		wantErr bool
	}{
		{"valid", event.Event{RunID: "r", Category: event.CategoryPlan}, false},
		{"self-correction failure", event.Event{RunID: "r", Category: event.CategoryFailure, SelfCorrection: true}, false},
		{"missing run", event.Event{Category: event.CategoryPlan}, true},
		{"bad category", event.Event{RunID: "r", Category: "debug"}, true},
		{"self-correction on success", event.Event{RunID: "r", Category: event.CategorySuccess, SelfCorrection: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.e.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, event.ErrInvalidEvent) {
				t.Errorf("Validate() error = %v, want %v", err, event.ErrInvalidEvent)
			}
		})
	}
}

func TestEvent_Label(t *testing.T) {
	t.Parallel()

	tests := map[string]event.Event{
		"Plan":            {Category: event.CategoryPlan},
		"Action":          {Category: event.CategoryAction},
		"Success":         {Category: event.CategorySuccess},
		"Failure":         {Category: event.CategoryFailure},
		"Self-Correction": {Category: event.CategoryFailure, SelfCorrection: true},
	}
	for want, e := range tests {
		if got := e.Label(); got != want {
			t.Errorf("Label() = %q, want %q", got, want)
		}
	}
}

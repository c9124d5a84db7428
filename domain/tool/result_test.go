package tool_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/omni/domain/tool"
)

func TestResult_Variants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		result      tool.Result
		wantValid   bool
		wantSuccess bool
		wantOutput  string
		wantErrText string
	}{
		{name: "zero value", result: tool.Result{}},
		{name: "success", result: tool.Success("ok"), wantValid: true, wantSuccess: true, wantOutput: "ok"},
		{name: "empty success", result: tool.Success(""), wantValid: true, wantSuccess: true},
		{name: "failure", result: tool.Failure("boom"), wantValid: true, wantErrText: "boom"},
		{name: "empty failure", result: tool.Failure(""), wantValid: true, wantErrText: "unknown error"},
		{name: "failuref", result: tool.Failuref("exit %d", 2), wantValid: true, wantErrText: "exit 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := tt.result
			if r.IsValid() != tt.wantValid {
				t.Errorf("IsValid() = %v, want %v", r.IsValid(), tt.wantValid)
			}
			if r.IsSuccess() != tt.wantSuccess {
				t.Errorf("IsSuccess() = %v, want %v", r.IsSuccess(), tt.wantSuccess)
			}
			if r.IsSuccess() && r.IsFailure() {
				t.Error("result is both success and failure")
			}
			if r.Output() != tt.wantOutput {
				t.Errorf("Output() = %q, want %q", r.Output(), tt.wantOutput)
			}
			if r.ErrorText() != tt.wantErrText {
				t.Errorf("ErrorText() = %q, want %q", r.ErrorText(), tt.wantErrText)
			}
		})
	}
}

func TestSuccessJSON(t *testing.T) {
	t.Parallel()

	r := tool.SuccessJSON(map[string]int{"lines": 3})
	if !r.IsSuccess() || r.Output() != `{"lines":3}` {
		t.Errorf("SuccessJSON() = %v", r)
	}

	bad := tool.SuccessJSON(make(chan int))
	if !bad.IsFailure() {
		t.Errorf("SuccessJSON(chan) = %v, want failure", bad)
	}
}

func TestResult_JSON(t *testing.T) {
	t.Parallel()

	original := tool.Failure("NameError").WithDuration(1500 * time.Millisecond)
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded tool.Result
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !decoded.IsFailure() || decoded.ErrorText() != "NameError" || decoded.Duration != 1500*time.Millisecond {
		t.Errorf("decoded = %v (%v)", decoded, decoded.Duration)
	}

	var invalid tool.Result
	err = json.Unmarshal([]byte(`{"status":"maybe"}`), &invalid)
	if !errors.Is(err, tool.ErrInvalidResult) {
		t.Errorf("Unmarshal(maybe) error = %v, want %v", err, tool.ErrInvalidResult)
	}
}

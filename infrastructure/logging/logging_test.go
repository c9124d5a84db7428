package logging

import (
	"bytes"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/felixgeelhaar/omni/domain/agent"
)

// testLogger creates a logger that writes to a buffer for testing
func testLogger() (*bolt.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	handler := bolt.NewJSONHandler(buf)
	logger := bolt.New(handler).SetLevel(bolt.TRACE)
	return logger, buf
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	if config.Format != "console" {
		t.Errorf("Format = %s, want console", config.Format)
	}
	if config.Output != io.Writer(os.Stderr) {
		t.Errorf("Output = %v, want os.Stderr", config.Output)
	}
	if ProductionConfig().Format != "json" {
		t.Errorf("ProductionConfig().Format = %s, want json", ProductionConfig().Format)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected bolt.Level
	}{
		{"trace", bolt.TRACE},
		{"debug", bolt.DEBUG},
		{"info", bolt.INFO},
		{"warn", bolt.WARN},
		{"WARN", bolt.WARN},
		{"error", bolt.ERROR},
		{"unknown", bolt.INFO},
		{"", bolt.INFO},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%s) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		field Field
		want  string
	}{
		{"run id", RunID("run-123"), `"run_id":"run-123"`},
		{"state", State(agent.StateSelecting), `"state":"selecting"`},
		{"from", FromState(agent.StateExecuting), `"from_state":"executing"`},
		{"to", ToState(agent.StateObserving), `"to_state":"observing"`},
		{"tool", ToolName("read_file"), `"tool":"read_file"`},
		{"decision", Decision(agent.DecisionInvoke), `"decision":"invoke"`},
		{"iteration", Iteration(4), `"iteration":4`},
		{"step", StepID("step-1"), `"step_id":"step-1"`},
		{"attempt", Attempt(2), `"attempt":2`},
		{"duration", Duration(1500 * time.Millisecond), `"duration_ms":1500`},
		{"error text", ErrorText("declined by user"), `"error":"declined by user"`},
		{"goal", Goal("fix it"), `"goal":"fix it"`},
		{"summary", Summary("ok"), `"summary":"ok"`},
		{"reason", Reason("why"), `"reason":"why"`},
		{"component", Component("orchestrator"), `"component":"orchestrator"`},
		{"provider", Provider("openai"), `"provider":"openai"`},
		{"str", Str("k", "v"), `"k":"v"`},
		{"int", Int("n", 7), `"n":7`},
		{"bool", Bool("b", true), `"b":true`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, buf := testLogger()
			tt.field(logger.Info()).Msg("test")
			if !bytes.Contains(buf.Bytes(), []byte(tt.want)) {
				t.Errorf("expected %s in output: %s", tt.want, buf.String())
			}
		})
	}
}

func TestEmptyFieldsAreOmitted(t *testing.T) {
	t.Parallel()

	logger, buf := testLogger()
	ErrorField(nil)(StepID("")(logger.Info())).Msg("test")
	if bytes.Contains(buf.Bytes(), []byte("step_id")) || bytes.Contains(buf.Bytes(), []byte(`"error"`)) {
		t.Errorf("empty fields should be omitted: %s", buf.String())
	}

	buf.Reset()
	ErrorField(errors.New("boom"))(logger.Info()).Msg("test")
	if !bytes.Contains(buf.Bytes(), []byte("boom")) {
		t.Errorf("expected error in output: %s", buf.String())
	}
}

func TestLogEvent(t *testing.T) {
	t.Parallel()

	logger, buf := testLogger()
	NewEvent(logger.Info()).Add(RunID("run-1")).Add(State(agent.StateDone)).Msg("test")

	if !bytes.Contains(buf.Bytes(), []byte(`"run_id":"run-1"`)) {
		t.Errorf("expected run_id field in output: %s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"state":"done"`)) {
		t.Errorf("expected state field in output: %s", buf.String())
	}

	buf.Reset()
	NewEvent(logger.Info()).Add(RunID("run-2")).Send()
	if !bytes.Contains(buf.Bytes(), []byte(`"run_id":"run-2"`)) {
		t.Errorf("expected run_id field in output: %s", buf.String())
	}
}

func TestGet(t *testing.T) {
	if Get() == nil {
		t.Fatal("Get() returned nil")
	}
	SetLevel("error")
	if Info() == nil || Warn() == nil || Error() == nil || Debug() == nil || Trace() == nil {
		t.Fatal("level helpers returned nil")
	}
}

func TestInitReplacesLogger(t *testing.T) {
	var first, second bytes.Buffer
	t.Cleanup(func() { Init(Config{Output: io.Discard}) })

	Init(Config{Level: "info", Format: "json", Output: &first})
	Info().Add(Component("cli")).Msg("first")

	Init(Config{Level: "info", Format: "json", Output: &second})
	Info().Msg("second")
	Debug().Msg("hidden")

	if !bytes.Contains(first.Bytes(), []byte(`"component":"cli"`)) || bytes.Contains(first.Bytes(), []byte("second")) {
		t.Errorf("first logger output = %s", first.String())
	}
	if !bytes.Contains(second.Bytes(), []byte("second")) || bytes.Contains(second.Bytes(), []byte("hidden")) {
		t.Errorf("second logger output = %s", second.String())
	}
}

package dnf

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetLogWriters(t *testing.T) {
	defer SetLogWriters(LogWriters{})

	var ops, diag, trace bytes.Buffer
	SetLogWriters(LogWriters{Ops: &ops, Diag: &diag, Trace: &trace})

	Opsf("ops message: %d", 1)
	Diagf("diag message: %d", 2)
	Tracef("trace message: %d", 3)

	if got := ops.String(); !strings.Contains(got, "[dnf] ") || !strings.Contains(got, "ops message: 1") {
		t.Errorf("ops output = %q", got)
	}
	if got := diag.String(); !strings.Contains(got, "diag message: 2") || strings.Contains(got, "ops message") {
		t.Errorf("diag output = %q", got)
	}
	if got := trace.String(); !strings.Contains(got, "trace message: 3") {
		t.Errorf("trace output = %q", got)
	}

	// nil disables a stream without affecting the others
	ops.Reset()
	diag.Reset()
	SetLogWriters(LogWriters{Ops: &ops})
	Opsf("still here")
	Diagf("should not appear")
	if ops.Len() == 0 {
		t.Error("ops stream should still be enabled")
	}
	if diag.Len() > 0 {
		t.Errorf("diag output after disabling = %q, want empty", diag.String())
	}
}

func TestStepLogsTrace(t *testing.T) {
	defer SetLogWriters(LogWriters{})

	var trace bytes.Buffer
	SetLogWriters(LogWriters{Trace: &trace})

	f := newTestField(t, FieldConfig{Name: "traced", Threshold: 10})
	if err := f.Step(0, nil); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !strings.Contains(trace.String(), `field "traced" step 0`) {
		t.Errorf("trace output = %q", trace.String())
	}
}

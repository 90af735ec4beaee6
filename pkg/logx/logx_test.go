package logx

import "testing"

func TestDebugDomainFiltering(t *testing.T) {
	defer SetDebug(false)

	SetDebug(true, "gateway", "engine")

	if !IsDebugEnabled("gateway") {
		t.Error("expected gateway debug to be enabled")
	}
	if !IsDebugEnabled("engine") {
		t.Error("expected engine debug to be enabled")
	}
	if IsDebugEnabled("inference") {
		t.Error("expected inference debug to be disabled")
	}
}

func TestDebugAllDomains(t *testing.T) {
	defer SetDebug(false)

	SetDebug(true)

	for _, component := range []string{"engine", "gateway", "inference", "intent", "history"} {
		if !IsDebugEnabled(component) {
			t.Errorf("expected %s debug to be enabled when no domain filter set", component)
		}
	}
}

func TestDebugDisabled(t *testing.T) {
	SetDebug(false)

	if IsDebugEnabled("engine") {
		t.Error("expected debug disabled globally")
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(nil, "context"); err != nil {
		t.Errorf("Wrap(nil) should return nil, got %v", err)
	}
}

func TestLoggerComponent(t *testing.T) {
	l := NewLogger("gateway")
	if l.Component() != "gateway" {
		t.Errorf("expected component gateway, got %s", l.Component())
	}
}

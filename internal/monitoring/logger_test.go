package monitoring

import (
	"fmt"
	"testing"
	"time"

	"github.com/banshee-data/wear.report/internal/timeutil"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	// A nil logger mutes output instead of panicking.
	called = false
	SetLogger(nil)
	Logf("test")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestStage(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})

	clock := timeutil.NewMockClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	done := Stage(clock, "activity counts")
	clock.Advance(1500 * time.Millisecond)
	done()

	if want := "activity counts finished in 1.5s"; got != want {
		t.Errorf("Stage logged %q, want %q", got, want)
	}
}

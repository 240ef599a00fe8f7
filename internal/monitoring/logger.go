// Package monitoring holds the diagnostic logger shared by the analysis
// packages.
package monitoring

import (
	"log"
	"time"

	"github.com/banshee-data/wear.report/internal/timeutil"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Stage logs how long an analysis stage took. Call the returned function
// when the stage completes:
//
//	defer monitoring.Stage(clock, "wear detection")()
func Stage(clock timeutil.Clock, name string) func() {
	start := clock.Now()
	return func() {
		Logf("%s finished in %s", name, clock.Since(start).Round(time.Millisecond))
	}
}

package units

import (
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"PT30S", 30 * time.Second, false},
		{"pt1h15m", 75 * time.Minute, false},
		{"P1D", 24 * time.Hour, false},
		{"90s", 90 * time.Second, false},
		{"1h", time.Hour, false},
		{"PT0S", 0, true},
		{"-5m", 0, true},
		{"P1X", 0, true},
		{"P1Y2", 0, true},
		{"PT2M5", 0, true},
		{"P", 0, true},
		{"PT", 0, true},
		{"PT1.5M", 90 * time.Second, false},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDuration(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

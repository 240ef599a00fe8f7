package units

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sosodev/duration"
)

// Every ISO 8601 component ends in a designator, so trailing digits are
// malformed rather than ignored.
var isoDuration = regexp.MustCompile(`^P(?:\d+(?:\.\d+)?[YMWD])*(?:T(?:\d+(?:\.\d+)?[HMS])+)?$`)

// ParseDuration accepts an ISO 8601 duration such as PT30S or P1D, or a Go
// duration string such as 90s. The result must be positive.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	var d time.Duration
	if upper := strings.ToUpper(s); strings.HasPrefix(upper, "P") {
		if upper == "P" || !isoDuration.MatchString(upper) {
			return 0, fmt.Errorf("invalid ISO 8601 duration %q", s)
		}
		iso, err := duration.Parse(upper)
		if err != nil {
			return 0, fmt.Errorf("invalid ISO 8601 duration %q: %w", s, err)
		}
		d = iso.ToTimeDuration()
	} else {
		var err error
		if d, err = time.ParseDuration(s); err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}

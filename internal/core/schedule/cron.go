package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// validIntervals are the supported auto-scrape cadences in hours.
var validIntervals = map[int]bool{4: true, 6: true, 8: true, 12: true, 24: true}

// GenerateCronPattern builds the cron spec for a recurring scrape. With an
// anchor the pattern fires exactly at the anchor's minute, at the anchor hour
// and every intervalHours after it, so a user-chosen time of day is honored
// rather than approximated. Without an anchor it falls back to the plain
// `0 */N * * *` shape.
func GenerateCronPattern(intervalHours int, anchor *time.Time) (string, error) {
	if !validIntervals[intervalHours] {
		return "", fmt.Errorf("invalid auto-scrape interval %dh (want 4, 6, 8, 12 or 24)", intervalHours)
	}

	var spec string
	if anchor == nil {
		spec = fmt.Sprintf("0 */%d * * *", intervalHours)
	} else {
		n := 24 / intervalHours
		hours := make([]int, 0, n)
		for k := 0; k < n; k++ {
			hours = append(hours, (anchor.Hour()+k*intervalHours)%24)
		}
		sort.Ints(hours)
		parts := make([]string, len(hours))
		for i, h := range hours {
			parts[i] = strconv.Itoa(h)
		}
		spec = fmt.Sprintf("%d %s * * *", anchor.Minute(), strings.Join(parts, ","))
	}

	if _, err := cron.ParseStandard(spec); err != nil {
		return "", fmt.Errorf("generated cron %q does not parse: %w", spec, err)
	}
	return spec, nil
}

package chat

import (
	"strconv"
	"strings"
	"time"
)

var uptimeUnits = []struct {
	suffix string
	size   time.Duration
}{
	{"w", 7 * 24 * time.Hour},
	{"d", 24 * time.Hour},
	{"h", time.Hour},
	{"m", time.Minute},
	{"s", time.Second},
}

// FormatUptime renders d using at most four non-zero units, largest first,
// rounding the smallest unit shown: 90s is "1m30s", 26h is "1d2h" and
// 1w2d3h4m59s is "1w2d3h5m". Anything under half a second is "0s".
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(smallestShownUnit(d))
	if d < time.Second {
		return "0s"
	}

	var sb strings.Builder
	parts := 0
	for _, u := range uptimeUnits {
		if parts == 4 {
			break
		}
		n := d / u.size
		if n == 0 {
			continue
		}
		d -= n * u.size
		sb.WriteString(strconv.FormatInt(int64(n), 10))
		sb.WriteString(u.suffix)
		parts++
	}
	return sb.String()
}

// smallestShownUnit is the size of the fourth non-zero unit of d, or a second
// when d has fewer.
func smallestShownUnit(d time.Duration) time.Duration {
	parts := 0
	for _, u := range uptimeUnits {
		n := d / u.size
		if n == 0 {
			continue
		}
		d -= n * u.size
		if parts++; parts == 4 {
			return u.size
		}
	}
	return time.Second
}

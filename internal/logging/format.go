package logging

import (
	"fmt"
	"time"
)

// TimeStamp renders t as the bracketed wall clock prefix used on the console.
func TimeStamp(t time.Time) string {
	return t.Format("[15:04:05]")
}

// FormatDuration renders d in seconds with two decimals when it is at least
// one second, and in whole milliseconds otherwise.
func FormatDuration(d time.Duration) string {
	if d >= time.Second {
		return fmt.Sprintf("%.2f s", d.Seconds())
	}
	return fmt.Sprintf("%d ms", d.Round(time.Millisecond).Milliseconds())
}

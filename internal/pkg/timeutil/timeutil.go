package timeutil

import (
	"fmt"
	"time"
)

// FormatRemaining renders a wait as "Xh Ym". Seconds round up so a
// non-zero wait never prints as "0h 0m".
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "0h 0m"
	}
	minutes := int64((d + time.Minute - 1) / time.Minute)
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

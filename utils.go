package go_aurena

import "fmt"

// FormatClock formats milliseconds as HH:MM:SS. Negative values render as zero.
func FormatClock(ms int) string {
	if ms < 0 {
		ms = 0
	}

	secs := ms / 1000
	return fmt.Sprintf("%02d:%02d:%02d", (secs/3600)%24, (secs/60)%60, secs%60)
}

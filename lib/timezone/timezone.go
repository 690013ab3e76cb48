package timezone

import "time"

// upstream reporting windows (24h/7d/30d) roll over on UTC dates, so all
// timestamps the process produces are pinned to UTC regardless of where the
// server happens to run
func Now() time.Time {
	return time.Now().UTC()
}

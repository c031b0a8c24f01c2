package quota

import (
	"time"

	"github.com/kosthub/wifi-portal/internal/models"
)

// windowStart returns the start of the calendar window containing now, in
// now's location. Windows are calendar-aligned rather than rolling so a
// user's allowance resets at predictable local times.
func windowStart(name string, now time.Time) time.Time {
	year, month, day := now.Date()
	midnight := time.Date(year, month, day, 0, 0, 0, 0, now.Location())

	switch name {
	case models.WindowDaily:
		return midnight
	case models.WindowWeekly:
		// ISO week, Monday start.
		offset := int(now.Weekday()-time.Monday+7) % 7
		return midnight.AddDate(0, 0, -offset)
	case models.WindowMonthly:
		return time.Date(year, month, 1, 0, 0, 0, 0, now.Location())
	}

	// Unknown names cannot reach here; Quota.Validate rejects them at
	// policy write time.
	return midnight
}

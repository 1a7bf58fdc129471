// Package booking turns stored bookings into calendar views and detects
// double bookings.
package booking

import (
	"math"
	"time"

	"github.com/rentalsync/backend/internal/storage/models"
)

// DisplayDateLayout formats conflict date ranges, e.g. "Sat Jun 01 2024".
const DisplayDateLayout = "Mon Jan 02 2006"

const day = 24 * time.Hour

// Overlaps reports whether [s1,e1) and [s2,e2) intersect. Ranges that only
// touch (checkout day equals next checkin) do not overlap.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// OverlapDays is the length of the intersection of two ranges in whole days,
// rounded up. Zero when they do not overlap.
func OverlapDays(s1, e1, s2, e2 time.Time) int {
	if !Overlaps(s1, e1, s2, e2) {
		return 0
	}

	start := s1
	if s2.After(start) {
		start = s2
	}
	end := e1
	if e2.Before(end) {
		end = e2
	}

	days := int(math.Ceil(float64(end.Sub(start)) / float64(day)))
	if days < 0 {
		return 0
	}
	return days
}

// Detect groups events by property and reports every overlapping pair.
// Properties without conflicts are omitted. Output follows the order in
// which properties first appear in events.
func Detect(events []models.CalendarEvent) []models.ConflictDetection {
	var order []string
	byProperty := make(map[string][]models.CalendarEvent)
	for _, ev := range events {
		pid := ev.Resource.PropertyID
		if _, seen := byProperty[pid]; !seen {
			order = append(order, pid)
		}
		byProperty[pid] = append(byProperty[pid], ev)
	}

	var out []models.ConflictDetection
	for _, pid := range order {
		group := byProperty[pid]

		var conflicts []models.Conflict
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				if !Overlaps(a.Start, a.End, b.Start, b.End) {
					continue
				}
				conflicts = append(conflicts, models.Conflict{
					Booking1:    side(a),
					Booking2:    side(b),
					OverlapDays: OverlapDays(a.Start, a.End, b.Start, b.End),
				})
			}
		}

		if len(conflicts) > 0 {
			out = append(out, models.ConflictDetection{
				PropertyID:   pid,
				PropertyName: group[0].Resource.PropertyName,
				Conflicts:    conflicts,
			})
		}
	}

	return out
}

// ConflictCount sums the pairwise conflicts across properties.
func ConflictCount(detections []models.ConflictDetection) int {
	n := 0
	for _, d := range detections {
		n += len(d.Conflicts)
	}
	return n
}

func side(ev models.CalendarEvent) models.ConflictBooking {
	return models.ConflictBooking{
		Platform:  ev.Resource.Platform,
		Dates:     ev.Start.Format(DisplayDateLayout) + " - " + ev.End.Format(DisplayDateLayout),
		GuestName: ev.Resource.GuestName,
	}
}

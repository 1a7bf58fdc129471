package calendar

import (
	"regexp"
	"strings"

	"github.com/rentalsync/backend/internal/storage/models"
)

// UnknownPlatform is reported when no platform name can be found.
const UnknownPlatform = "Unknown"

// knownPlatforms is checked in order; the first hit wins.
var knownPlatforms = []struct {
	needle string
	name   string
}{
	{"airbnb", "Airbnb"},
	{"booking", "Booking"},
	{"vrbo", "Vrbo"},
	{"expedia", "Expedia"},
}

var (
	platformPattern = regexp.MustCompile(`(?i)(airbnb|booking|vrbo|expedia)`)
	guestPattern    = regexp.MustCompile(`(?i)guest:\s*([^,\n]+)`)
)

// DetectPlatform derives the booking platform from an event description and
// the feed's product identifier. The source's declared platform is not
// consulted: what the feed says wins.
func DetectPlatform(description, prodID string) string {
	desc := strings.ToLower(description)
	prod := strings.ToLower(prodID)

	for _, p := range knownPlatforms {
		if strings.Contains(desc, p.needle) || strings.Contains(prod, p.needle) {
			return p.name
		}
	}

	if m := platformPattern.FindStringSubmatch(desc); m != nil {
		word := strings.ToLower(m[1])
		return strings.ToUpper(word[:1]) + word[1:]
	}

	return UnknownPlatform
}

// ExtractGuestName looks for a "Guest:" label in the location, then the
// description. Returns nil when neither carries one.
func ExtractGuestName(ev models.ParsedEvent) *string {
	for _, field := range []string{ev.Location, ev.Description} {
		if field == "" {
			continue
		}
		if m := guestPattern.FindStringSubmatch(field); m != nil {
			name := strings.TrimSpace(m[1])
			if name != "" {
				return &name
			}
		}
	}
	return nil
}

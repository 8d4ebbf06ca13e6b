package zoneclock

import (
	"time"

	"go.uber.org/zap"
)

// zoneAliases maps legacy and link identifiers from the IANA database to
// their canonical names. Two identifiers denote the same civil-time rules
// exactly when they canonicalize to the same entry here; sharing an offset
// is never enough.
var zoneAliases = map[string]string{
	// Universal time spellings.
	"UTC":           "UTC",
	"UCT":           "UTC",
	"Universal":     "UTC",
	"Zulu":          "UTC",
	"Etc/UTC":       "UTC",
	"Etc/Universal": "UTC",
	"Etc/Zulu":      "UTC",
	"GMT":           "UTC",
	"GMT0":          "UTC",
	"GMT-0":         "UTC",
	"GMT+0":         "UTC",
	"Greenwich":     "UTC",
	"Etc/GMT":       "UTC",
	"Etc/GMT0":      "UTC",
	"Etc/Greenwich": "UTC",

	// United States.
	"US/Eastern":       "America/New_York",
	"US/Central":       "America/Chicago",
	"US/Mountain":      "America/Denver",
	"US/Pacific":       "America/Los_Angeles",
	"US/Alaska":        "America/Anchorage",
	"US/Hawaii":        "Pacific/Honolulu",
	"US/Arizona":       "America/Phoenix",
	"US/East-Indiana":  "America/Indiana/Indianapolis",
	"US/Michigan":      "America/Detroit",
	"America/Fort_Wayne": "America/Indiana/Indianapolis",
	"America/Indianapolis": "America/Indiana/Indianapolis",

	// Canada and Latin America.
	"Canada/Atlantic":      "America/Halifax",
	"Canada/Central":       "America/Winnipeg",
	"Canada/Eastern":       "America/Toronto",
	"Canada/Mountain":      "America/Edmonton",
	"Canada/Newfoundland":  "America/St_Johns",
	"Canada/Pacific":       "America/Vancouver",
	"Mexico/General":       "America/Mexico_City",
	"Cuba":                 "America/Havana",
	"Jamaica":              "America/Jamaica",
	"Brazil/East":          "America/Sao_Paulo",
	"America/Buenos_Aires": "America/Argentina/Buenos_Aires",

	// Europe.
	"GB":          "Europe/London",
	"GB-Eire":     "Europe/London",
	"Eire":        "Europe/Dublin",
	"Poland":      "Europe/Warsaw",
	"Portugal":    "Europe/Lisbon",
	"Turkey":      "Europe/Istanbul",
	"W-SU":        "Europe/Moscow",
	"Europe/Kiev": "Europe/Kyiv",
	"Iceland":     "Atlantic/Reykjavik",

	// Asia and Oceania.
	"Asia/Calcutta":      "Asia/Kolkata",
	"Asia/Saigon":        "Asia/Ho_Chi_Minh",
	"Asia/Katmandu":      "Asia/Kathmandu",
	"Asia/Rangoon":       "Asia/Yangon",
	"Asia/Chongqing":     "Asia/Shanghai",
	"PRC":                "Asia/Shanghai",
	"Hongkong":           "Asia/Hong_Kong",
	"Singapore":          "Asia/Singapore",
	"Japan":              "Asia/Tokyo",
	"ROK":                "Asia/Seoul",
	"Israel":             "Asia/Jerusalem",
	"Iran":               "Asia/Tehran",
	"Egypt":              "Africa/Cairo",
	"Libya":              "Africa/Tripoli",
	"NZ":                 "Pacific/Auckland",
	"NZ-CHAT":            "Pacific/Chatham",
	"Australia/Canberra": "Australia/Sydney",
	"Australia/ACT":      "Australia/Sydney",
	"Australia/NSW":      "Australia/Sydney",
	"Kwajalein":          "Pacific/Kwajalein",
}

// RegisterAliases extends the alias table, typically from application
// config. Later registrations win.
func RegisterAliases(extra map[string]string) {
	for alias, canonical := range extra {
		if alias == "" || canonical == "" {
			continue
		}
		zoneAliases[alias] = canonical
	}
}

// DisplayLocation is the best-effort display path: when the identifier is
// unknown it substitutes the fallback zone (and finally UTC) instead of
// failing, logging a warning each time. It must never be used for data that
// is persisted or that drives dose-record creation.
func DisplayLocation(zoneID, fallbackID string, log *zap.Logger) *time.Location {
	if loc, err := Location(zoneID); err == nil {
		return loc
	}
	if log != nil {
		log.Warn("unknown zone for display, substituting fallback",
			zap.String("zone", zoneID),
			zap.String("fallback", fallbackID))
	}
	if loc, err := Location(fallbackID); err == nil {
		return loc
	}
	return time.UTC
}

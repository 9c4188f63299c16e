// Package device derives best-effort display labels from User-Agent
// strings. Labels feed the session list UI only and are never a
// security signal.
package device

import "strings"

const unknownLabel = "Unknown device"

// browser match order matters: Edge and Opera embed "Chrome", Chrome
// embeds "Safari".
var browsers = []struct {
	needle string
	name   string
}{
	{"Edg/", "Edge"},
	{"Edge/", "Edge"},
	{"OPR/", "Opera"},
	{"Opera", "Opera"},
	{"Firefox/", "Firefox"},
	{"Chrome/", "Chrome"},
	{"Safari/", "Safari"},
	{"curl/", "curl"},
}

var systems = []struct {
	needle string
	name   string
}{
	{"Windows", "Windows"},
	{"Android", "Android"},
	{"iPhone", "iOS"},
	{"iPad", "iOS"},
	{"Mac OS X", "macOS"},
	{"Macintosh", "macOS"},
	{"CrOS", "ChromeOS"},
	{"Linux", "Linux"},
}

// Label maps a raw User-Agent to a "Browser on OS" display string.
// Unrecognized or empty input yields "Unknown device".
func Label(userAgent string) string {
	ua := strings.TrimSpace(userAgent)
	if ua == "" {
		return unknownLabel
	}

	var browser, system string
	for _, b := range browsers {
		if strings.Contains(ua, b.needle) {
			browser = b.name
			break
		}
	}
	for _, s := range systems {
		if strings.Contains(ua, s.needle) {
			system = s.name
			break
		}
	}

	switch {
	case browser != "" && system != "":
		return browser + " on " + system
	case browser != "":
		return browser
	case system != "":
		return system
	default:
		return unknownLabel
	}
}

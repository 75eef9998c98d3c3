// Package device turns user-agent strings into coarse device families for
// behavioral profiles.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

const Unknown = "Unknown Device"

// Family returns a display name such as "Chrome on Mac OS X". Bots collapse
// to "Bot" and an empty user agent to Unknown.
func Family(userAgent string) string {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return Unknown
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		return "Bot"
	}

	browser, _ := ua.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}
	platform := ua.OSInfo().Name
	if ua.Mobile() && ua.Platform() != "" {
		platform = ua.Platform()
	}
	if platform == "" {
		platform = "Unknown OS"
	}
	return strings.TrimSpace(browser + " on " + platform)
}

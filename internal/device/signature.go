// Package device derives normalized "browser on OS" signatures from
// User-Agent strings for behavioral profiling.
package device

import (
	"strings"

	"github.com/mssola/user_agent"
)

// UnknownSignature is returned for empty or unclassifiable user agents
const UnknownSignature = "Unknown on Unknown"

// browserOverrides are checked in order before delegating to the UA parser.
// Chromium-based proprietary browsers embed the Chrome token, so the
// most-specific token has to win; the parser alone would report them all as
// Chrome.
var browserOverrides = []struct {
	token string
	name  string
}{
	{"YaBrowser/", "Yandex Browser"},
	{"SamsungBrowser/", "Samsung Internet"},
	{"Vivaldi/", "Vivaldi"},
	{"Brave/", "Brave"},
	{"DuckDuckGo/", "DuckDuckGo"},
	{"curl/", "curl"},
	{"Wget/", "Wget"},
	{"python-requests/", "python-requests"},
	{"Go-http-client/", "Go-http-client"},
}

// Signature returns the normalized "Browser on OS" string for a user agent
func Signature(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return UnknownSignature
	}

	ua := user_agent.New(userAgent)

	browser := overrideBrowser(userAgent)
	if browser == "" {
		browser, _ = ua.Browser()
	}
	if browser == "" {
		browser = "Unknown"
	}

	os := ua.OSInfo().Name
	if os == "" {
		os = "Unknown"
	}

	return browser + " on " + os
}

func overrideBrowser(userAgent string) string {
	for _, o := range browserOverrides {
		if strings.Contains(userAgent, o.token) {
			return o.name
		}
	}
	return ""
}

package config

// DefaultExemptDomains returns hosts whose tabs are never closed
// automatically. Matching is by substring of the tab's hostname, so
// "docs.google.com" also covers "docs.google.com.au".
func DefaultExemptDomains() []string {
	return []string{
		// Documents & collaboration
		"docs.google.com",
		"sheets.google.com",
		"meet.google.com",

		// Forms & surveys
		"surveymonkey.com",
	}
}

// DefaultInternalSchemes returns URL prefixes of privileged browser pages
// that are never written to the closed-tab history.
func DefaultInternalSchemes() []string {
	return []string{
		"chrome://",
		"edge://",
		"brave://",
		"about:",
		"chrome-extension://",
		"moz-extension://",
		"devtools://",
		"view-source:",
	}
}

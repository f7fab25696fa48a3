package runner

import (
	"math/rand"
	"net/http"
)

// HeaderProfile is one browser-shaped set of request headers. The user agent
// comes from the robots policy; these cover the rest so requests do not look
// like a bare Go client.
type HeaderProfile struct {
	Accept         string
	AcceptLanguage string
	SecFetchDest   string
	SecFetchMode   string
	SecFetchSite   string
}

var headerProfiles = []HeaderProfile{
	{
		Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		AcceptLanguage: "en-US,en;q=0.9",
		SecFetchDest:   "document",
		SecFetchMode:   "navigate",
		SecFetchSite:   "none",
	},
	{
		Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		AcceptLanguage: "en-GB,en;q=0.9",
		SecFetchDest:   "document",
		SecFetchMode:   "navigate",
		SecFetchSite:   "same-origin",
	},
	{
		Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		AcceptLanguage: "en-US,en;q=0.8,de;q=0.5",
		SecFetchDest:   "document",
		SecFetchMode:   "navigate",
		SecFetchSite:   "none",
	},
}

// pickHeaderProfile selects the profile for one fetch and its retries;
// switching headers between retries of the same URL is itself a fingerprint.
func pickHeaderProfile() HeaderProfile {
	return headerProfiles[rand.Intn(len(headerProfiles))]
}

func (p HeaderProfile) apply(req *http.Request, userAgent string) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", p.Accept)
	req.Header.Set("Accept-Language", p.AcceptLanguage)
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	if p.SecFetchDest != "" {
		req.Header.Set("Sec-Fetch-Dest", p.SecFetchDest)
		req.Header.Set("Sec-Fetch-Mode", p.SecFetchMode)
		req.Header.Set("Sec-Fetch-Site", p.SecFetchSite)
	}
}

package prolific

import (
	"net/http"
	"strings"
)

// Operation names, also used as rate-limit keys and metric labels.
const (
	OpListStudies  = "list_studies"
	OpReserveStudy = "reserve_study"
	OpRenewToken   = "renew_token"
)

const (
	desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/116.0.5845.111 Safari/537.36"
	mobileUserAgent  = "Mozilla/5.0 (Linux; Android 8.0.0; SM-G965F Build/R16NW) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/116.0.0.0 Mobile Safari/537.36"
)

// headerProfile is the browser-like header set one operation sends.
// The upstream treats requests without these as anomalous.
type headerProfile struct {
	headers [][2]string
	origin  bool
	referer bool
}

var profiles = map[string]headerProfile{
	OpListStudies: {
		headers: [][2]string{
			{"Accept", "application/json, text/plain, */*"},
			{"Accept-Language", "pl-PL,pl;q=0.9,en-US;q=0.8,en;q=0.7"},
			{"Cache-Control", "no-cache"},
			{"Dnt", "1"},
			{"Pragma", "no-cache"},
			{"Sec-Fetch-Dest", "empty"},
			{"Sec-Fetch-Mode", "cors"},
			{"Sec-Fetch-Site", "same-site"},
			{"User-Agent", mobileUserAgent},
		},
		origin:  true,
		referer: true,
	},
	OpReserveStudy: {
		headers: [][2]string{
			{"Accept", "application/json, text/plain, */*"},
			{"Accept-Language", "en-US,en;q=0.9"},
			{"Content-Type", "application/json"},
			{"Sec-Ch-Ua-Mobile", "?0"},
			{"Sec-Ch-Ua-Platform", `""`},
			{"Sec-Fetch-Dest", "empty"},
			{"Sec-Fetch-Mode", "cors"},
			{"Sec-Fetch-Site", "same-site"},
			{"User-Agent", desktopUserAgent},
			{"X-Datadog-Origin", "rum"},
			{"X-Datadog-Sampling-Priority", "1"},
		},
		origin:  true,
		referer: true,
	},
	OpRenewToken: {
		headers: [][2]string{
			{"Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"},
			{"Accept-Language", "en-US,en;q=0.9"},
			{"Sec-Ch-Ua-Mobile", "?0"},
			{"Sec-Ch-Ua-Platform", `""`},
			{"Sec-Fetch-Dest", "iframe"},
			{"Sec-Fetch-Mode", "navigate"},
			{"Sec-Fetch-Site", "same-site"},
			{"Upgrade-Insecure-Requests", "1"},
			{"User-Agent", desktopUserAgent},
		},
		referer: true,
	},
}

// applyProfile sets the header profile for op. appBase is the web app origin
// used for Origin and Referer.
func applyProfile(req *http.Request, op, appBase string) {
	p := profiles[op]
	for _, h := range p.headers {
		req.Header.Set(h[0], h[1])
	}
	appBase = strings.TrimRight(appBase, "/")
	if p.origin {
		req.Header.Set("Origin", appBase)
	}
	if p.referer {
		req.Header.Set("Referer", appBase+"/")
	}
}

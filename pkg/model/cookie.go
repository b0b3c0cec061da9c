package model

// Cookie is one persisted browser cookie.
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
	Secure bool   `json:"secure"`
}

// Cookies is a harvested cookie set.
type Cookies []Cookie

// Get returns the value of the first cookie with the given name.
func (cs Cookies) Get(name string) (string, bool) {
	for _, c := range cs {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// SessionTriple holds the three cookies the token renewal round trip needs.
type SessionTriple struct {
	SessionID string
	CSRFToken string
	SP        string
}

// Triple extracts sessionid, csrftoken and sp. ok is false if any is missing.
func (cs Cookies) Triple() (SessionTriple, bool) {
	sid, ok1 := cs.Get("sessionid")
	csrf, ok2 := cs.Get("csrftoken")
	sp, ok3 := cs.Get("sp")
	return SessionTriple{SessionID: sid, CSRFToken: csrf, SP: sp}, ok1 && ok2 && ok3 && sid != "" && csrf != ""
}

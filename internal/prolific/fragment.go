package prolific

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseAccessToken extracts access_token from the fragment of a redirect Location,
// e.g. "https://app/silent-renew.html#token_type=Bearer&access_token=ABC123&expires_in=3600".
func ParseAccessToken(location string) (string, error) {
	_, fragment, found := strings.Cut(location, "#")
	if !found || fragment == "" {
		return "", fmt.Errorf("location has no fragment")
	}
	values, err := url.ParseQuery(fragment)
	if err != nil {
		return "", fmt.Errorf("malformed fragment: %w", err)
	}
	token := values.Get("access_token")
	if token == "" {
		return "", fmt.Errorf("fragment has no access_token")
	}
	return token, nil
}

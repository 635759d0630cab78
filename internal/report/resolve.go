package report

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// DefaultProfileBaseURL is the Polymarket profile API used to map
// usernames to proxy wallet addresses.
const DefaultProfileBaseURL = "https://polymarket.com/api/profile"

var profileURLPattern = regexp.MustCompile(`polymarket\.com/@([\w-]+)`)

// ResolveWallet maps a wallet identifier to a lowercase address.
// Accepted forms: a 0x address, @username, a bare username, or a
// polymarket.com profile URL. Returns the resolved address and the
// username when one was involved.
func ResolveWallet(ctx context.Context, client *http.Client, profileBaseURL, identifier string) (string, string, error) {
	if strings.HasPrefix(identifier, "0x") && len(identifier) == 42 {
		return strings.ToLower(identifier), "", nil
	}

	username := identifier
	if m := profileURLPattern.FindStringSubmatch(identifier); m != nil {
		username = m[1]
	} else {
		username = strings.TrimPrefix(username, "@")
	}
	if username == "" {
		return "", "", fmt.Errorf("could not parse wallet identifier %q", identifier)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(profileBaseURL, "/")+"/"+username, nil)
	if err != nil {
		return "", "", fmt.Errorf("build profile request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("fetch profile for %s: %w", username, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("could not resolve wallet address for %s: status %d", username, resp.StatusCode)
	}

	var profile struct {
		ProxyWallet string `json:"proxyWallet"`
		Address     string `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return "", "", fmt.Errorf("decode profile for %s: %w", username, err)
	}

	switch {
	case profile.ProxyWallet != "":
		return strings.ToLower(profile.ProxyWallet), username, nil
	case profile.Address != "":
		return strings.ToLower(profile.Address), username, nil
	default:
		return "", "", fmt.Errorf("could not resolve wallet address for %s", username)
	}
}

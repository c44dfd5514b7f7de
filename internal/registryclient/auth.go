package registryclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/facchinm/aktualizr-lite/internal/domain"
)

// BearerChallenge is a parsed "www-authenticate: bearer realm=..." header
// All three parameters are required;
// additional parameters are allowed but ignored.
type BearerChallenge struct {
	Realm   string
	Service string
	Scope   string
}

// ParseBearerChallenge parses the value of a www-authenticate header of the
// form `Bearer realm="...", service="...", scope="..."`.
func ParseBearerChallenge(header string) (BearerChallenge, error) {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return BearerChallenge{}, fmt.Errorf("%w: %q is not a Bearer challenge", domain.ErrBadBearerChallenge, header)
	}

	params := map[string]string{}
	for _, part := range strings.Split(header[len(prefix):], ",") {
		part = strings.TrimSpace(part)
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		val := strings.Trim(strings.TrimSpace(kv[1]), `"`)
		params[key] = val
	}

	c := BearerChallenge{
		Realm:   params["realm"],
		Service: params["service"],
		Scope:   params["scope"],
	}
	if c.Realm == "" || c.Service == "" || c.Scope == "" {
		return BearerChallenge{}, fmt.Errorf("%w: %q is missing realm/service/scope", domain.ErrBadBearerChallenge, header)
	}
	return c, nil
}

// TokenURL constructs the token-endpoint URL realm?service=...&scope=....
func (c BearerChallenge) TokenURL() string {
	v := url.Values{}
	v.Set("service", c.Service)
	v.Set("scope", c.Scope)
	return c.Realm + "?" + v.Encode()
}

type credentialsResponse struct {
	Username string `json:"Username"`
	Secret   string `json:"Secret"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// basicAuthHeader fetches device credentials from the "daemon" transport
// (a separate transport than the one used to talk to the registry) and
// returns a ready-to-use "authorization: basic <b64>" header value.
func basicAuthHeader(ctx context.Context, daemon Transport, credentialsURL string) (string, error) {
	resp, err := daemon.Get(ctx, credentialsURL, nil, defManifestMaxSize)
	if err != nil {
		return "", fmt.Errorf("%w: fetching credentials: %s", domain.ErrAuthFailed, err)
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return "", fmt.Errorf("%w: credentials endpoint returned status %d", domain.ErrAuthFailed, resp.Status)
	}

	var creds credentialsResponse
	if err := json.Unmarshal(resp.Body, &creds); err != nil {
		return "", fmt.Errorf("%w: decoding credentials: %s", domain.ErrAuthFailed, err)
	}
	if creds.Username == "" || creds.Secret == "" {
		return "", fmt.Errorf("%w: empty username or secret", domain.ErrAuthFailed)
	}

	b64 := base64.StdEncoding.EncodeToString([]byte(creds.Username + ":" + creds.Secret))
	return "basic " + b64, nil
}

// bearerAuthHeader exchanges basic credentials for a bearer token at the
// challenge's realm, returning a ready-to-use "authorization: bearer <t>"
// header value.
func bearerAuthHeader(ctx context.Context, daemon Transport, basicHeader string, challenge BearerChallenge) (string, error) {
	headers := http.Header{}
	headers.Set("authorization", basicHeader)

	resp, err := daemon.Get(ctx, challenge.TokenURL(), headers, defManifestMaxSize)
	if err != nil {
		return "", fmt.Errorf("%w: fetching bearer token: %s", domain.ErrAuthFailed, err)
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return "", fmt.Errorf("%w: token endpoint returned status %d", domain.ErrAuthFailed, resp.Status)
	}

	var tok tokenResponse
	if err := json.Unmarshal(resp.Body, &tok); err != nil {
		return "", fmt.Errorf("%w: decoding token: %s", domain.ErrAuthFailed, err)
	}
	if tok.Token == "" {
		return "", fmt.Errorf("%w: empty bearer token", domain.ErrAuthFailed)
	}

	return "bearer " + tok.Token, nil
}

// Package auth verifies uploader credentials against an external identity
// provider. The rest of the registry only ever sees the authenticated
// username; how it was established stays in this package.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrInvalidCredentials is returned for a well-formed but wrong
// username/password pair.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Provider verifies a username/password pair and returns the canonical
// authenticated username.
type Provider interface {
	Authenticate(ctx context.Context, username, password string) (string, error)
}

// StaticProvider is a fixed credential map, used for development and tests.
type StaticProvider map[string]string

// Authenticate implements Provider.
func (p StaticProvider) Authenticate(_ context.Context, username, password string) (string, error) {
	want := p[username]
	if subtle.ConstantTimeCompare([]byte(password), []byte(want)) != 1 || want == "" {
		return "", ErrInvalidCredentials
	}
	return username, nil
}

// ParseStaticUsers parses "user:pass,user:pass" into a StaticProvider.
func ParseStaticUsers(spec string) (StaticProvider, error) {
	p := StaticProvider{}
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		user, pass, ok := strings.Cut(pair, ":")
		if !ok || user == "" {
			return nil, fmt.Errorf("invalid static user entry %q (want user:password)", pair)
		}
		p[user] = pass
	}
	return p, nil
}

// Auth0Provider authenticates through Auth0's resource-owner password flow
// and resolves the account's username from the userinfo endpoint.
type Auth0Provider struct {
	baseURL  string
	clientID string
	client   *http.Client
}

// NewAuth0Provider creates a provider for the given Auth0 domain.
func NewAuth0Provider(domain, clientID string) *Auth0Provider {
	return &Auth0Provider{
		baseURL:  "https://" + domain,
		clientID: clientID,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Authenticate implements Provider.
func (p *Auth0Provider) Authenticate(ctx context.Context, username, password string) (string, error) {
	token, err := p.requestToken(ctx, username, password)
	if err != nil {
		return "", err
	}
	return p.fetchUsername(ctx, token)
}

func (p *Auth0Provider) requestToken(ctx context.Context, username, password string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"client_id":  p.clientID,
		"username":   username,
		"password":   password,
		"connection": "Username-Password-Authentication",
		"grant_type": "password",
		"scope":      "openid profile",
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/oauth/ro", strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("identity provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		AccessToken string `json:"access_token"`
		Error       string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if result.Error == "invalid_user_password" || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", ErrInvalidCredentials
	}
	if resp.StatusCode != http.StatusOK || result.AccessToken == "" {
		return "", fmt.Errorf("identity provider error: status %d %s", resp.StatusCode, result.Error)
	}
	return result.AccessToken, nil
}

func (p *Auth0Provider) fetchUsername(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/userinfo", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("identity provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("userinfo request failed: status %d", resp.StatusCode)
	}

	var account struct {
		Username string `json:"username"`
		Nickname string `json:"nickname"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return "", fmt.Errorf("failed to decode userinfo response: %w", err)
	}
	if account.Username != "" {
		return account.Username, nil
	}
	if account.Nickname != "" {
		return account.Nickname, nil
	}
	return "", errors.New("userinfo response carries no username")
}

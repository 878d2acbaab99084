package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/studiofoundry/backstage/internal/domain"
)

const (
	identityRequestTimeout = 5 * time.Second
	accountCacheTTL        = 300 // seconds
)

// IdentityGateway talks to the external identity provider. Account
// lookups and session verifications are cached in memcached since the
// middleware hits them on every request.
type IdentityGateway struct {
	client   *http.Client
	mc       *memcache.Client
	endpoint string
	apiKey   string
}

func NewIdentityGateway(mc *memcache.Client, endpoint, apiKey string) *IdentityGateway {
	return &IdentityGateway{
		client:   &http.Client{Timeout: identityRequestTimeout},
		mc:       mc,
		endpoint: endpoint,
		apiKey:   apiKey,
	}
}

type identityAccountResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type identitySessionResponse struct {
	AccountID string `json:"accountId"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

func (g *IdentityGateway) Invite(ctx context.Context, email string, role string) (domain.IdentityAccount, error) {

	body, err := json.Marshal(map[string]string{"email": email, "role": role})
	if err != nil {
		return domain.IdentityAccount{}, err
	}

	var account identityAccountResponse
	err = g.request(ctx, http.MethodPost, "/accounts", bytes.NewReader(body), &account)
	if err != nil {
		return domain.IdentityAccount{}, err
	}

	return domain.IdentityAccount{ID: account.ID, Email: account.Email, Role: account.Role}, nil
}

func (g *IdentityGateway) Get(ctx context.Context, id string) (domain.IdentityAccount, error) {

	cacheKey := "account:" + id
	if item, err := g.mc.Get(cacheKey); err == nil {
		var cached identityAccountResponse
		if err := json.Unmarshal(item.Value, &cached); err == nil {
			return domain.IdentityAccount{ID: cached.ID, Email: cached.Email, Role: cached.Role}, nil
		}
	}

	var account identityAccountResponse
	err := g.request(ctx, http.MethodGet, "/accounts/"+id, nil, &account)
	if err != nil {
		return domain.IdentityAccount{}, err
	}

	if data, err := json.Marshal(account); err == nil {
		g.mc.Set(&memcache.Item{Key: cacheKey, Value: data, Expiration: accountCacheTTL})
	}

	return domain.IdentityAccount{ID: account.ID, Email: account.Email, Role: account.Role}, nil
}

func (g *IdentityGateway) Delete(ctx context.Context, id string) error {

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, g.endpoint+"/accounts/"+id, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return domain.TransientError{Op: "delete account " + id, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return domain.TransientError{Op: "delete account " + id, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	// An already-deleted account counts as success under retry.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	g.mc.Delete("account:" + id)

	return nil
}

func (g *IdentityGateway) VerifySession(ctx context.Context, token string) (domain.Session, error) {

	cacheKey := "session:" + token
	if item, err := g.mc.Get(cacheKey); err == nil {
		var cached identitySessionResponse
		if err := json.Unmarshal(item.Value, &cached); err == nil {
			return domain.Session{AccountID: cached.AccountID, Email: cached.Email, Role: cached.Role}, nil
		}
	}

	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return domain.Session{}, err
	}

	var session identitySessionResponse
	err = g.request(ctx, http.MethodPost, "/sessions/verify", bytes.NewReader(body), &session)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Session{}, domain.ForbiddenError{}
		}
		return domain.Session{}, err
	}

	if data, err := json.Marshal(session); err == nil {
		g.mc.Set(&memcache.Item{Key: cacheKey, Value: data, Expiration: accountCacheTTL})
	}

	return domain.Session{AccountID: session.AccountID, Email: session.Email, Role: session.Role}, nil
}

func (g *IdentityGateway) request(ctx context.Context, method, path string, body *bytes.Reader, response any) error {

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, g.endpoint+path, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, g.endpoint+path, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return domain.TransientError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return domain.TransientError{Op: method + " " + path, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusNotFound:
		return domain.NotFoundError{Resource: path}
	case resp.StatusCode == http.StatusConflict:
		return domain.ConflictError{Resource: path}
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	err = json.NewDecoder(resp.Body).Decode(&response)
	if err != nil {
		return fmt.Errorf("failed to decode response: %v", err)
	}

	return nil
}

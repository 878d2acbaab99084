package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/patrickmn/go-cache"

	"github.com/studiofoundry/backstage"
)

const defaultTimeout = 10 * time.Second

// Client is a typed HTTP client for the backstage API. Entity reads
// are cached briefly since editor frontends poll them aggressively.
type Client struct {
	client  *http.Client
	cache   *cache.Cache
	baseURL string
	token   string
}

func New(baseURL string, token string) *Client {
	return &Client{
		client:  &http.Client{Timeout: defaultTimeout},
		cache:   cache.New(30*time.Second, time.Minute),
		baseURL: baseURL,
		token:   token,
	}
}

func (c *Client) request(ctx context.Context, method, path string, body io.Reader, contentType string, response any) error {

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to perform request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error   string   `json:"error"`
			Missing []string `json:"missing,omitempty"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if response == nil {
		return nil
	}
	err = json.NewDecoder(resp.Body).Decode(response)
	if err != nil {
		return fmt.Errorf("failed to decode response: %v", err)
	}

	return nil
}

func (c *Client) requestJSON(ctx context.Context, method, path string, payload any, response any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.request(ctx, method, path, bytes.NewReader(body), "application/json", response)
}

func (c *Client) GetEntity(ctx context.Context, id string) (backstage.Entity, error) {

	cacheKey := "entity:" + id
	if x, found := c.cache.Get(cacheKey); found {
		return x.(backstage.Entity), nil
	}

	var entity backstage.Entity
	err := c.request(ctx, http.MethodGet, "/api/v1/entities/"+id, nil, "", &entity)
	if err != nil {
		return backstage.Entity{}, err
	}

	c.cache.Set(cacheKey, entity, cache.DefaultExpiration)

	return entity, nil
}

func (c *Client) ListEntities(ctx context.Context, kind string, limit int) ([]backstage.Entity, error) {

	query := url.Values{}
	if kind != "" {
		query.Set("kind", kind)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/entities"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var entities []backstage.Entity
	err := c.request(ctx, http.MethodGet, path, nil, "", &entities)
	return entities, err
}

func (c *Client) CreateEntity(ctx context.Context, entity backstage.Entity) (backstage.Entity, error) {
	var created backstage.Entity
	err := c.requestJSON(ctx, http.MethodPost, "/api/v1/entities", entity, &created)
	return created, err
}

func (c *Client) UpdateEntity(ctx context.Context, entity backstage.Entity) (backstage.Entity, error) {
	var updated backstage.Entity
	err := c.requestJSON(ctx, http.MethodPut, "/api/v1/entities/"+entity.ID, entity, &updated)
	if err == nil {
		c.cache.Delete("entity:" + entity.ID)
	}
	return updated, err
}

func (c *Client) DeleteEntity(ctx context.Context, id string) (backstage.OperationResult, error) {
	var result backstage.OperationResult
	err := c.request(ctx, http.MethodDelete, "/api/v1/entities/"+id, nil, "", &result)
	if err == nil {
		c.cache.Delete("entity:" + id)
	}
	return result, err
}

func (c *Client) Publish(ctx context.Context, id string) (backstage.PublishResult, error) {
	var result backstage.PublishResult
	err := c.request(ctx, http.MethodPost, "/api/v1/entities/"+id+"/publish", nil, "", &result)
	if err == nil {
		c.cache.Delete("entity:" + id)
	}
	return result, err
}

func (c *Client) Unpublish(ctx context.Context, id string) error {
	err := c.request(ctx, http.MethodPost, "/api/v1/entities/"+id+"/unpublish", nil, "", nil)
	if err == nil {
		c.cache.Delete("entity:" + id)
	}
	return err
}

func (c *Client) UploadAsset(ctx context.Context, id, slot string, data []byte, contentType string) (backstage.AssetRef, error) {
	var ref backstage.AssetRef
	err := c.request(ctx, http.MethodPost, "/api/v1/entities/"+id+"/assets/"+slot, bytes.NewReader(data), contentType, &ref)
	if err == nil {
		c.cache.Delete("entity:" + id)
	}
	return ref, err
}

func (c *Client) DetachAsset(ctx context.Context, id, key string) (backstage.OperationResult, error) {
	var result backstage.OperationResult
	path := "/api/v1/entities/" + id + "/assets?key=" + url.QueryEscape(key)
	err := c.request(ctx, http.MethodDelete, path, nil, "", &result)
	if err == nil {
		c.cache.Delete("entity:" + id)
	}
	return result, err
}

func (c *Client) AbandonDraft(ctx context.Context, id string, refs []backstage.AssetRef) (backstage.OperationResult, error) {
	var result backstage.OperationResult
	err := c.requestJSON(ctx, http.MethodPost, "/api/v1/drafts/"+id+"/abandon", map[string]any{"assets": refs}, &result)
	return result, err
}

func (c *Client) InviteAccount(ctx context.Context, email, role string) (backstage.Profile, error) {
	var profile backstage.Profile
	err := c.requestJSON(ctx, http.MethodPost, "/api/v1/accounts", map[string]string{"email": email, "role": role}, &profile)
	return profile, err
}

func (c *Client) DeprovisionAccount(ctx context.Context, id string) (backstage.OperationResult, error) {
	var result backstage.OperationResult
	err := c.request(ctx, http.MethodDelete, "/api/v1/accounts/"+id, nil, "", &result)
	return result, err
}

// WatchProgress follows a progress stream until its final event. The
// id is either the id of the entity or account about to be mutated,
// subscribed before issuing the mutation, or an operation id for a run
// already in flight. Events are delivered on the returned channel,
// which closes when the stream ends.
func (c *Client) WatchProgress(ctx context.Context, id string) (<-chan backstage.ProgressEvent, error) {

	wsURL, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %v", err)
	}
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = "/api/v1/progress/" + id

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial progress stream: %v", err)
	}

	events := make(chan backstage.ProgressEvent)
	go func() {
		defer close(events)
		defer conn.Close()
		for {
			var event backstage.ProgressEvent
			if err := conn.ReadJSON(&event); err != nil {
				return
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
			if event.Final {
				return
			}
		}
	}()

	return events, nil
}

package gateway

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/studiofoundry/backstage"
	"github.com/studiofoundry/backstage/internal/domain"
)

const assetRequestTimeout = 10 * time.Second

// AssetStoreGateway talks to the object-storage service over its HTTP
// API. Every call is idempotent: a PUT to an existing key overwrites
// it, a DELETE of a missing key succeeds.
type AssetStoreGateway struct {
	client     *http.Client
	endpoint   string
	token      string
	publicBase string
}

func NewAssetStoreGateway(endpoint, token, publicBase string) *AssetStoreGateway {
	return &AssetStoreGateway{
		client:     &http.Client{Timeout: assetRequestTimeout},
		endpoint:   endpoint,
		token:      token,
		publicBase: publicBase,
	}
}

func (g *AssetStoreGateway) Put(ctx context.Context, key string, data []byte, contentType string) (backstage.AssetRef, error) {

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, g.endpoint+"/"+key, bytes.NewReader(data))
	if err != nil {
		return backstage.AssetRef{}, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+g.token)

	resp, err := g.client.Do(req)
	if err != nil {
		return backstage.AssetRef{}, domain.TransientError{Op: "put " + key, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return backstage.AssetRef{}, domain.TransientError{Op: "put " + key, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return backstage.AssetRef{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return backstage.AssetRef{
		Key: key,
		URL: backstage.PublicAssetURL(g.publicBase, key),
	}, nil
}

func (g *AssetStoreGateway) Delete(ctx context.Context, key string) error {

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, g.endpoint+"/"+key, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.token)

	resp, err := g.client.Do(req)
	if err != nil {
		return domain.TransientError{Op: "delete " + key, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return domain.TransientError{Op: "delete " + key, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	// A key that is already gone is a success: deletions must converge
	// under blind retry.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}

package rendezvous

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"sotto/internal/domain"
)

// ErrBundleNotFound is returned by FetchBundle when the peer never
// registered, or its bundle expired with the broker's memory.
var ErrBundleNotFound = errors.New("rendezvous: no bundle for peer")

// Client talks to the broker's bundle registry over HTTP.
type Client struct {
	base string
	http *http.Client
}

var _ domain.RendezvousClient = (*Client)(nil)

// NewClient returns a client for the broker at base (e.g.
// http://127.0.0.1:8441). A nil httpClient uses http.DefaultClient.
func NewClient(base string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(base, "/"), http: httpClient}
}

// RegisterBundle publishes the local prekey bundle.
func (c *Client) RegisterBundle(ctx context.Context, bundle domain.PrekeyBundle) error {
	body, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("marshal bundle: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/bundles", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("register bundle: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("register bundle: %s", resp.Status)
	}
	return nil
}

// FetchBundle retrieves peer's bundle. Each successful fetch consumes one
// of the peer's one-time prekeys on the broker.
func (c *Client) FetchBundle(ctx context.Context, peer domain.PeerKey) (domain.PrekeyBundle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/v1/bundles/"+peer.String(), nil)
	if err != nil {
		return domain.PrekeyBundle{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.PrekeyBundle{}, fmt.Errorf("fetch bundle: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		return domain.PrekeyBundle{}, fmt.Errorf("%w: %s", ErrBundleNotFound, peer)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.PrekeyBundle{}, fmt.Errorf("fetch bundle: %s", resp.Status)
	}
	var bundle domain.PrekeyBundle
	if err := json.NewDecoder(resp.Body).Decode(&bundle); err != nil {
		return domain.PrekeyBundle{}, fmt.Errorf("decode bundle: %w", err)
	}
	return bundle, nil
}

// WSURL derives the hub's websocket URL from an HTTP base URL.
func WSURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/v1/ws"
}

package activitypub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const (
	defaultFetchTimeout = 10 * time.Second
	keyCacheTTL         = time.Hour
	userAgent           = "convene-events/1.0"
)

// RemoteActor is the subset of a fetched remote profile the server acts on.
// Raw holds the full document for storage alongside a follower record.
type RemoteActor struct {
	ID                string          `json:"id"`
	Inbox             string          `json:"inbox"`
	PreferredUsername string          `json:"preferredUsername"`
	Name              string          `json:"name"`
	PublicKey         *PublicKey      `json:"publicKey"`
	Raw               json.RawMessage `json:"-"`
}

type cachedKey struct {
	pem       string
	fetchedAt time.Time
}

// RemoteClient fetches remote actor documents and their public keys.
// Fetched keys are cached in memory; a key rotation shows up after the TTL
// or a restart, and stale keys only ever cause a verification failure, not
// a false acceptance.
type RemoteClient struct {
	http *resty.Client

	mu   sync.Mutex
	keys map[string]cachedKey
	now  func() time.Time
}

// NewRemoteClient builds a client with sane timeouts for cross-server calls.
func NewRemoteClient(timeout time.Duration) *RemoteClient {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &RemoteClient{
		http: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", userAgent),
		keys: make(map[string]cachedKey),
		now:  time.Now,
	}
}

// FetchActor dereferences a remote actor URL.
func (c *RemoteClient) FetchActor(ctx context.Context, actorURL string) (*RemoteActor, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", ContentType).
		Get(actorURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrActorUnreachable, actorURL, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: %s returned %d", ErrActorUnreachable, actorURL, resp.StatusCode())
	}

	var actor RemoteActor
	if err := json.Unmarshal(resp.Body(), &actor); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrActorUnreachable, actorURL, err)
	}
	actor.Raw = append(json.RawMessage(nil), resp.Body()...)
	return &actor, nil
}

// FetchPublicKey resolves a keyId from a Signature header to a PEM key.
// The keyId is usually the actor URL with a fragment; the fetched document
// may be the actor itself or a standalone key document, and both shapes
// carry publicKeyPem the same way.
func (c *RemoteClient) FetchPublicKey(ctx context.Context, keyID string) (string, error) {
	c.mu.Lock()
	cached, ok := c.keys[keyID]
	c.mu.Unlock()
	if ok && c.now().Sub(cached.fetchedAt) < keyCacheTTL {
		return cached.pem, nil
	}

	actor, err := c.FetchActor(ctx, keyID)
	if err != nil {
		return "", err
	}
	if actor.PublicKey == nil || actor.PublicKey.PublicKeyPEM == "" {
		return "", fmt.Errorf("%w: %s", ErrNoPublicKey, keyID)
	}

	c.mu.Lock()
	c.keys[keyID] = cachedKey{pem: actor.PublicKey.PublicKeyPEM, fetchedAt: c.now()}
	c.mu.Unlock()

	zerolog.Ctx(ctx).Debug().Str("key_id", keyID).Msg("fetched remote public key")
	return actor.PublicKey.PublicKeyPEM, nil
}

// Post delivers a signed activity body to a remote inbox. Headers carries
// the Date, Digest, and Signature values computed for this destination.
func (c *RemoteClient) Post(ctx context.Context, inbox string, body []byte, headers map[string]string) (int, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", ContentType).
		SetHeaders(headers).
		SetBody(body).
		Post(inbox)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrDeliveryFailed, inbox, err)
	}
	if !resp.IsSuccess() {
		return resp.StatusCode(), fmt.Errorf("%w: %s returned %d", ErrDeliveryFailed, inbox, resp.StatusCode())
	}
	return resp.StatusCode(), nil
}

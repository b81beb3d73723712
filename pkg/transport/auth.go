package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"sunbird-adapter/pkg/tokencache"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// expirySkew renews cached tokens slightly before the issuer expires them.
const expirySkew = 30 * time.Second

// Authorizer decorates an outbound request with credentials.
type Authorizer interface {
	Authorize(ctx context.Context, req *http.Request) error
}

// Invalidator is implemented by authorizers whose credentials can go stale.
// The dispatcher calls Invalidate when the endpoint rejects a request with 401.
type Invalidator interface {
	Invalidate()
}

// NoAuth leaves requests untouched.
type NoAuth struct{}

func (NoAuth) Authorize(context.Context, *http.Request) error { return nil }

// BasicAuth sends static username/password credentials.
type BasicAuth struct {
	Username string
	Password string
}

func (b BasicAuth) Authorize(_ context.Context, req *http.Request) error {
	if b.Username == "" {
		return errors.New("basic auth username is required")
	}
	req.SetBasicAuth(b.Username, b.Password)
	return nil
}

// OAuth2 fetches client-credentials tokens and keeps them in a shared cache.
type OAuth2 struct {
	cfg    clientcredentials.Config
	cache  *tokencache.Cache
	client *http.Client
	key    string
}

// NewOAuth2 builds a client-credentials authorizer. client is used for token
// requests only and may be nil.
func NewOAuth2(cfg clientcredentials.Config, cache *tokencache.Cache, client *http.Client) (*OAuth2, error) {
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, errors.New("oauth2 token url is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("oauth2 client id is required")
	}
	if cache == nil {
		return nil, errors.New("token cache is required")
	}

	return &OAuth2{
		cfg:    cfg,
		cache:  cache,
		client: client,
		key:    "oauth2:" + cfg.TokenURL + ":" + cfg.ClientID + ":" + strings.Join(cfg.Scopes, " "),
	}, nil
}

func (o *OAuth2) Authorize(ctx context.Context, req *http.Request) error {
	if token, ok := o.cache.Get(o.key); ok {
		req.Header.Set("Authorization", token)
		return nil
	}

	if o.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.client)
	}

	token, err := o.cfg.Token(ctx)
	if err != nil {
		return fmt.Errorf("fetch oauth2 token: %w", err)
	}

	header := token.Type() + " " + token.AccessToken
	ttl := time.Duration(0)
	if !token.Expiry.IsZero() {
		ttl = time.Until(token.Expiry) - expirySkew
	}
	if token.Expiry.IsZero() || ttl > 0 {
		o.cache.PutWithTTL(o.key, header, ttl)
	}

	req.Header.Set("Authorization", header)
	return nil
}

// Invalidate drops the cached token so the next Authorize fetches a new one.
func (o *OAuth2) Invalidate() {
	o.cache.Delete(o.key)
}

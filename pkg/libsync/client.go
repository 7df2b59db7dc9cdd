package libsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DefaultTimeout is the timeout used by NewDefaultClient.
const DefaultTimeout = 30 * time.Second

type (
	// A Client defines all interactions that can be performed on a sync server.
	Client interface {
		// Endpoint returns the server URL.
		Endpoint() string
		// Health checks the server is reachable.
		Health(ctx context.Context) error
		// Register creates an account and authenticates the Client.
		Register(ctx context.Context, email, password string) (Auth, error)
		// Login authenticates the Client.
		Login(ctx context.Context, email, password string) (Auth, error)
		// BearerToken returns the token used for authenticated requests.
		BearerToken() string
		// SetBearerToken sets the token used for authenticated requests.
		SetBearerToken(token string)
		// MasterKey returns the wrapped bulk key stored by the server.
		MasterKey(ctx context.Context) (MasterKey, error)
		// UploadMasterKey stores the wrapped bulk key. It fails with ErrAlreadyExists if one is already stored.
		UploadMasterKey(ctx context.Context, wrapped string) error
		// ChangeMasterKeyPassword replaces the wrapped form of the bulk key.
		ChangeMasterKeyPassword(ctx context.Context, wrapped string) error
		// Push submits local changes.
		Push(ctx context.Context, req PushRequest) (PushResponse, error)
		// Pull returns the changes strictly newer than since.
		Pull(ctx context.Context, since string) (PullResponse, error)
	}

	p      map[string]any
	client struct {
		http     *http.Client
		endpoint string
		bearer   string
		retry    RetryConfig
	}
)

// NewDefaultClient returns a new Client with a default HTTP client.
func NewDefaultClient(endpoint string) (Client, error) {
	return NewClient(&http.Client{Timeout: DefaultTimeout}, endpoint)
}

// NewClient returns a new Client.
func NewClient(c *http.Client, endpoint string) (Client, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.Wrap(ErrConfiguration, "no endpoint provided")
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "could not parse endpoint")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Wrapf(ErrConfiguration, "unsupported endpoint scheme %q", u.Scheme)
	}

	return &client{
		http:     c,
		endpoint: endpoint,
		retry:    DefaultRetryConfig(),
	}, nil
}

func (c *client) Endpoint() string {
	return c.endpoint
}

func (c *client) BearerToken() string {
	return c.bearer
}

func (c *client) SetBearerToken(token string) {
	c.bearer = token
}

func (c *client) Health(ctx context.Context) error {
	_, err := WithRetry(ctx, c.retry, "health", func() (struct{}, error) {
		var health struct {
			Status string `json:"status"`
		}
		if err := c.do(ctx, http.MethodGet, "/health", nil, nil, false, &health); err != nil {
			return struct{}{}, err
		}
		if health.Status != "ok" {
			return struct{}{}, &Error{Kind: ErrTransport, Message: fmt.Sprintf("server status: %s", health.Status)}
		}
		return struct{}{}, nil
	})
	return err
}

func (c *client) Register(ctx context.Context, email, password string) (Auth, error) {
	return c.authenticate(ctx, "/auth/register", email, password)
}

func (c *client) Login(ctx context.Context, email, password string) (Auth, error) {
	return c.authenticate(ctx, "/auth/login", email, password)
}

func (c *client) authenticate(ctx context.Context, route, email, password string) (Auth, error) {
	var auth Auth
	err := c.do(ctx, http.MethodPost, route, nil, p{"email": email, "password": password}, false, &auth)
	if err != nil {
		return auth, err
	}

	if auth.Token == "" {
		return auth, malformedError(errors.New("missing token"))
	}
	c.bearer = auth.Token
	return auth, nil
}

func (c *client) MasterKey(ctx context.Context) (MasterKey, error) {
	return WithRetry(ctx, c.retry, "master-key", func() (MasterKey, error) {
		var mk MasterKey
		err := c.do(ctx, http.MethodGet, "/auth/master-key", nil, nil, true, &mk)
		return mk, err
	})
}

func (c *client) UploadMasterKey(ctx context.Context, wrapped string) error {
	return c.do(ctx, http.MethodPost, "/auth/master-key", nil, p{"encryptedMasterKey": wrapped}, true, nil)
}

func (c *client) ChangeMasterKeyPassword(ctx context.Context, wrapped string) error {
	return c.do(ctx, http.MethodPost, "/auth/change-master-key-password", nil, p{"newEncryptedMasterKey": wrapped}, true, nil)
}

func (c *client) Push(ctx context.Context, req PushRequest) (PushResponse, error) {
	if req.Entries == nil {
		req.Entries = []PushItem{}
	}
	if req.Categories == nil {
		req.Categories = []PushItem{}
	}

	var res PushResponse
	err := c.do(ctx, http.MethodPost, "/sync/push", nil, req, true, &res)
	return res, err
}

func (c *client) Pull(ctx context.Context, since string) (PullResponse, error) {
	query := url.Values{}
	query.Set("since", since)

	return WithRetry(ctx, c.retry, "pull", func() (PullResponse, error) {
		var res PullResponse
		if err := c.do(ctx, http.MethodGet, "/sync/changes", query, nil, true, &res); err != nil {
			return res, err
		}

		if _, err := ParseTime(res.CurrentTimestamp); err != nil {
			return res, malformedError(err)
		}
		return res, nil
	})
}

func (c *client) do(ctx context.Context, method, route string, query url.Values, payload any, authenticated bool, out any) error {
	if authenticated && c.bearer == "" {
		return errors.Wrap(ErrConfiguration, "not authenticated")
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return errors.Wrap(err, "could not parse endpoint")
	}
	u.Path = path.Join(u.Path, route)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	//
	// Build request
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, "could not serialize request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return errors.Wrap(err, "could not build request")
	}
	req.Close = true
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	if authenticated {
		req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.bearer))
	}

	//
	// Perform request
	res, err := c.http.Do(req)
	if err != nil {
		return transportError("could not perform request", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		return parseError(res.Body, res.StatusCode)
	}

	//
	// Process response
	if out == nil {
		return nil
	}
	if err = json.NewDecoder(res.Body).Decode(out); err != nil {
		return malformedError(err)
	}
	return nil
}

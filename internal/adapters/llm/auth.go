package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/0xcro3dile/incidentrag-go/internal/domain/ports"
	"github.com/0xcro3dile/incidentrag-go/internal/metrics"
)

const (
	DefaultAuthURL = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	DefaultScope   = "GIGACHAT_API_PERS"

	// tokenSkew is subtracted from expires_at so a token is never used in its last seconds.
	tokenSkew = 60 * time.Second
)

// Credentials identify the client in the OAuth client-credentials exchange.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Scope        string
}

// OAuthTokenSource exchanges client credentials for a bearer token.
type OAuthTokenSource struct {
	authURL string
	creds   Credentials
	client  *http.Client
	cache   bool
	logger  *zap.Logger

	refresh singleflight.Group

	mu      sync.Mutex
	token   string
	expires time.Time
	now     func() time.Time
}

// NewOAuthTokenSource creates a token source. With cache disabled every call performs an exchange.
func NewOAuthTokenSource(authURL string, creds Credentials, client *http.Client, cache bool, logger *zap.Logger) *OAuthTokenSource {
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	if creds.Scope == "" {
		creds.Scope = DefaultScope
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OAuthTokenSource{
		authURL: authURL,
		creds:   creds,
		client:  client,
		cache:   cache,
		logger:  logger,
		now:     time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"` // unix milliseconds
}

// Token returns a cached token while it is still valid, otherwise performs an exchange.
// Concurrent callers that miss the cache share one exchange; no lock is held while
// it is in flight.
func (s *OAuthTokenSource) Token(ctx context.Context) (string, error) {
	if !s.cache {
		tok, err := s.fetch(ctx)
		if err != nil {
			return "", err
		}
		return tok.AccessToken, nil
	}

	if tok, ok := s.cached(); ok {
		return tok, nil
	}

	ch := s.refresh.DoChan("token", func() (any, error) {
		if tok, ok := s.cached(); ok {
			return tok, nil
		}
		tok, err := s.fetch(ctx)
		if err != nil {
			return "", err
		}

		s.mu.Lock()
		s.token = tok.AccessToken
		s.expires = time.UnixMilli(tok.ExpiresAt).Add(-tokenSkew)
		expires := s.expires
		s.mu.Unlock()

		s.logger.Debug("access token refreshed", zap.Time("expires", expires))
		return tok.AccessToken, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", &ports.GatewayError{Op: "token", Timeout: errors.Is(ctx.Err(), context.DeadlineExceeded), Err: ctx.Err()}
	}
}

func (s *OAuthTokenSource) cached() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && s.now().Before(s.expires) {
		return s.token, true
	}
	return "", false
}

func (s *OAuthTokenSource) fetch(ctx context.Context) (*tokenResponse, error) {
	tok, err := s.exchange(ctx)
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.TokenRefreshTotal.WithLabelValues("ok").Inc()
	return tok, nil
}

func (s *OAuthTokenSource) exchange(ctx context.Context) (*tokenResponse, error) {
	form := url.Values{"scope": {s.creds.Scope}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &ports.GatewayError{Op: "token", Err: fmt.Errorf("creating request: %w", err)}
	}
	basic := base64.StdEncoding.EncodeToString([]byte(s.creds.ClientID + ":" + s.creds.ClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("RqUID", uuid.NewString())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &ports.GatewayError{Op: "token", Timeout: isTimeout(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ports.GatewayError{Op: "token", StatusCode: resp.StatusCode, Err: errors.New(bodySnippet(resp.Body))}
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, &ports.GatewayError{Op: "token", StatusCode: resp.StatusCode, Timeout: isTimeout(err), Err: fmt.Errorf("decoding response: %w", err)}
	}
	if tok.AccessToken == "" {
		return nil, &ports.GatewayError{Op: "token", StatusCode: resp.StatusCode, Err: errors.New("response has no access_token")}
	}
	return &tok, nil
}

func bodySnippet(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 512))
	if s := strings.TrimSpace(string(body)); s != "" {
		return s
	}
	return "empty response body"
}

package reddit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// TokenURL is Reddit's OAuth2 token endpoint.
const TokenURL = "https://www.reddit.com/api/v1/access_token"

const requestTimeout = 30 * time.Second

// Credentials identify a Reddit "script" application and the account it acts as.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

// NewHTTPClient returns an http.Client that authenticates every request with a
// password-grant access token, fetching a new one whenever the current token expires.
func NewHTTPClient(ctx context.Context, creds Credentials, userAgent string) *http.Client {
	base := &http.Client{
		Timeout:   requestTimeout,
		Transport: &userAgentTransport{userAgent: userAgent, base: http.DefaultTransport},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	// Password grants carry no refresh token, so expiry is handled by re-authenticating.
	src := oauth2.ReuseTokenSource(nil, &passwordTokenSource{
		ctx:      ctx,
		conf:     conf,
		username: creds.Username,
		password: creds.Password,
	})

	client := oauth2.NewClient(ctx, src)
	client.Timeout = requestTimeout
	return client
}

type passwordTokenSource struct {
	ctx      context.Context
	conf     *oauth2.Config
	username string
	password string
}

func (s *passwordTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.conf.PasswordCredentialsToken(s.ctx, s.username, s.password)
	if err != nil {
		return nil, fmt.Errorf("password grant for %s: %w", s.username, err)
	}
	return tok, nil
}

// userAgentTransport sets the User-Agent Reddit requires on every request, including token requests.
type userAgentTransport struct {
	userAgent string
	base      http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(req)
}

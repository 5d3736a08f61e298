package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// ErrInvalidToken is returned when the Drive authorized-user document is unusable.
var ErrInvalidToken = errors.New("invalid drive token")

// authorizedUser is the OAuth authorized-user document stored in the secret store.
type authorizedUser struct {
	Token        string   `json:"token"`
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	TokenURI     string   `json:"token_uri"`
	Expiry       string   `json:"expiry"`
	Scopes       []string `json:"scopes"`
}

// TokenSource builds a refreshing token source from an authorized-user JSON document.
// The document must carry a refresh token and client credentials; the access token and
// expiry are optional and only avoid an initial refresh.
func TokenSource(ctx context.Context, document []byte) (oauth2.TokenSource, error) {
	var au authorizedUser
	if err := json.Unmarshal(document, &au); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if au.RefreshToken == "" || au.ClientID == "" || au.ClientSecret == "" {
		return nil, fmt.Errorf("%w: refresh_token, client_id and client_secret are required", ErrInvalidToken)
	}

	endpoint := google.Endpoint
	if au.TokenURI != "" {
		endpoint.TokenURL = au.TokenURI
	}

	scopes := au.Scopes
	if len(scopes) == 0 {
		scopes = []string{drive.DriveReadonlyScope}
	}

	cfg := &oauth2.Config{
		ClientID:     au.ClientID,
		ClientSecret: au.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       scopes,
	}

	tok := &oauth2.Token{
		AccessToken:  firstNonEmpty(au.Token, au.AccessToken),
		RefreshToken: au.RefreshToken,
		Expiry:       parseExpiry(au.Expiry),
	}

	return cfg.TokenSource(ctx, tok), nil
}

// NewDriveService creates a Drive v3 client authorized by the token document.
// Extra options are applied after authentication (endpoint overrides in tests).
func NewDriveService(ctx context.Context, document []byte, opts ...option.ClientOption) (*drive.Service, error) {
	ts, err := TokenSource(ctx, document)
	if err != nil {
		return nil, err
	}

	all := append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)

	svc, err := drive.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return svc, nil
}

// parseExpiry accepts RFC 3339 with or without a zone. Unparsable values yield the zero
// time, which makes oauth2 refresh before first use.
func parseExpiry(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}

	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}

	return time.Time{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

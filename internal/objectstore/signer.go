package objectstore

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const signedURLAudience = "notaspese-files"

var ErrInvalidToken = errors.New("invalid or expired file token")

// URLSigner issues short-lived links to stored blobs. The link carries an
// HS256 token whose subject is the object path.
type URLSigner struct {
	secret  []byte
	baseURL string
	now     func() time.Time
}

// NewURLSigner returns a signer producing links of the form
// {baseURL}/files?token=...
func NewURLSigner(secret []byte, baseURL string) *URLSigner {
	return &URLSigner{
		secret:  secret,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// CreateSignedURL returns a link to path valid for ttl.
func (s *URLSigner) CreateSignedURL(path string, ttl time.Duration) (string, error) {
	token, err := s.Sign(path, ttl)
	if err != nil {
		return "", err
	}
	return s.baseURL + "/files?token=" + url.QueryEscape(token), nil
}

// Sign returns the bare token for path.
func (s *URLSigner) Sign(path string, ttl time.Duration) (string, error) {
	if _, err := CleanPath(path); err != nil {
		return "", err
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   path,
		Audience:  jwt.ClaimStrings{signedURLAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign file token: %w", err)
	}
	return signed, nil
}

// Verify checks the token and returns the object path it grants access to.
func (s *URLSigner) Verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(signedURLAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	p, err := CleanPath(claims.Subject)
	if err != nil {
		return "", ErrInvalidToken
	}
	return p, nil
}

// Package session issues and resolves the signed tokens that bind a rendered
// page to its mounted lead form.
package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
)

const (
	defaultTokenName = "lead_form"
	defaultLifetime  = 12 * time.Hour
)

// ErrInvalidToken indicates the token failed signature or decoding checks.
var ErrInvalidToken = errors.New("session: invalid form token")

// ErrExpired indicates the token is older than the configured lifetime.
var ErrExpired = errors.New("session: form token expired")

// ErrInvalidConfig indicates the manager was initialised with missing or invalid options.
var ErrInvalidConfig = errors.New("session: invalid config")

// Config controls token signing and lifetime.
type Config struct {
	// Name is mixed into the signature so tokens cannot be replayed under another name.
	Name     string
	HashKey  []byte
	BlockKey []byte
	Lifetime time.Duration
	Now      func() time.Time
}

// Manager signs form tokens with securecookie.
type Manager struct {
	cfg   Config
	codec *securecookie.SecureCookie
	now   func() time.Time
}

type tokenData struct {
	FormID   string    `json:"fid"`
	IssuedAt time.Time `json:"iat"`
}

// NewManager constructs a Manager. An empty hash key is rejected; use
// GenerateKey for process-local keys.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.HashKey) == 0 {
		return nil, fmt.Errorf("%w: hash key is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = defaultTokenName
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = defaultLifetime
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}

	codec := securecookie.New(cfg.HashKey, cfg.BlockKey)
	codec.SetSerializer(securecookie.JSONEncoder{})
	// Expiry is enforced from IssuedAt instead of the codec timestamp.
	codec.MaxAge(0)

	return &Manager{cfg: cfg, codec: codec, now: nowFn}, nil
}

// Issue returns a signed token naming formID.
func (m *Manager) Issue(formID string) (string, error) {
	formID = strings.TrimSpace(formID)
	if formID == "" {
		return "", errors.New("session: form id is required")
	}
	token, err := m.codec.Encode(m.cfg.Name, tokenData{FormID: formID, IssuedAt: m.now().UTC()})
	if err != nil {
		return "", fmt.Errorf("encode form token: %w", err)
	}
	return token, nil
}

// Resolve verifies token and returns the form ID it names.
func (m *Manager) Resolve(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidToken
	}

	var data tokenData
	if err := m.codec.Decode(m.cfg.Name, token, &data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if data.FormID == "" {
		return "", ErrInvalidToken
	}
	if m.now().UTC().Sub(data.IssuedAt) > m.cfg.Lifetime {
		return "", ErrExpired
	}
	return data.FormID, nil
}

// GenerateKey returns a random key suitable for HashKey.
func GenerateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

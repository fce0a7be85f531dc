package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/chacha20poly1305"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Curve25519.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA-256.
	MethodHS256 SigningMethod = "hs256"
)

// ErrExpired is returned for structurally valid tokens past their expiry.
var ErrExpired = errors.New("access token expired")

// ErrMalformed is returned for every other verification failure.
var ErrMalformed = errors.New("access token malformed")

// Config configures a [Manager].
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration

	// EncryptClaims seals role and school into the env claim.
	EncryptClaims bool
	EncryptionKey []byte

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Claims is the access-token claim set.
type Claims struct {
	UID    string `json:"uid"`
	SID    string `json:"sid"`
	Role   uint8  `json:"rl,omitempty"`
	School string `json:"sch,omitempty"`
	Env    []byte `json:"env,omitempty"`
	jwt.RegisteredClaims
}

type envelope struct {
	Role   uint8  `json:"rl"`
	School string `json:"sch,omitempty"`
}

// Manager mints and verifies access tokens.
type Manager struct {
	config Config
	now    func() time.Time
}

// NewManager validates the configuration and returns a [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	if cfg.EncryptClaims && len(cfg.EncryptionKey) != chacha20poly1305.KeySize {
		return nil, errors.New("claim encryption requires a 32-byte key")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{config: cfg, now: now}, nil
}

// Mint produces a signed access token for the identity and session.
func (m *Manager) Mint(identityID, sessionID string, role uint8, schoolID string) (string, error) {
	now := m.now()
	claims := Claims{
		UID: identityID,
		SID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}

	if m.config.EncryptClaims {
		env, err := m.seal(envelope{Role: role, School: schoolID})
		if err != nil {
			return "", err
		}
		claims.Env = env
	} else {
		claims.Role = role
		claims.School = schoolID
	}

	tok := jwt.NewWithClaims(m.method(), claims)
	key, err := m.signKey()
	if err != nil {
		return "", err
	}
	return tok.SignedString(key)
}

// Parse verifies a presented token and returns its claims with the
// envelope, when present, opened back into the Role and School fields.
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method().Alg() {
			return nil, errors.New("unexpected signing algorithm")
		}
		return m.verifyKey()
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrMalformed
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrMalformed
	}
	if claims.UID == "" || claims.SID == "" {
		return nil, ErrMalformed
	}

	if len(claims.Env) > 0 {
		env, err := m.open(claims.Env)
		if err != nil {
			return nil, ErrMalformed
		}
		claims.Role = env.Role
		claims.School = env.School
		claims.Env = nil
	}

	return claims, nil
}

func (m *Manager) seal(env envelope) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(m.config.EncryptionKey)
	if err != nil {
		return nil, err
	}
	plaintext, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX, chacha20poly1305.NonceSizeX+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (m *Manager) open(sealed []byte) (*envelope, error) {
	if !m.config.EncryptClaims {
		return nil, errors.New("unexpected encrypted envelope")
	}
	aead, err := chacha20poly1305.NewX(m.config.EncryptionKey)
	if err != nil {
		return nil, err
	}
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, errors.New("envelope too short")
	}
	nonce, ciphertext := sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(plaintext, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (m *Manager) method() jwt.SigningMethod {
	if m.config.SigningMethod == MethodHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodEdDSA
}

func (m *Manager) signKey() (interface{}, error) {
	if m.config.SigningMethod == MethodHS256 {
		return m.config.PrivateKey, nil
	}
	return parseEdPrivateKey(m.config.PrivateKey)
}

func (m *Manager) verifyKey() (interface{}, error) {
	if m.config.SigningMethod == MethodHS256 {
		return m.config.PrivateKey, nil
	}
	return parseEdPublicKey(m.config.PublicKey)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}

package service

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/printfleet/internal/integration/domain"
	"golang.org/x/crypto/chacha20poly1305"
	"gorm.io/datatypes"
)

const (
	envelopePlain  = 0
	envelopeSealed = 1
)

type envelope struct {
	Version    int             `json:"version"`
	Nonce      string          `json:"nonce,omitempty"`
	Ciphertext string          `json:"ciphertext,omitempty"`
	Plaintext  json.RawMessage `json:"plaintext,omitempty"`
}

// sealer wraps integration secrets in an XChaCha20-Poly1305 envelope. Without
// a key it writes version 0 plaintext envelopes.
type sealer struct {
	aead cipher.AEAD
}

func newSealer(secret string) (*sealer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return &sealer{}, nil
	}
	sum := sha256.Sum256([]byte(secret))
	aead, err := chacha20poly1305.NewX(sum[:])
	if err != nil {
		return nil, err
	}
	return &sealer{aead: aead}, nil
}

func (s *sealer) enabled() bool {
	return s != nil && s.aead != nil
}

func (s *sealer) seal(value any) (datatypes.JSON, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	env := envelope{Version: envelopePlain, Plaintext: payload}
	if s.enabled() {
		nonce := make([]byte, s.aead.NonceSize())
		if _, err := rand.Read(nonce); err != nil {
			return nil, err
		}
		env = envelope{
			Version:    envelopeSealed,
			Nonce:      base64.RawStdEncoding.EncodeToString(nonce),
			Ciphertext: base64.RawStdEncoding.EncodeToString(s.aead.Seal(nil, nonce, payload, nil)),
		}
	}

	out, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(out), nil
}

// open decodes raw into out. An empty column leaves out untouched.
func (s *sealer) open(raw datatypes.JSON, out any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Version {
	case envelopePlain:
		if len(env.Plaintext) == 0 {
			return nil
		}
		return json.Unmarshal(env.Plaintext, out)
	case envelopeSealed:
		if !s.enabled() {
			return domain.ErrSecretKeyMissing
		}
		nonce, err := base64.RawStdEncoding.DecodeString(env.Nonce)
		if err != nil {
			return fmt.Errorf("decode nonce: %w", err)
		}
		ciphertext, err := base64.RawStdEncoding.DecodeString(env.Ciphertext)
		if err != nil {
			return fmt.Errorf("decode ciphertext: %w", err)
		}
		if len(nonce) != s.aead.NonceSize() {
			return errors.New("invalid nonce size")
		}
		payload, err := s.aead.Open(nil, nonce, ciphertext, nil)
		if err != nil {
			return fmt.Errorf("open envelope: %w", err)
		}
		return json.Unmarshal(payload, out)
	default:
		return fmt.Errorf("unsupported envelope version %d", env.Version)
	}
}

package push

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"
)

const defaultSubject = "mailto:admin@localhost"

// VAPID holds the application server key pair (RFC 8292) used to sign push
// requests.
type VAPID struct {
	publicKey  string // base64url, uncompressed point
	privateKey string // base64url, raw scalar
	subject    string
}

// NewVAPID checks base64url-encoded keys as produced by GenerateVAPIDKeys or
// the usual web-push tooling. The public key must match the private key.
// subject is a mailto: or https: contact for the push service operator.
func NewVAPID(publicKey, privateKey, subject string) (*VAPID, error) {
	if publicKey == "" || privateKey == "" {
		return nil, ErrNotConfigured
	}
	rawPriv, err := decodeBase64URL(privateKey)
	if err != nil {
		return nil, fmt.Errorf("push: decode VAPID private key: %w", err)
	}
	priv, err := ecdsa.ParseRawPrivateKey(elliptic.P256(), rawPriv)
	if err != nil {
		return nil, fmt.Errorf("push: parse VAPID private key: %w", err)
	}
	derived, err := priv.PublicKey.Bytes()
	if err != nil {
		return nil, fmt.Errorf("push: derive VAPID public key: %w", err)
	}
	rawPub, err := decodeBase64URL(publicKey)
	if err != nil {
		return nil, fmt.Errorf("push: decode VAPID public key: %w", err)
	}
	if string(rawPub) != string(derived) {
		return nil, errors.New("push: VAPID public key does not match private key")
	}
	if subject == "" {
		subject = defaultSubject
	}
	return &VAPID{
		publicKey:  base64.RawURLEncoding.EncodeToString(derived),
		privateKey: base64.RawURLEncoding.EncodeToString(rawPriv),
		subject:    subject,
	}, nil
}

// PublicKey returns the base64url public key browsers pass as
// applicationServerKey when subscribing.
func (v *VAPID) PublicKey() string { return v.publicKey }

// subscriber is the JWT "sub" value without its scheme; webpush-go adds
// mailto: to anything that is not an https: URL.
func (v *VAPID) subscriber() string {
	return strings.TrimPrefix(v.subject, "mailto:")
}

// GenerateVAPIDKeys creates a new P-256 key pair, base64url encoded.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("push: generate VAPID keys: %w", err)
	}
	return publicKey, privateKey, nil
}

// decodeBase64URL accepts padded or unpadded base64url, which is how
// browsers and key generators variously emit keys.
func decodeBase64URL(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(s)
}

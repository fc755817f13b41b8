// Package keys provides the node identity crypto: 2048-bit RSA keypairs and
// PKCS#1 v1.5 signatures over SHA-256.
package keys

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

const keyBits = 2048

// ErrVerifyFailed is returned when a signature does not match the registered
// public key of the claimed sender.
var ErrVerifyFailed = errors.New("verify failed")

// Keypair holds a node's RSA identity.
type Keypair struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
}

// Generate creates a fresh 2048-bit RSA keypair.
func Generate() (*Keypair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, fmt.Errorf("rsa key generation failed: %w", err)
	}
	return &Keypair{Private: priv, Public: &priv.PublicKey}, nil
}

// Sign produces a PKCS#1 v1.5 signature over SHA-256 of the UTF-8 bytes of
// text. The relay always signs the sender's source id, never the payload.
func Sign(text string, priv *rsa.PrivateKey) ([]byte, error) {
	hash := sha256.Sum256([]byte(text))
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, hash[:])
	if err != nil {
		return nil, fmt.Errorf("sign failed: %w", err)
	}
	return sig, nil
}

// Verify checks sig over text against pub. It returns ErrVerifyFailed for
// any mismatch, including a nil or truncated signature.
func Verify(text string, pub *rsa.PublicKey, sig []byte) error {
	hash := sha256.Sum256([]byte(text))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, hash[:], sig); err != nil {
		return ErrVerifyFailed
	}
	return nil
}

// EncodePublicKeyPEM returns the PKIX PEM encoding of pub.
func EncodePublicKeyPEM(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// DecodePublicKeyPEM parses a PKIX PEM public key produced by
// EncodePublicKeyPEM.
func DecodePublicKeyPEM(s string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return rsaPub, nil
}

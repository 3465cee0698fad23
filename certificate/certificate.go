package certificate

import (
	"crypto/ecdsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"software.sslmate.com/src/go-pkcs12"
)

// LoadP12File loads a tls.Certificate for APNs connection
// from a specified p12 file and password.
//
// path: Path to the PKCS#12 file.
// password: Password for the p12 file.
//
// Returns:
//
//	*tls.Certificate: A pointer to tls.Certificate on success.
//	error: Error information if loading fails.
func LoadP12File(path, password string) (*tls.Certificate, error) {
	// Read the p12 file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read p12 file %q: %w", path, err)
	}

	// Decode the p12 data using the go-pkcs12 library.
	// This extracts the private key and certificate (and intermediate CA certificates).
	prikey, cert, caCerts, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decode p12 file: %w", err)
	}

	// Create a tls.Certificate using the extracted private key and certificate.
	// The 'Certificate' field of tls.Certificate expects a slice of DER-encoded byte slices.
	// Add the Leaf Certificate (the main certificate used for APNs connection) first.
	tlsCert := tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  prikey,
	}

	// Optionally, add the CA certificate chain.
	// For APNs, the Leaf Certificate is usually enough.
	// Add CAs if strict client authentication requires the full chain in the TLS handshake.
	for _, caCert := range caCerts {
		tlsCert.Certificate = append(tlsCert.Certificate, caCert.Raw)
	}

	return &tlsCert, nil
}

// LoadP8File loads a PEM-wrapped PKCS#8 ECDSA private key (header
// "BEGIN PRIVATE KEY") for token-based (JWT) authentication, the signing
// key shape APNs issues for provider-token auth. It validates the key is a P-256 ECDSA
// key at load time, so a malformed or wrong-curve key fails here rather
// than on first use.
func LoadP8File(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read p8 file %q: %w", path, err)
	}
	return ParseSigningKey(data)
}

// ParseSigningKey parses a PEM-wrapped PKCS#8 ECDSA private key from bytes.
func ParseSigningKey(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil || block.Type != "PRIVATE KEY" {
		return nil, errors.New("expected a PEM block of type PRIVATE KEY")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PKCS#8 private key: %w", err)
	}
	ecKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("signing key is not an ECDSA key")
	}
	if ecKey.Curve.Params().Name != "P-256" {
		return nil, fmt.Errorf("signing key must use the P-256 curve, got %s", ecKey.Curve.Params().Name)
	}
	return ecKey, nil
}

// ParseVerificationKey parses a PEM-wrapped PKIX ECDSA public key (header
// "BEGIN PUBLIC KEY"), used by the mock server to verify provider tokens.
func ParseVerificationKey(pemBytes []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, errors.New("expected a PEM block of type PUBLIC KEY")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PKIX public key: %w", err)
	}
	ecKey, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("verification key is not an ECDSA key")
	}
	if ecKey.Curve.Params().Name != "P-256" {
		return nil, fmt.Errorf("verification key must use the P-256 curve, got %s", ecKey.Curve.Params().Name)
	}
	return ecKey, nil
}

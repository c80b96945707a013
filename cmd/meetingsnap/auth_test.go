//go:build !integration
// +build !integration

package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"software.sslmate.com/src/go-pkcs12"

	"meetingsnap/internal/common/logger"
	"meetingsnap/internal/credential"
)

const (
	testTenantID = "11111111-2222-3333-4444-555555555555"
	testClientID = "66666666-7777-8888-9999-000000000000"
)

// Helper function to generate a test certificate and private key
func generateTestCertificate(t *testing.T) (*x509.Certificate, *rsa.PrivateKey) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate private key: %v", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		t.Fatalf("Failed to generate serial number: %v", err)
	}

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"Test Organization"},
			CommonName:   "Test Certificate",
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		t.Fatalf("Failed to create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		t.Fatalf("Failed to parse certificate: %v", err)
	}
	return cert, privateKey
}

func TestCreateCertCredential(t *testing.T) {
	cert, key := generateTestCertificate(t)
	modern, err := pkcs12.Modern2023.Encode(key, cert, nil, "test-password")
	if err != nil {
		t.Fatalf("Failed to encode PFX: %v", err)
	}
	legacy, err := pkcs12.Legacy.Encode(key, cert, nil, "test-password")
	if err != nil {
		t.Fatalf("Failed to encode legacy PFX: %v", err)
	}
	empty, err := pkcs12.Modern2023.Encode(key, cert, nil, "")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		data     []byte
		password string
		wantErr  bool
	}{
		{"modern SHA-256", modern, "test-password", false},
		{"legacy SHA-1", legacy, "test-password", false},
		{"empty password", empty, "", false},
		{"wrong password", modern, "wrong-password", true},
		{"malformed", []byte("this is not a valid PFX file"), "password", true},
		{"empty data", []byte{}, "password", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred, err := createCertCredential(testTenantID, testClientID, tt.data, tt.password)
			if (err != nil) != tt.wantErr {
				t.Fatalf("createCertCredential() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && cred == nil {
				t.Error("createCertCredential() returned nil credential")
			}
		})
	}
}

func TestParseTokenClaims(t *testing.T) {
	sign := func(claims TokenClaims) string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		s, err := token.SignedString([]byte("test-key"))
		if err != nil {
			t.Fatalf("SignedString() error = %v", err)
		}
		return s
	}

	tests := []struct {
		name      string
		token     string
		wantApp   string
		wantRoles string
		wantErr   bool
	}{
		{
			name:      "app and roles",
			token:     sign(TokenClaims{AppDisplayName: "meetingsnap", Roles: []string{"Calendars.ReadWrite", "User.Read.All"}}),
			wantApp:   "meetingsnap",
			wantRoles: "Calendars.ReadWrite, User.Read.All",
		},
		{
			name:      "no claims",
			token:     sign(TokenClaims{}),
			wantApp:   "(not available)",
			wantRoles: "(none)",
		},
		{name: "not a jwt", token: "opaque-token", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, roles, err := parseTokenClaims(tt.token)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseTokenClaims() error = %v, wantErr %v", err, tt.wantErr)
			}
			if app != tt.wantApp || roles != tt.wantRoles {
				t.Errorf("parseTokenClaims() = %q, %q; want %q, %q", app, roles, tt.wantApp, tt.wantRoles)
			}
		})
	}
}

type fakeSecretStore struct {
	secrets map[string]string
	setErr  error
}

func (s *fakeSecretStore) ClientSecret(tenantID, clientID string) (string, error) {
	v, ok := s.secrets[credential.SecretKey(tenantID, clientID)]
	if !ok {
		return "", credential.ErrNotFound
	}
	return v, nil
}

func (s *fakeSecretStore) SetClientSecret(tenantID, clientID, secret string) error {
	if s.setErr != nil {
		return s.setErr
	}
	if s.secrets == nil {
		s.secrets = make(map[string]string)
	}
	s.secrets[credential.SecretKey(tenantID, clientID)] = secret
	return nil
}

func keyringOf(s *fakeSecretStore) func() (secretStore, error) {
	return func() (secretStore, error) { return s, nil }
}

func TestGetCredential_ClientSecret(t *testing.T) {
	config := newTestConfig()
	config.Secret = "super-secret-value"

	opened := false
	cred, err := getCredential(config, func() (secretStore, error) {
		opened = true
		return nil, errors.New("keyring unavailable")
	}, logger.Discard())
	if err != nil {
		t.Fatalf("getCredential() error = %v", err)
	}
	if cred == nil {
		t.Fatal("getCredential() returned nil credential")
	}
	if opened {
		t.Error("keyring opened although -secret was given")
	}
}

func TestGetCredential_SaveSecret(t *testing.T) {
	store := &fakeSecretStore{}
	config := newTestConfig()
	config.Secret = "super-secret-value"
	config.SaveSecret = true

	if _, err := getCredential(config, keyringOf(store), logger.Discard()); err != nil {
		t.Fatalf("getCredential() error = %v", err)
	}
	if got, _ := store.ClientSecret(testTenantID, testClientID); got != "super-secret-value" {
		t.Errorf("stored secret = %q", got)
	}

	store.setErr = errors.New("locked")
	if _, err := getCredential(config, keyringOf(store), logger.Discard()); err == nil {
		t.Error("getCredential() ignored a keyring write failure")
	}
}

func TestGetCredential_Keyring(t *testing.T) {
	config := newTestConfig()

	if _, err := getCredential(config, keyringOf(&fakeSecretStore{}), logger.Discard()); err == nil ||
		!strings.Contains(err.Error(), "no valid authentication method") {
		t.Errorf("getCredential() with empty keyring error = %v", err)
	}

	store := &fakeSecretStore{secrets: map[string]string{credential.SecretKey(testTenantID, testClientID): "from-keyring"}}
	cred, err := getCredential(config, keyringOf(store), logger.Discard())
	if err != nil {
		t.Fatalf("getCredential() error = %v", err)
	}
	if cred == nil {
		t.Error("getCredential() returned nil credential")
	}

	if _, err := getCredential(config, func() (secretStore, error) {
		return nil, errors.New("keyring unavailable")
	}, logger.Discard()); err == nil {
		t.Error("getCredential() ignored a keyring open failure")
	}
}

func TestGetCredential_PFX(t *testing.T) {
	cert, key := generateTestCertificate(t)
	data, err := pkcs12.Modern2023.Encode(key, cert, nil, "pfx-pass")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "app.pfx")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	config := newTestConfig()
	config.PfxPath = path
	config.PfxPass = "pfx-pass"
	if _, err := getCredential(config, keyringOf(&fakeSecretStore{}), logger.Discard()); err != nil {
		t.Fatalf("getCredential() error = %v", err)
	}

	config.PfxPath = filepath.Join(t.TempDir(), "missing.pfx")
	if _, err := getCredential(config, keyringOf(&fakeSecretStore{}), logger.Discard()); err == nil {
		t.Error("getCredential() accepted a missing PFX file")
	}
}

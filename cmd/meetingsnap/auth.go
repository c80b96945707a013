package main

import (
	"context"
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/golang-jwt/jwt/v5"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"software.sslmate.com/src/go-pkcs12"

	"meetingsnap/internal/common/logger"
	"meetingsnap/internal/common/security"
	"meetingsnap/internal/credential"
)

const graphScope = "https://graph.microsoft.com/.default"

// TokenClaims represents relevant claims from Microsoft Entra ID JWT tokens
type TokenClaims struct {
	AppDisplayName string   `json:"app_displayname"` // Application display name from Entra ID
	Roles          []string `json:"roles"`           // Assigned application roles (e.g., Calendars.ReadWrite)
	jwt.RegisteredClaims
}

// secretStore is the part of credential.Store used for the client secret.
type secretStore interface {
	ClientSecret(tenantID, clientID string) (string, error)
	SetClientSecret(tenantID, clientID, secret string) error
}

// openKeyring opens the OS keyring lazily; most runs never need it.
func openKeyring() (secretStore, error) {
	return credential.Open()
}

// setupGraphClient creates credentials and initializes the Microsoft Graph SDK client
func setupGraphClient(ctx context.Context, config *Config, slogger *slog.Logger) (*msgraphsdk.GraphServiceClient, error) {
	logger.LogDebug(slogger, "Setting up Microsoft Graph client",
		"tenantID", security.MaskGUID(config.TenantID),
		"clientID", security.MaskGUID(config.ClientID))

	cred, err := getCredential(config, openKeyring, slogger)
	if err != nil {
		return nil, fmt.Errorf("authentication setup failed: %w", err)
	}

	if config.VerboseMode {
		token, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{graphScope}})
		if err != nil {
			logger.LogWarn(slogger, "Could not retrieve token for verbose display", "error", err)
		} else {
			printTokenInfo(token)
		}
	}

	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, []string{graphScope})
	if err != nil {
		return nil, fmt.Errorf("graph client initialization failed: %w", err)
	}
	logger.LogDebug(slogger, "Graph SDK client initialized", "scope", graphScope)
	return client, nil
}

// getCredential picks the first configured method: client secret, PFX file,
// then the secret stored in the keyring. With -savesecret a secret from the
// command line is written to the keyring first.
func getCredential(config *Config, keyring func() (secretStore, error), slogger *slog.Logger) (azcore.TokenCredential, error) {
	// 1. Client Secret
	if config.Secret != "" {
		logger.LogDebug(slogger, "Authentication method: Client Secret", "secret", security.MaskSecret(config.Secret))
		if config.SaveSecret {
			store, err := keyring()
			if err != nil {
				return nil, err
			}
			if err := store.SetClientSecret(config.TenantID, config.ClientID, config.Secret); err != nil {
				return nil, err
			}
			logger.LogInfo(slogger, "Client secret stored in keyring", "key", credential.SecretKey(security.MaskGUID(config.TenantID), security.MaskGUID(config.ClientID)))
		}
		return azidentity.NewClientSecretCredential(config.TenantID, config.ClientID, config.Secret, nil)
	}

	// 2. PFX File
	if config.PfxPath != "" {
		logger.LogDebug(slogger, "Authentication method: PFX Certificate File", "path", config.PfxPath)
		pfxData, err := os.ReadFile(config.PfxPath)
		if err != nil {
			logger.LogError(slogger, "Failed to read PFX file", "path", config.PfxPath, "error", err)
			return nil, fmt.Errorf("failed to read PFX file: %w", err)
		}
		logger.LogDebug(slogger, "PFX file read successfully", "bytes", len(pfxData))
		return createCertCredential(config.TenantID, config.ClientID, pfxData, config.PfxPass)
	}

	// 3. Keyring
	logger.LogDebug(slogger, "Authentication method: Client Secret from keyring")
	store, err := keyring()
	if err != nil {
		return nil, err
	}
	secret, err := store.ClientSecret(config.TenantID, config.ClientID)
	if errors.Is(err, credential.ErrNotFound) {
		return nil, fmt.Errorf("no valid authentication method provided (use -secret or -pfx, or store a secret with -savesecret)")
	}
	if err != nil {
		return nil, err
	}
	return azidentity.NewClientSecretCredential(config.TenantID, config.ClientID, secret, nil)
}

func createCertCredential(tenantID, clientID string, pfxData []byte, password string) (*azidentity.ClientCertificateCredential, error) {
	// DecodeChain supports SHA-256 (Modern2023) and legacy SHA-1 containers
	key, cert, caCerts, err := pkcs12.DecodeChain(pfxData, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decode PFX: %w", err)
	}

	privKey, ok := key.(crypto.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("decoded key is not a valid crypto.PrivateKey")
	}

	// Leaf certificate first
	certs := []*x509.Certificate{cert}
	certs = append(certs, caCerts...)

	opts := &azidentity.ClientCertificateCredentialOptions{
		SendCertificateChain: true,
	}
	return azidentity.NewClientCertificateCredential(tenantID, clientID, certs, privKey, opts)
}

// Print token information
func printTokenInfo(token azcore.AccessToken) {
	fmt.Println()
	fmt.Println("Token Information:")
	fmt.Println("------------------")
	fmt.Printf("Expires at: %s\n", token.ExpiresOn.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("Valid for: %s\n", time.Until(token.ExpiresOn).Round(time.Second))
	fmt.Printf("Token (truncated): %s\n", security.MaskAccessToken(token.Token))
	fmt.Printf("Token length: %d characters\n", len(token.Token))

	fmt.Println()
	fmt.Println("JWT Claims:")
	appName, roles, err := parseTokenClaims(token.Token)
	if err != nil {
		fmt.Printf("  (Could not parse JWT claims: %v)\n", err)
	} else {
		fmt.Printf("  Application Name: %s\n", appName)
		fmt.Printf("  Assigned Roles: %s\n", roles)
	}
	fmt.Println()
}

// parseTokenClaims extracts application name and assigned roles from a JWT access token.
func parseTokenClaims(tokenString string) (string, string, error) {
	// The Azure SDK already validated the token
	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, &TokenClaims{})
	if err != nil {
		return "", "", fmt.Errorf("failed to parse JWT: %w", err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok {
		return "", "", fmt.Errorf("failed to extract claims from token")
	}

	appName := claims.AppDisplayName
	if appName == "" {
		appName = "(not available)"
	}

	rolesStr := "(none)"
	if len(claims.Roles) > 0 {
		rolesStr = strings.Join(claims.Roles, ", ")
	}
	return appName, rolesStr, nil
}

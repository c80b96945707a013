// Package security masks credentials and identifiers before they reach logs
// or terminal output.
package security

import "strings"

// MaskSecret shows the first 4 characters of a client secret.
// Empty secrets return empty string.
func MaskSecret(secret string) string {
	if len(secret) == 0 {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:4] + "****"
}

// MaskGUID keeps the first 8 characters of a tenant or client ID.
func MaskGUID(guid string) string {
	if len(guid) <= 8 {
		return guid + "****"
	}
	return guid[:8] + "****"
}

// MaskAccessToken shows the first 8 and last 4 characters of a bearer token.
func MaskAccessToken(token string) string {
	if len(token) == 0 {
		return ""
	}
	if len(token) <= 16 {
		return token[:len(token)/2] + "..."
	}
	return token[:8] + "..." + token[len(token)-4:]
}

// MaskEventID keeps the last 8 characters of a Graph item id. Ids of one
// mailbox share a long prefix, so the tail is what tells them apart.
func MaskEventID(id string) string {
	if len(id) <= 8 {
		return "****"
	}
	return "****" + id[len(id)-8:]
}

// MaskEmail masks an address, keeping two characters of each part.
// Example: "user@example.com" becomes "us****@ex****"
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return maskPart(email)
	}
	return maskPart(local) + "@" + maskPart(domain)
}

func maskPart(s string) string {
	if len(s) <= 2 {
		return "****"
	}
	return s[:2] + "****"
}

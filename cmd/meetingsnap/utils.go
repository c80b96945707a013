package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"meetingsnap/internal/common/security"
)

// ensureParentDir creates the directory that will hold path.
func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// ifEmpty returns defaultVal if s is empty, otherwise returns s
func ifEmpty(s, defaultVal string) string {
	if s == "" {
		return defaultVal
	}
	return s
}

// printVerboseConfig prints the effective configuration with secrets masked.
func printVerboseConfig(config *Config) {
	fmt.Println("========================================")
	fmt.Println("VERBOSE MODE ENABLED")
	fmt.Println("========================================")
	fmt.Println()

	fmt.Println("Environment Variables (MEETINGSNAP*):")
	fmt.Println("-------------------------------------")
	env := getEnvVariables()
	if len(env) == 0 {
		fmt.Println("  (none set)")
	}
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value := env[name]
		if name == "MEETINGSNAPSECRET" || name == "MEETINGSNAPPFXPASS" {
			value = security.MaskSecret(value)
		}
		fmt.Printf("  %s = %s\n", name, value)
	}
	fmt.Println()

	fmt.Println("Configuration:")
	fmt.Println("--------------")
	fmt.Printf("  Action:         %s\n", config.Action)
	fmt.Printf("  Host:           %s\n", config.Host)
	fmt.Printf("  Property store: %s\n", config.PropStore)
	if config.PropStore == PropStoreSQLite {
		fmt.Printf("  Database:       %s\n", config.DBPath)
	}
	if config.Host == HostFixture {
		fmt.Printf("  Fixture:        %s\n", config.Fixture)
	} else {
		fmt.Printf("  Tenant ID:      %s\n", security.MaskGUID(config.TenantID))
		fmt.Printf("  Client ID:      %s\n", security.MaskGUID(config.ClientID))
		fmt.Printf("  Mailbox:        %s\n", security.MaskEmail(config.Mailbox))
		fmt.Printf("  Event ID:       %s\n", ifEmpty(config.EventID, "(next upcoming)"))
		switch {
		case config.Secret != "":
			fmt.Printf("  Auth:           client secret %s\n", security.MaskSecret(config.Secret))
		case config.PfxPath != "":
			fmt.Printf("  Auth:           certificate %s\n", config.PfxPath)
		default:
			fmt.Printf("  Auth:           keyring\n")
		}
		fmt.Printf("  Rate limit:     %g rps\n", config.RateLimit)
		fmt.Printf("  Retries:        %d (base delay %s)\n", config.MaxRetries, config.RetryDelay)
	}
	fmt.Printf("  Endpoint:       %s\n", config.Endpoint)
	fmt.Printf("  Timeout:        %s (teardown %s)\n", config.Timeout, config.TeardownTimeout)
	fmt.Printf("  Meeting types:  %s\n", strings.Join(config.MeetingTypes, ", "))
	fmt.Printf("  Time zone:      %s\n", ifEmpty(config.TimeZone, "Local"))
	fmt.Printf("  Write summary:  %t\n", config.WriteSummary)
	fmt.Println()
	fmt.Println("========================================")
	fmt.Println()
}

// getEnvVariables returns every MEETINGSNAP environment variable that is set.
func getEnvVariables() map[string]string {
	envVarsSet := make(map[string]string)
	for _, envName := range envVars {
		if value := os.Getenv(envName); value != "" {
			envVarsSet[envName] = value
		}
	}
	return envVarsSet
}

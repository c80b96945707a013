// Package main provides meetingsnap, a CLI that collects the details of a
// calendar item, merges them with the meeting type and minutes-of-meeting
// preferences stored on the item, and posts the combined record as JSON to
// the save-meeting endpoint.
//
// Hosts:
//   - graph: a Microsoft Graph calendar event (client secret, PFX certificate
//     or a secret stored in the OS keyring)
//   - fixture: a JSON file describing the item, for offline runs
//
// Every delivery attempt is logged to an action-specific CSV file in the
// system temp directory.
//
// Example usage:
//
//	meetingsnap -action send -tenantid "..." -clientid "..." -secret "..." -mailbox "user@example.com"
//	meetingsnap -action taskpane -host fixture -fixture meeting.json
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"meetingsnap/internal/common/logger"
	"meetingsnap/internal/common/version"
)

func main() {
	if err := run(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

// setupSignalHandling configures graceful shutdown on interrupt signals
// Returns a cancellable context for use throughout the application
func setupSignalHandling() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\nReceived interrupt signal. Shutting down gracefully...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// initializeServices creates the audit CSV logger for the action. When it
// cannot be created a warning is printed and the run continues without it.
func initializeServices(config *Config) *logger.CSVLogger {
	csvLogger, err := logger.NewCSVLogger("meetingsnap", config.Action)
	if err != nil {
		log.Printf("Warning: Could not initialize CSV logging: %v", err)
		return nil
	}
	return csvLogger
}

// run is the main application entry point that orchestrates the tool's execution flow.
// It performs the following steps:
//  1. Sets up graceful shutdown handling for interrupt signals
//  2. Parses and validates configuration from flags, environment variables and the config file
//  3. Initializes the audit CSV logger
//  4. Opens the host and its property store (creating the Graph client when needed)
//  5. Executes the requested action (send, taskpane, show)
//
// Returns an error if any step fails, nil on successful completion.
func run() error {
	// 1. Setup signal handling for graceful shutdown
	ctx, cancel := setupSignalHandling()
	defer cancel()

	// 2. Parse command-line flags and apply environment variables
	config := parseAndConfigureFlags()

	// 3. Handle version flag early exit
	if config.ShowVersion {
		fmt.Printf("meetingsnap - Meeting Snapshot Collector - Version %s\n", version.Get())
		return nil
	}

	// 4. Validate configuration
	if err := validateConfiguration(config); err != nil {
		fmt.Printf("Error: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	// 5. Setup structured logger
	slogger := logger.SetupLogger(config.VerboseMode, config.LogLevel)
	logger.LogInfo(slogger, "Application starting", "version", version.Get(), "action", config.Action, "host", config.Host)
	if config.VerboseMode {
		printVerboseConfig(config)
	}

	// 6. Initialize services (CSV audit logging)
	csvLogger := initializeServices(config)
	if csvLogger != nil {
		defer csvLogger.Close()
		logger.LogDebug(slogger, "Audit log", "path", csvLogger.Path())
	}

	// 7. Open the host
	h, closeHost, err := openHost(ctx, config, slogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeHost(); err != nil {
			logger.LogWarn(slogger, "Could not close property store", "error", err)
		}
	}()

	// 8. Execute the requested action
	return executeAction(ctx, config, h, csvLogger, slogger)
}

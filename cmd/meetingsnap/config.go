package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"meetingsnap/internal/common/validation"
	"meetingsnap/internal/common/version"
	"meetingsnap/internal/form"
	"meetingsnap/internal/snapshot"
)

// Action constants
const (
	ActionSend     = "send"
	ActionTaskpane = "taskpane"
	ActionShow     = "show"
)

// Host constants
const (
	HostGraph   = "graph"
	HostFixture = "fixture"
)

// Property store constants. An empty value picks item for the graph host and
// sqlite for the fixture host.
const (
	PropStoreItem   = "item"
	PropStoreSQLite = "sqlite"
	PropStoreMemory = "memory"
)

// DefaultEndpoint receives every snapshot unless -endpoint overrides it.
const DefaultEndpoint = "https://add-in-gvbvabchhdf6h3ez.centralindia-01.azurewebsites.net/save-meeting/"

// Config holds all configuration for meetingsnap.
type Config struct {
	// Core
	Action      string
	ShowVersion bool
	ConfigFile  string

	// Host selection
	Host      string // graph, fixture
	Fixture   string
	PropStore string // item, sqlite, memory
	DBPath    string

	// Graph host
	TenantID   string
	ClientID   string
	Secret     string
	PfxPath    string
	PfxPass    string
	SaveSecret bool
	Mailbox    string
	EventID    string

	// Delivery
	Endpoint        string
	Timeout         time.Duration
	TeardownTimeout time.Duration
	WriteSummary    bool

	// Task pane
	MeetingType  string
	EnableMom    string
	MeetingTypes stringSlice
	Accessible   bool
	TimeZone     string

	// Network
	RateLimit  float64
	MaxRetries int
	RetryDelay time.Duration

	// Logging
	VerboseMode bool
	LogLevel    string
}

// NewConfig creates a new Config with sensible default values.
func NewConfig() *Config {
	return &Config{
		Action:          ActionSend,
		Host:            HostGraph,
		DBPath:          defaultDBPath(),
		Endpoint:        DefaultEndpoint,
		Timeout:         30 * time.Second,
		TeardownTimeout: 10 * time.Second,
		MeetingTypes:    slices.Clone(form.DefaultMeetingTypes),
		RateLimit:       4,
		MaxRetries:      3,
		RetryDelay:      2000 * time.Millisecond,
		LogLevel:        "info",
	}
}

// envVars maps flag names to the environment variables that feed them when
// the flag is not given on the command line.
var envVars = map[string]string{
	"action":          "MEETINGSNAPACTION",
	"config":          "MEETINGSNAPCONFIG",
	"host":            "MEETINGSNAPHOST",
	"fixture":         "MEETINGSNAPFIXTURE",
	"propstore":       "MEETINGSNAPPROPSTORE",
	"dbpath":          "MEETINGSNAPDBPATH",
	"tenantid":        "MEETINGSNAPTENANTID",
	"clientid":        "MEETINGSNAPCLIENTID",
	"secret":          "MEETINGSNAPSECRET",
	"pfx":             "MEETINGSNAPPFX",
	"pfxpass":         "MEETINGSNAPPFXPASS",
	"mailbox":         "MEETINGSNAPMAILBOX",
	"eventid":         "MEETINGSNAPEVENTID",
	"endpoint":        "MEETINGSNAPENDPOINT",
	"timeout":         "MEETINGSNAPTIMEOUT",
	"teardowntimeout": "MEETINGSNAPTEARDOWNTIMEOUT",
	"writesummary":    "MEETINGSNAPWRITESUMMARY",
	"meetingtype":     "MEETINGSNAPMEETINGTYPE",
	"enablemom":       "MEETINGSNAPENABLEMOM",
	"meetingtypes":    "MEETINGSNAPMEETINGTYPES",
	"accessible":      "MEETINGSNAPACCESSIBLE",
	"timezone":        "MEETINGSNAPTIMEZONE",
	"ratelimit":       "MEETINGSNAPRATELIMIT",
	"maxretries":      "MEETINGSNAPMAXRETRIES",
	"retrydelay":      "MEETINGSNAPRETRYDELAY",
	"verbose":         "MEETINGSNAPVERBOSE",
	"loglevel":        "MEETINGSNAPLOGLEVEL",
}

// parseAndConfigureFlags parses command-line flags, environment variables and
// the optional config file. A config file that cannot be read is fatal.
func parseAndConfigureFlags() *Config {
	config, err := parseFlags(flag.CommandLine, os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return config
}

// parseFlags defines every flag on fs and parses args. Precedence is
// command line, then environment, then config file, then defaults.
func parseFlags(fs *flag.FlagSet, args []string, getenv func(string) string) (*Config, error) {
	config := NewConfig()
	retryDelayMs := int(config.RetryDelay / time.Millisecond)

	fs.StringVar(&config.Action, "action", config.Action, "Action to perform: send, taskpane, show (env: MEETINGSNAPACTION)")
	fs.StringVar(&config.ConfigFile, "config", "", "YAML config file; keys are flag names (env: MEETINGSNAPCONFIG)")
	fs.BoolVar(&config.ShowVersion, "version", false, "Show version information")

	fs.StringVar(&config.Host, "host", config.Host, "Mail host: graph, fixture (env: MEETINGSNAPHOST)")
	fs.StringVar(&config.Fixture, "fixture", "", "Fixture JSON file for the fixture host (env: MEETINGSNAPFIXTURE)")
	fs.StringVar(&config.PropStore, "propstore", "", "Custom property store: item, sqlite, memory (default: item for graph, sqlite for fixture) (env: MEETINGSNAPPROPSTORE)")
	fs.StringVar(&config.DBPath, "dbpath", config.DBPath, "SQLite database for -propstore sqlite (env: MEETINGSNAPDBPATH)")

	fs.StringVar(&config.TenantID, "tenantid", "", "The Azure Tenant ID (env: MEETINGSNAPTENANTID)")
	fs.StringVar(&config.ClientID, "clientid", "", "The Application (Client) ID (env: MEETINGSNAPCLIENTID)")
	fs.StringVar(&config.Secret, "secret", "", "The Client Secret; read from the OS keyring when omitted (env: MEETINGSNAPSECRET)")
	fs.StringVar(&config.PfxPath, "pfx", "", "Path to the .pfx certificate file (env: MEETINGSNAPPFX)")
	fs.StringVar(&config.PfxPass, "pfxpass", "", "Password for the .pfx file (env: MEETINGSNAPPFXPASS)")
	fs.BoolVar(&config.SaveSecret, "savesecret", false, "Store -secret in the OS keyring for later runs")
	fs.StringVar(&config.Mailbox, "mailbox", "", "The mailbox whose calendar item is read (env: MEETINGSNAPMAILBOX)")
	fs.StringVar(&config.EventID, "eventid", "", "Event ID to read (default: next upcoming event) (env: MEETINGSNAPEVENTID)")

	fs.StringVar(&config.Endpoint, "endpoint", config.Endpoint, "URL that receives meeting snapshots (env: MEETINGSNAPENDPOINT)")
	fs.DurationVar(&config.Timeout, "timeout", config.Timeout, "HTTP timeout for delivery (env: MEETINGSNAPTIMEOUT)")
	fs.DurationVar(&config.TeardownTimeout, "teardowntimeout", config.TeardownTimeout, "Time allowed for the final report on close (env: MEETINGSNAPTEARDOWNTIMEOUT)")
	fs.BoolVar(&config.WriteSummary, "writesummary", false, "Write a human-readable summary into the item body when reporting (env: MEETINGSNAPWRITESUMMARY)")

	fs.StringVar(&config.MeetingType, "meetingtype", "", "Set the meeting type without showing the form (env: MEETINGSNAPMEETINGTYPE)")
	fs.StringVar(&config.EnableMom, "enablemom", "", "Set minutes of meeting (Yes/No) without showing the form (env: MEETINGSNAPENABLEMOM)")
	fs.Var(&config.MeetingTypes, "meetingtypes", "Comma-separated meeting type options (env: MEETINGSNAPMEETINGTYPES)")
	fs.BoolVar(&config.Accessible, "accessible", false, "Render the form in accessible mode (env: MEETINGSNAPACCESSIBLE)")
	fs.StringVar(&config.TimeZone, "timezone", "", "IANA time zone for timestamps (default: local) (env: MEETINGSNAPTIMEZONE)")

	fs.Float64Var(&config.RateLimit, "ratelimit", config.RateLimit, "Maximum Graph requests per second, 0 disables (env: MEETINGSNAPRATELIMIT)")
	fs.IntVar(&config.MaxRetries, "maxretries", config.MaxRetries, "Maximum retry attempts for transient Graph errors (env: MEETINGSNAPMAXRETRIES)")
	fs.IntVar(&retryDelayMs, "retrydelay", retryDelayMs, "Base retry delay in milliseconds (env: MEETINGSNAPRETRYDELAY)")

	fs.BoolVar(&config.VerboseMode, "verbose", false, "Enable verbose output (env: MEETINGSNAPVERBOSE)")
	fs.StringVar(&config.LogLevel, "loglevel", config.LogLevel, "Log level: debug, info, warn, error (env: MEETINGSNAPLOGLEVEL)")

	if fs == flag.CommandLine {
		fs.Usage = printUsage
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Track which flags were explicitly set via command line
	providedFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		providedFlags[f.Name] = true
	})

	if err := applyEnvVars(fs, providedFlags, getenv); err != nil {
		return nil, err
	}

	if config.ConfigFile != "" {
		if err := applyConfigFile(fs, providedFlags, config.ConfigFile); err != nil {
			return nil, err
		}
	}

	config.RetryDelay = time.Duration(retryDelayMs) * time.Millisecond
	return config, nil
}

// applyEnvVars sets every flag that was not given on the command line from its
// environment variable. Flags set this way are marked as provided.
func applyEnvVars(fs *flag.FlagSet, providedFlags map[string]bool, getenv func(string) string) error {
	for name, envName := range envVars {
		if providedFlags[name] {
			continue
		}
		value := getenv(envName)
		if value == "" {
			continue
		}
		if err := fs.Set(name, value); err != nil {
			return fmt.Errorf("invalid value %q for %s: %w", value, envName, err)
		}
		providedFlags[name] = true
	}
	return nil
}

// applyConfigFile fills the remaining flags from a YAML file whose keys are
// flag names. List values are joined with commas.
func applyConfigFile(fs *flag.FlagSet, providedFlags map[string]bool, path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}

	var setErr error
	fs.VisitAll(func(f *flag.Flag) {
		if setErr != nil || providedFlags[f.Name] || f.Name == "config" || !v.IsSet(f.Name) {
			return
		}
		value := v.GetString(f.Name)
		if list, ok := v.Get(f.Name).([]any); ok {
			value = strings.Join(v.GetStringSlice(f.Name), ",")
			if len(list) == 0 {
				value = ""
			}
		}
		if err := fs.Set(f.Name, value); err != nil {
			setErr = fmt.Errorf("invalid value %q for %s in %s: %w", value, f.Name, path, err)
		}
	})
	return setErr
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "meetingsnap - Meeting Snapshot Collector - Version %s\n\n", version.Get())
	fmt.Fprintf(os.Stderr, "Collects the details of a calendar item, merges them with the meeting type and\n")
	fmt.Fprintf(os.Stderr, "minutes-of-meeting preferences stored on the item, and posts the result.\n\n")
	fmt.Fprintf(os.Stderr, "Actions:\n")
	fmt.Fprintf(os.Stderr, "  send      Collect the item and send it once\n")
	fmt.Fprintf(os.Stderr, "  taskpane  Edit preferences in a form; the item is sent when the form closes\n")
	fmt.Fprintf(os.Stderr, "  show      Collect the item and print the JSON without sending\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nEnvironment variables use the MEETINGSNAP prefix followed by the flag name in\n")
	fmt.Fprintf(os.Stderr, "upper case, e.g. MEETINGSNAPTENANTID, MEETINGSNAPENDPOINT.\n")
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  meetingsnap -action send -tenantid \"...\" -clientid \"...\" -secret \"...\" -mailbox \"user@example.com\"\n")
	fmt.Fprintf(os.Stderr, "  meetingsnap -action taskpane -host fixture -fixture meeting.json\n")
	fmt.Fprintf(os.Stderr, "  meetingsnap -action taskpane -host fixture -fixture meeting.json -meetingtype Retro -enablemom No\n")
	fmt.Fprintf(os.Stderr, "  meetingsnap -action show -config ~/.config/meetingsnap/config.yaml\n")
}

// defaultDBPath returns ~/.config/meetingsnap/properties.db, or a file in the
// working directory when there is no home directory.
func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "meetingsnap.db"
	}
	return filepath.Join(dir, "meetingsnap", "properties.db")
}

// validateConfiguration normalizes and validates the parsed configuration.
func validateConfiguration(config *Config) error {
	config.Action = strings.ToLower(strings.TrimSpace(config.Action))
	config.Host = strings.ToLower(strings.TrimSpace(config.Host))
	config.PropStore = strings.ToLower(strings.TrimSpace(config.PropStore))
	config.LogLevel = strings.ToLower(strings.TrimSpace(config.LogLevel))

	validActions := map[string]bool{
		ActionSend:     true,
		ActionTaskpane: true,
		ActionShow:     true,
	}
	if !validActions[config.Action] {
		return fmt.Errorf("invalid action: %s (use: send, taskpane, show)", config.Action)
	}

	if err := validation.ValidateOneOf(config.Host, "host", HostGraph, HostFixture); err != nil {
		return err
	}
	if config.PropStore == "" {
		config.PropStore = PropStoreItem
		if config.Host == HostFixture {
			config.PropStore = PropStoreSQLite
		}
	}
	if err := validation.ValidateOneOf(config.PropStore, "property store", PropStoreItem, PropStoreSQLite, PropStoreMemory); err != nil {
		return err
	}

	switch config.Host {
	case HostGraph:
		if err := validateGraphConfiguration(config); err != nil {
			return err
		}
	case HostFixture:
		if config.Fixture == "" {
			return errors.New("fixture host requires -fixture")
		}
		if err := validation.ValidateFilePath(config.Fixture, "Fixture file"); err != nil {
			return err
		}
		if config.PropStore == PropStoreItem {
			return errors.New("property store item requires the graph host (use sqlite or memory)")
		}
	}

	if config.PropStore == PropStoreSQLite && strings.TrimSpace(config.DBPath) == "" {
		return errors.New("property store sqlite requires -dbpath")
	}

	if err := validation.ValidateEndpointURL(config.Endpoint, "Endpoint"); err != nil {
		return err
	}

	if len(config.MeetingTypes) == 0 {
		return errors.New("at least one meeting type option is required")
	}
	if config.MeetingType != "" && !slices.Contains(config.MeetingTypes, config.MeetingType) {
		return fmt.Errorf("invalid meeting type: %q (options: %s)", config.MeetingType, config.MeetingTypes.String())
	}
	if config.EnableMom != "" {
		switch strings.ToLower(config.EnableMom) {
		case "yes":
			config.EnableMom = snapshot.MomYes
		case "no":
			config.EnableMom = snapshot.MomNo
		default:
			return fmt.Errorf("invalid enablemom: %q (use: Yes, No)", config.EnableMom)
		}
	}

	if _, err := loadLocation(config.TimeZone); err != nil {
		return fmt.Errorf("invalid time zone: %w", err)
	}

	if config.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", config.Timeout)
	}
	if config.TeardownTimeout <= 0 {
		return fmt.Errorf("teardown timeout must be positive, got %s", config.TeardownTimeout)
	}
	if config.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative, got %g", config.RateLimit)
	}
	if config.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative, got %d", config.MaxRetries)
	}
	if config.RetryDelay <= 0 {
		return fmt.Errorf("retry delay must be positive, got %s", config.RetryDelay)
	}

	return validation.ValidateOneOf(config.LogLevel, "log level", "debug", "info", "warn", "error")
}

func validateGraphConfiguration(config *Config) error {
	if err := validation.ValidateGUID(config.TenantID, "Tenant ID"); err != nil {
		return err
	}
	if err := validation.ValidateGUID(config.ClientID, "Client ID"); err != nil {
		return err
	}
	if err := validation.ValidateEmail(config.Mailbox); err != nil {
		return fmt.Errorf("invalid mailbox: %w", err)
	}

	// Neither given means the secret comes from the keyring.
	if config.Secret != "" && config.PfxPath != "" {
		return errors.New("multiple authentication methods provided: use only one of -secret or -pfx")
	}
	if config.SaveSecret && config.Secret == "" {
		return errors.New("-savesecret requires -secret")
	}
	if err := validation.ValidateFilePath(config.PfxPath, "PFX certificate file"); err != nil {
		return err
	}

	if strings.ContainsAny(config.EventID, "/?#") {
		return fmt.Errorf("invalid event ID: %q", config.EventID)
	}
	return nil
}

// loadLocation resolves name, with "" and "Local" meaning the local zone.
func loadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// stringSlice implements the flag.Value interface for comma-separated string lists.
type stringSlice []string

// String returns the comma-separated string representation of the slice.
func (s *stringSlice) String() string {
	if s == nil {
		return ""
	}
	return strings.Join(*s, ",")
}

// Set parses a comma-separated string into a slice of trimmed strings.
func (s *stringSlice) Set(value string) error {
	var result []string
	for _, p := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	*s = result
	return nil
}

// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Delivery modes for new wall posts.
const (
	ModePoll     = "poll"
	ModeCallback = "callback"
)

// Config holds the application configuration.
type Config struct {
	UserToken       string
	GroupToken      string
	GroupID         int64
	APIVersion      string
	ConfirmationKey string
	Secret          string
	DeliveryMode    string
	PollInterval    time.Duration
	CallbackAddr    string
	DatabasePath    string
	LogLevel        string
	SearchLimit     int
	MaxFreeSearches int
}

// Load reads configuration from the environment, after merging in a .env
// file when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	userToken := os.Getenv("VK_USER_TOKEN")
	groupToken := os.Getenv("VK_GROUP_TOKEN")
	if userToken == "" && groupToken == "" {
		return nil, fmt.Errorf("VK_USER_TOKEN or VK_GROUP_TOKEN is required")
	}

	rawGroupID := os.Getenv("VK_GROUP_ID")
	if rawGroupID == "" {
		return nil, fmt.Errorf("VK_GROUP_ID is required")
	}
	groupID, err := strconv.ParseInt(rawGroupID, 10, 64)
	if err != nil || groupID <= 0 {
		return nil, fmt.Errorf("invalid VK_GROUP_ID %q", rawGroupID)
	}

	version := os.Getenv("VK_API_VERSION")
	if version == "" {
		version = "5.199"
	}

	mode := os.Getenv("DELIVERY_MODE")
	if mode == "" {
		mode = ModePoll
	}
	if mode != ModePoll && mode != ModeCallback {
		return nil, fmt.Errorf("invalid DELIVERY_MODE %q (want %q or %q)", mode, ModePoll, ModeCallback)
	}

	confirmation := os.Getenv("VK_CONFIRMATION_KEY")
	if mode == ModeCallback && confirmation == "" {
		return nil, fmt.Errorf("VK_CONFIRMATION_KEY is required in callback mode")
	}

	intervalSec, err := intEnv("POLL_INTERVAL_SECONDS", 300)
	if err != nil {
		return nil, err
	}
	if intervalSec < 60 {
		return nil, fmt.Errorf("POLL_INTERVAL_SECONDS must be at least 60, got %d", intervalSec)
	}

	addr := os.Getenv("CALLBACK_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/bot.db"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	searchLimit, err := intEnv("SEARCH_RESULTS_LIMIT", 30)
	if err != nil {
		return nil, err
	}
	if searchLimit <= 0 {
		return nil, fmt.Errorf("SEARCH_RESULTS_LIMIT must be positive, got %d", searchLimit)
	}

	maxFree, err := intEnv("MAX_SEARCHES_NONMEMBER", 3)
	if err != nil {
		return nil, err
	}

	return &Config{
		UserToken:       userToken,
		GroupToken:      groupToken,
		GroupID:         groupID,
		APIVersion:      version,
		ConfirmationKey: confirmation,
		Secret:          os.Getenv("VK_SECRET"),
		DeliveryMode:    mode,
		PollInterval:    time.Duration(intervalSec) * time.Second,
		CallbackAddr:    addr,
		DatabasePath:    dbPath,
		LogLevel:        logLevel,
		SearchLimit:     searchLimit,
		MaxFreeSearches: maxFree,
	}, nil
}

// WallToken returns the token used for wall reads. The user token is
// preferred since wall.get with a group token hides some posts.
func (c *Config) WallToken() string {
	if c.UserToken != "" {
		return c.UserToken
	}
	return c.GroupToken
}

// BotToken returns the token used for sending messages and membership checks.
func (c *Config) BotToken() string {
	if c.GroupToken != "" {
		return c.GroupToken
	}
	return c.UserToken
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

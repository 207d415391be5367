package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Config struct {
	// HTTP Server
	Port           string
	RequestTimeout time.Duration

	// Backends
	GraphQLEndpoint string
	APIToken        string

	// Chain
	ScanURL          string
	ERCTokenAddress  string
	WPOLTokenAddress string
	ERCTokenSymbol   string
	NetworksFile     string
	Chains           []Chain

	// Rules
	GPAnalysisScoreThreshold float64
	GPScorerScoreThreshold   float64
	MinimumDonationAmount    float64
	RoundCacheTTL            time.Duration

	// Token prices
	SquidAPIURL       string
	SquidIntegratorID string
	PriceCacheTTL     time.Duration

	// IPFS
	IPFSAPIURL     string
	IPFSAPIToken   string
	IPFSGatewayURL string
	UploadMaxBytes int64

	// Database
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Worker
	PinSweepSchedule string
	PinBatchSize     int
	PinMaxAttempts   int
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8081"),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 15*time.Second),

		GraphQLEndpoint: getEnv("GRAPHQL_ENDPOINT", "https://qacc-be.generalmagic.io/graphql"),
		APIToken:        getEnv("QACC_API_TOKEN", ""),

		ScanURL:          getEnv("SCAN_URL", "https://polygonscan.com/"),
		ERCTokenAddress:  getEnv("ERC_TOKEN_ADDRESS", "0x0000000000000000000000000000000000000000"),
		WPOLTokenAddress: getEnv("WPOL_TOKEN_ADDRESS", "0x0d500b1d8e8ef31e21c99d1db9a6444d3adf1270"),
		ERCTokenSymbol:   getEnv("ERC_TOKEN_SYMBOL", "POL"),
		NetworksFile:     getEnv("NETWORKS_FILE", ""),

		GPAnalysisScoreThreshold: getEnvFloat("GP_ANALYSIS_SCORE_THRESHOLD", 50),
		GPScorerScoreThreshold:   getEnvFloat("GP_SCORER_SCORE_THRESHOLD", 15),
		MinimumDonationAmount:    getEnvFloat("MINIMUM_DONATION_AMOUNT", 10),
		RoundCacheTTL:            getEnvDuration("ROUND_CACHE_TTL", 30*time.Second),

		SquidAPIURL:       getEnv("SQUID_API_URL", "https://v2.api.squidrouter.com"),
		SquidIntegratorID: getEnv("SQUID_INTEGRATOR_ID", ""),
		PriceCacheTTL:     getEnvDuration("PRICE_CACHE_TTL", time.Minute),

		IPFSAPIURL:     getEnv("IPFS_API_URL", "http://localhost:5001"),
		IPFSAPIToken:   getEnv("IPFS_API_TOKEN", ""),
		IPFSGatewayURL: getEnv("IPFS_GATEWAY_URL", "https://ipfs.io"),
		UploadMaxBytes: getEnvInt64("UPLOAD_MAX_BYTES", 4<<20),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/qacc.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "qacc"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "pin_uploads"),

		PinSweepSchedule: getEnv("PIN_SWEEP_SCHEDULE", "@every 1m"),
		PinBatchSize:     getEnvInt("PIN_BATCH_SIZE", 10),
		PinMaxAttempts:   getEnvInt("PIN_MAX_ATTEMPTS", 5),
	}

	chains, err := LoadChains(cfg.NetworksFile)
	if err != nil {
		return nil, err
	}
	cfg.Chains = chains

	return cfg, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	for name, raw := range map[string]string{
		"GRAPHQL_ENDPOINT": c.GraphQLEndpoint,
		"IPFS_API_URL":     c.IPFSAPIURL,
		"IPFS_GATEWAY_URL": c.IPFSGatewayURL,
		"SCAN_URL":         c.ScanURL,
	} {
		if err := validateHTTPURL(raw); err != nil {
			errors = append(errors, fmt.Sprintf("invalid %s '%s': %v", name, raw, err))
		}
	}

	if c.GPAnalysisScoreThreshold < 0 || c.GPScorerScoreThreshold < 0 {
		errors = append(errors, "gitcoin passport thresholds must not be negative")
	}
	if c.ERCTokenAddress == "" || c.ERCTokenSymbol == "" {
		errors = append(errors, "ERC token address and symbol are required")
	}
	if c.MinimumDonationAmount < 0 {
		errors = append(errors, fmt.Sprintf("invalid minimum donation amount %v: must not be negative", c.MinimumDonationAmount))
	}
	if c.UploadMaxBytes < 1 {
		errors = append(errors, fmt.Sprintf("invalid upload limit %d: must be positive", c.UploadMaxBytes))
	}
	if len(c.Chains) == 0 {
		errors = append(errors, "at least one supported chain is required")
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if _, err := cron.ParseStandard(c.PinSweepSchedule); err != nil {
		errors = append(errors, fmt.Sprintf("invalid pin sweep schedule '%s': %v", c.PinSweepSchedule, err))
	}
	if c.PinBatchSize < 1 || c.PinBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid pin batch size %d: must be between 1 and 1000", c.PinBatchSize))
	}
	if c.PinMaxAttempts < 1 {
		errors = append(errors, fmt.Sprintf("invalid pin max attempts %d: must be at least 1", c.PinMaxAttempts))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// Public is the part of the configuration a client needs to build donation
// forms. It carries no secrets.
type Public struct {
	Chains                []Chain `json:"chains"`
	ScanURL               string  `json:"scanUrl"`
	TokenAddress          string  `json:"tokenAddress"`
	TokenSymbol           string  `json:"tokenSymbol"`
	WPOLTokenAddress      string  `json:"wpolTokenAddress"`
	MinimumDonationAmount float64 `json:"minimumDonationAmount"`
	GitcoinPassport       struct {
		AnalysisScoreThreshold float64 `json:"analysisScoreThreshold"`
		ScorerScoreThreshold   float64 `json:"scorerScoreThreshold"`
	} `json:"gitcoinPassport"`
	UploadMaxBytes int64 `json:"uploadMaxBytes"`
}

func (c *Config) Public() Public {
	p := Public{
		Chains:                c.Chains,
		ScanURL:               c.ScanURL,
		TokenAddress:          c.ERCTokenAddress,
		TokenSymbol:           c.ERCTokenSymbol,
		WPOLTokenAddress:      c.WPOLTokenAddress,
		MinimumDonationAmount: c.MinimumDonationAmount,
		UploadMaxBytes:        c.UploadMaxBytes,
	}
	p.GitcoinPassport.AnalysisScoreThreshold = c.GPAnalysisScoreThreshold
	p.GitcoinPassport.ScorerScoreThreshold = c.GPScorerScoreThreshold
	return p
}

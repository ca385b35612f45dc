// Package config loads and validates the ingestion service's configuration
// from environment variables into a single frozen value.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
)

// Config holds every tunable the ingestion pipeline needs. It is built once
// at boot by Load and passed down explicitly to constructors — there is no
// process-wide mutable config singleton.
type Config struct {
	TelegramPhone   string
	TelegramAPIID   int
	TelegramAPIHash string
	TelegramChannels []int64

	WorkerCount    int
	QueueCapacity  int
	StoragePath    string
	DatabaseURL    string

	IOCDomains     []string
	IOCEmails      []string
	IOCIPv4CIDRs   []netip.Prefix

	MaxDecompressedBytes   int64
	MaxDecompressionRatio  int
	MaxArchiveMembers      int
	MaxDocumentSizeBytes   int64
	DownloadMaxRetries     int

	MetricsAddr string
}

// Load reads and validates all configuration from the environment. It
// returns a single aggregated error describing every problem found, so an
// operator sees all missing/invalid settings in one shot rather than
// fixing them one at a time.
func Load() (*Config, error) {
	var problems []string
	cfg := &Config{}

	cfg.TelegramPhone = getEnvDefault("TELEGRAM_PHONE", "")
	if cfg.TelegramPhone == "" {
		problems = append(problems, "TELEGRAM_PHONE: required environment variable not set")
	}

	apiID, err := getEnvIntRequired("TELEGRAM_API_ID")
	if err != nil {
		problems = append(problems, err.Error())
	}
	cfg.TelegramAPIID = apiID

	cfg.TelegramAPIHash = getEnvDefault("TELEGRAM_API_HASH", "")
	if cfg.TelegramAPIHash == "" {
		problems = append(problems, "TELEGRAM_API_HASH: required environment variable not set")
	}

	channels, err := parseChannels(getEnvDefault("TELEGRAM_CHANNELS", ""))
	if err != nil {
		problems = append(problems, fmt.Sprintf("TELEGRAM_CHANNELS: %v", err))
	}
	if len(channels) == 0 {
		problems = append(problems, "TELEGRAM_CHANNELS: at least one channel id is required")
	}
	cfg.TelegramChannels = channels

	workerCount, err := getEnvIntDefault("WORKER_COUNT", 4)
	if err != nil {
		problems = append(problems, err.Error())
	} else if workerCount <= 0 {
		problems = append(problems, "WORKER_COUNT: must be a positive integer")
	}
	cfg.WorkerCount = workerCount

	queueCapacity, err := getEnvIntDefault("QUEUE_CAPACITY", 4*workerCount)
	if err != nil {
		problems = append(problems, err.Error())
	} else if queueCapacity <= 0 {
		problems = append(problems, "QUEUE_CAPACITY: must be a positive integer")
	}
	cfg.QueueCapacity = queueCapacity

	cfg.StoragePath = getEnvDefault("STORAGE_PATH", "")
	if cfg.StoragePath == "" {
		problems = append(problems, "STORAGE_PATH: required environment variable not set")
	}

	cfg.DatabaseURL = getEnvDefault("DATABASE_URL", "")
	if cfg.DatabaseURL == "" {
		problems = append(problems, "DATABASE_URL: required environment variable not set")
	}

	cfg.IOCDomains = splitCSV(getEnvDefault("IOC_DOMAINS", ""))
	cfg.IOCEmails = splitCSV(getEnvDefault("IOC_EMAILS", ""))

	cidrs, err := parseCIDRs(getEnvDefault("IOC_IPV4_CIDRS", ""))
	if err != nil {
		problems = append(problems, fmt.Sprintf("IOC_IPV4_CIDRS: %v", err))
	}
	cfg.IOCIPv4CIDRs = cidrs

	maxDecompressed, err := getEnvInt64Default("MAX_DECOMPRESSED_BYTES", 2<<30)
	if err != nil {
		problems = append(problems, err.Error())
	}
	cfg.MaxDecompressedBytes = maxDecompressed

	ratio, err := getEnvIntDefault("MAX_DECOMPRESSION_RATIO", 100)
	if err != nil {
		problems = append(problems, err.Error())
	}
	cfg.MaxDecompressionRatio = ratio

	maxMembers, err := getEnvIntDefault("MAX_ARCHIVE_MEMBERS", 1000)
	if err != nil {
		problems = append(problems, err.Error())
	} else if maxMembers <= 0 {
		problems = append(problems, "MAX_ARCHIVE_MEMBERS: must be a positive integer")
	}
	cfg.MaxArchiveMembers = maxMembers

	maxDocSizeMB, err := getEnvInt64Default("MAX_DOCUMENT_SIZE_MB", 100)
	if err != nil {
		problems = append(problems, err.Error())
	} else if maxDocSizeMB <= 0 {
		problems = append(problems, "MAX_DOCUMENT_SIZE_MB: must be a positive integer")
	}
	cfg.MaxDocumentSizeBytes = maxDocSizeMB * 1024 * 1024

	retries, err := getEnvIntDefault("DOWNLOAD_MAX_RETRIES", 5)
	if err != nil {
		problems = append(problems, err.Error())
	}
	cfg.DownloadMaxRetries = retries

	cfg.MetricsAddr = getEnvDefault("METRICS_ADDR", ":9090")

	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}

	return cfg, nil
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvIntDefault(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func getEnvIntRequired(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, fmt.Errorf("%s: required environment variable not set", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func getEnvInt64Default(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseChannels(v string) ([]int64, error) {
	raw := splitCSV(v)
	out := make([]int64, 0, len(raw))
	for _, r := range raw {
		id, err := strconv.ParseInt(r, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid channel id %q: %w", r, err)
		}
		out = append(out, id)
	}
	return out, nil
}

func parseCIDRs(v string) ([]netip.Prefix, error) {
	raw := splitCSV(v)
	out := make([]netip.Prefix, 0, len(raw))
	for _, r := range raw {
		p, err := netip.ParsePrefix(r)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", r, err)
		}
		out = append(out, p)
	}
	return out, nil
}

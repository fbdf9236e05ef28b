package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"

	"imaging-gateway/scp"
)

// Config holds service configuration, read from environment variables
// so deployment setup stays flat.
type Config struct {
	ListenAddr  string
	MetricsAddr string
	ProjectID   string

	StorageRoot   string
	Watermark     float64
	ReserveGB     uint64
	ArchiveBucket string

	AETitles                     []string
	AllowedSources               []string // "AET@host" entries
	RejectUnknownSources         bool
	EnableVerification           bool
	VerificationTransferSyntaxes []string
	CanStore                     bool

	MaxRetries int
}

// LoadConfig reads configuration from environment variables with
// sensible defaults for local dev.
func LoadConfig() Config {
	cfg := Config{
		ListenAddr:  getenv("GATEWAY_LISTEN_ADDR", ":8080"),
		MetricsAddr: getenv("GATEWAY_METRICS_ADDR", ":9090"),
		ProjectID:   getenv("GATEWAY_PROJECT_ID", "imaging-gateway-dev"),

		StorageRoot:   getenv("GATEWAY_STORAGE_ROOT", "/var/lib/imaging-gateway/payloads"),
		ArchiveBucket: os.Getenv("GATEWAY_ARCHIVE_BUCKET"),
	}

	cfg.Watermark = getenvFloat("GATEWAY_STORAGE_WATERMARK", 75)
	cfg.ReserveGB = uint64(getenvInt("GATEWAY_STORAGE_RESERVE_GB", 5))
	cfg.MaxRetries = getenvInt("GATEWAY_MAX_RETRIES", 3)

	cfg.AETitles = splitList(getenv("GATEWAY_AE_TITLES", "IMAGING-GATEWAY"))
	cfg.AllowedSources = splitList(os.Getenv("GATEWAY_ALLOWED_SOURCES"))
	cfg.RejectUnknownSources = getenvBool("GATEWAY_REJECT_UNKNOWN_SOURCES", true)
	cfg.EnableVerification = getenvBool("GATEWAY_ENABLE_VERIFICATION", true)
	cfg.CanStore = getenvBool("GATEWAY_ENABLE_STORE", true)
	cfg.VerificationTransferSyntaxes = splitList(getenv("GATEWAY_VERIFICATION_TRANSFER_SYNTAXES",
		"1.2.840.10008.1.2.1,1.2.840.10008.1.2"))

	return cfg
}

// AEConfig maps the environment settings onto the SCP decision layer.
func (c Config) AEConfig() scp.AEConfig {
	return scp.AEConfig{
		EnableVerification:           c.EnableVerification,
		RejectUnknownSources:         c.RejectUnknownSources,
		VerificationTransferSyntaxes: c.VerificationTransferSyntaxes,
		CanStore:                     c.CanStore,
	}
}

// Sources parses the "AET@host" entries into source descriptors.
// Malformed entries are logged and skipped.
func (c Config) Sources() []scp.SourceAE {
	var sources []scp.SourceAE
	for _, entry := range c.AllowedSources {
		aet, host, ok := strings.Cut(entry, "@")
		if !ok || aet == "" || host == "" {
			log.Printf("Config: ignoring malformed source entry %q (want AET@host)", entry)
			continue
		}
		sources = append(sources, scp.SourceAE{AETitle: aet, Host: host})
	}
	return sources
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Config: invalid %s=%q, using %d: %v", key, v, def, err)
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("Config: invalid %s=%q, using %g: %v", key, v, def, err)
		return def
	}
	return f
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("Config: invalid %s=%q, using %t: %v", key, v, def, err)
		return def
	}
	return b
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// secretManagerSource resolves connection credentials through Google
// Secret Manager. The secret payload is used verbatim as the
// Authorization header value.
type secretManagerSource struct {
	projectID string
}

func (s *secretManagerSource) Resolve(ctx context.Context, name string) (string, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("initializing Secret Manager client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Printf("Secrets: error closing Secret Manager client: %v", err)
		}
	}()

	resource := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", s.projectID, name)
	resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
	if err != nil {
		return "", fmt.Errorf("accessing secret %s: %w", resource, err)
	}
	if resp.Payload == nil || len(resp.Payload.Data) == 0 {
		return "", fmt.Errorf("secret %s has empty payload", resource)
	}
	return strings.TrimSpace(string(resp.Payload.Data)), nil
}

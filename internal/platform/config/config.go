package config

import (
	"os"
	"time"
)

// Server captures process level configuration.
//
// CollectWindow bounds how long a single ledger collection waits for topic
// entries. The window is a tunable, not a constant baked into the resolver:
// it must track the finality latency of whatever log backs the deployment.
type Server struct {
	Addr           string
	Environment    string
	AuthorityDID   string
	TrustTopicID   string
	AnchorTopicID  string
	TrustDocFile   string
	CollectWindow  time.Duration
	MaxUploadBytes int64
}

// DefaultCollectWindow matches single-digit-second log finality.
var DefaultCollectWindow = 5 * time.Second

// DefaultMaxUploadBytes caps multipart credential uploads.
var DefaultMaxUploadBytes = int64(1 << 20)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("ATLASID_ADDR")
	if addr == "" {
		addr = ":3001"
	}

	environment := os.Getenv("ATLASID_ENV")
	if environment == "" {
		environment = "development"
	}

	window := DefaultCollectWindow
	if raw := os.Getenv("ATLASID_COLLECT_WINDOW"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			window = d
		}
	}

	return Server{
		Addr:           addr,
		Environment:    environment,
		AuthorityDID:   os.Getenv("ATLASID_AUTHORITY_DID"),
		TrustTopicID:   os.Getenv("ATLASID_TRUST_TOPIC_ID"),
		AnchorTopicID:  os.Getenv("ATLASID_ANCHOR_TOPIC_ID"),
		TrustDocFile:   os.Getenv("ATLASID_TRUST_DOC_FILE"),
		CollectWindow:  window,
		MaxUploadBytes: DefaultMaxUploadBytes,
	}
}

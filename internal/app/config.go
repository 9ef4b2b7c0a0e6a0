package app

import (
	"os"
	"path/filepath"
	"time"

	"talkwire/internal/relay"
)

// Config contains all runtime configuration loaded from environment
// variables. Channel and group policy lives in the YAML policy file, not
// here; this is the process-level wiring only.
type Config struct {
	StateDir string
	Account  string

	APIBaseURL  string
	StreamURL   string
	Origin      string
	InsecureTLS bool

	LogLevel string

	// DisplayName overrides the persisted profile when set.
	DisplayName string

	PolicyFile string

	DatabaseURL string
	DBMaxConns  int
	DBMinConns  int

	MetricsAddr string

	ResponderURL   string
	ChunkLimit     int
	ReconnectDelay time.Duration
	KeepAlive      time.Duration
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		StateDir: envStr("TW_STATE_DIR", defaultStateDir()),
		Account:  envStr("TW_ACCOUNT", "default"),

		APIBaseURL:  envStr("TW_API_BASE_URL", ""),
		StreamURL:   envStr("TW_STREAM_URL", ""),
		Origin:      envStr("TW_ORIGIN", ""),
		InsecureTLS: envBool("TW_INSECURE_TLS", false),

		LogLevel: envStr("TW_LOG_LEVEL", "info"),

		DisplayName: envStr("TW_DISPLAY_NAME", ""),

		PolicyFile: envStr("TW_POLICY_FILE", ""),

		DatabaseURL: envStr("TW_DATABASE_URL", ""),
		DBMaxConns:  envInt("TW_DB_MAX_CONNS", 4),
		DBMinConns:  envInt("TW_DB_MIN_CONNS", 0),

		MetricsAddr: envStr("TW_METRICS_ADDR", ""),

		ResponderURL:   envStr("TW_RESPONDER_URL", ""),
		ChunkLimit:     envInt("TW_CHUNK_LIMIT", relay.DefaultChunkLimit),
		ReconnectDelay: envDur("TW_RECONNECT_DELAY", 5*time.Second),
		KeepAlive:      envDur("TW_KEEPALIVE", 30*time.Second),
	}
}

func defaultStateDir() string {
	if d, err := os.UserConfigDir(); err == nil {
		return filepath.Join(d, "talkwire")
	}
	return ".talkwire"
}

package node

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/lizatkinson/papyrus/params"
	"github.com/lizatkinson/papyrus/sync"
	"github.com/lizatkinson/papyrus/sync/central"
)

const (
	DefaultHTTPHost = "127.0.0.1"
	DefaultHTTPPort = 8560
)

// Config holds the settings of a replica node.
type Config struct {
	// DataDir is the directory holding the database and the instance lock.
	DataDir string

	// Chain selects the network presets. Overridden by the network flags.
	Chain *params.ChainConfig `toml:"-"`

	// Central configures the gateway client.
	Central central.Config

	// Sync configures the sync loop.
	Sync sync.Config

	// Database options.
	DatabaseCache   int
	DatabaseHandles int `toml:"-"`

	// HTTPHost is the interface of the status endpoint. Empty disables it.
	HTTPHost string
	HTTPPort int
	HTTPCors []string
}

// DefaultConfig contains the default node settings.
var DefaultConfig = Config{
	DataDir: DefaultDataDir(),
	Chain:   params.MainnetChainConfig,
	Central: central.Config{
		URL:            params.MainnetChainConfig.GatewayURL,
		RequestTimeout: 30 * time.Second,
	},
	Sync:          sync.DefaultConfig,
	DatabaseCache: 512,
	HTTPPort:      DefaultHTTPPort,
}

// DefaultDataDir is the default data directory to use for the database and
// other persistence requirements.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		// Without a home directory there is no default; New rejects the
		// empty data directory.
		return ""
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Papyrus")
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "Papyrus")
	default:
		return filepath.Join(home, ".papyrus")
	}
}

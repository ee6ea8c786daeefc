package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Constants for default values
const (
	DefaultListenAddr    = "0.0.0.0:2121"
	DefaultServerAddr    = "127.0.0.1:2121"
	DefaultRootDir       = "./server_files"
	DefaultDownloadDir   = "."
	DefaultDataPortMin   = 20000
	DefaultDataPortMax   = 21000
	DefaultBufferSize    = 64 * 1024 // 64KB
	DefaultTimeout       = 60 * time.Second
	DefaultIdleTimeout   = 5 * time.Minute
	DefaultLogDir        = "logs"
	DefaultListingFormat = ListingLong
	DefaultHashAlgorithm = HashBLAKE2b

	// Listing formats
	ListingLong  = "long"
	ListingShort = "short"

	// Digests used to fingerprint transferred files
	HashMD5     = "md5"
	HashSHA256  = "sha256"
	HashBLAKE2b = "blake2b"

	// File system constants
	StagingDirName = ".incoming"
	LogDirPerms    = 0755
	FilePerms      = 0644

	// mDNS service type used when advertising the control endpoint
	ServiceType = "_minftp._tcp"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Server mode settings
	IsServer      bool   `yaml:"-"`
	ListenAddress string `yaml:"listen"`
	RootDir       string `yaml:"root"`
	DataHost      string `yaml:"data_host"`
	DataPortMin   int    `yaml:"data_port_min"`
	DataPortMax   int    `yaml:"data_port_max"`
	MaxSessions   int    `yaml:"max_sessions"`
	ListingFormat string `yaml:"listing_format"`
	Advertise     bool   `yaml:"advertise"`

	// Client mode settings
	ServerAddress string `yaml:"connect"`
	DownloadDir   string `yaml:"download_dir"`
	ShowProgress  bool   `yaml:"progress"`

	// Common parameters
	BufferSize  int           `yaml:"buffer_size"`
	Timeout     time.Duration `yaml:"timeout"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	LogDir      string        `yaml:"log_dir"`
	Verbose     bool          `yaml:"verbose"`

	// HashAlgorithm fingerprints uploads on the server and downloads on the client
	HashAlgorithm string `yaml:"hash_algorithm"`
}

// Default returns a Config populated with the default values
func Default() *Config {
	return &Config{
		ListenAddress: DefaultListenAddr,
		RootDir:       DefaultRootDir,
		DataPortMin:   DefaultDataPortMin,
		DataPortMax:   DefaultDataPortMax,
		ListingFormat: DefaultListingFormat,
		ServerAddress: DefaultServerAddr,
		DownloadDir:   DefaultDownloadDir,
		ShowProgress:  true,
		BufferSize:    DefaultBufferSize,
		Timeout:       DefaultTimeout,
		IdleTimeout:   DefaultIdleTimeout,
		HashAlgorithm: DefaultHashAlgorithm,
		LogDir:        DefaultLogDir,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer size must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("idle timeout cannot be negative")
	}
	switch c.HashAlgorithm {
	case HashMD5, HashSHA256, HashBLAKE2b:
	default:
		return fmt.Errorf("hash algorithm must be %q, %q or %q", HashMD5, HashSHA256, HashBLAKE2b)
	}

	if c.IsServer {
		if c.ListenAddress == "" {
			return fmt.Errorf("listen address is required in server mode")
		}
		if c.RootDir == "" {
			return fmt.Errorf("root directory is required in server mode")
		}
		if c.DataPortMin < 0 || c.DataPortMax > 65535 || c.DataPortMin > c.DataPortMax {
			return fmt.Errorf("invalid data port range %d-%d", c.DataPortMin, c.DataPortMax)
		}
		if c.DataPortMin == 0 && c.DataPortMax != 0 {
			return fmt.Errorf("data port range must start above 0 or be 0-0 for OS-assigned ports")
		}
		if c.MaxSessions < 0 {
			return fmt.Errorf("max sessions cannot be negative")
		}
		if c.ListingFormat != ListingLong && c.ListingFormat != ListingShort {
			return fmt.Errorf("listing format must be %q or %q", ListingLong, ListingShort)
		}
	} else if c.ServerAddress == "" {
		return fmt.Errorf("server address is required in client mode")
	}

	return nil
}

// BindFlags registers the configuration fields on fs using the current values as defaults
func (c *Config) BindFlags(fs *pflag.FlagSet, server bool) {
	if server {
		fs.StringVar(&c.ListenAddress, "listen", c.ListenAddress, "Control address to listen on")
		fs.StringVar(&c.RootDir, "root", c.RootDir, "Managed root directory served to clients")
		fs.StringVar(&c.DataHost, "data-host", c.DataHost, "Host to bind data listeners on (default: all interfaces)")
		fs.IntVar(&c.DataPortMin, "data-port-min", c.DataPortMin, "First port of the data channel range (0 for OS-assigned)")
		fs.IntVar(&c.DataPortMax, "data-port-max", c.DataPortMax, "Last port of the data channel range (0 for OS-assigned)")
		fs.IntVar(&c.MaxSessions, "max-sessions", c.MaxSessions, "Maximum concurrent control sessions (0 for unlimited)")
		fs.StringVar(&c.ListingFormat, "listing", c.ListingFormat, "LS payload format: long or short")
		fs.BoolVar(&c.Advertise, "advertise", c.Advertise, "Advertise the control endpoint over mDNS")
	} else {
		fs.StringVar(&c.ServerAddress, "connect", c.ServerAddress, "Server control address to connect to")
		fs.StringVar(&c.DownloadDir, "download-dir", c.DownloadDir, "Directory GET writes files into")
		fs.BoolVar(&c.ShowProgress, "progress", c.ShowProgress, "Show progress during transfers")
	}

	fs.IntVar(&c.BufferSize, "buffer", c.BufferSize, "Data channel buffer size in bytes")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "Socket timeout for data channels and replies")
	fs.DurationVar(&c.IdleTimeout, "idle-timeout", c.IdleTimeout, "Idle timeout on the control channel (0 disables)")
	fs.StringVar(&c.HashAlgorithm, "hash", c.HashAlgorithm, "Digest logged for transferred files: md5, sha256 or blake2b")
	fs.StringVar(&c.LogDir, "log-dir", c.LogDir, "Directory for log files")
	fs.BoolVar(&c.Verbose, "verbose", c.Verbose, "Enable debug logging")
}

// LoadFile overlays the YAML document at path onto the config
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	return nil
}

// UsesOSPorts reports whether data ports are left to the operating system
func (c *Config) UsesOSPorts() bool {
	return c.DataPortMin == 0 && c.DataPortMax == 0
}

// String returns a string representation of the config for logging
func (c *Config) String() string {
	if c.IsServer {
		return fmt.Sprintf("Config{Mode: Server, Listen: %s, Root: %s, DataPorts: %d-%d, BufferSize: %d, Timeout: %s}",
			c.ListenAddress, c.RootDir, c.DataPortMin, c.DataPortMax, c.BufferSize, c.Timeout)
	}

	return fmt.Sprintf("Config{Mode: Client, Connect: %s, BufferSize: %d, Timeout: %s}",
		c.ServerAddress, c.BufferSize, c.Timeout)
}

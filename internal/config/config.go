package config

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListenHost          = "127.0.0.1"
	DefaultListenPort          = 5000
	DefaultLogDir              = "./logs"
	DefaultMaxPendingDatagrams = 1000
	DefaultWorkers             = 1

	keyHexLen = 32
)

// Config is the validated receiver configuration.
type Config struct {
	ListenHost          string
	ListenPort          int
	LogDir              string
	DecodeEnabled       bool
	MaxPendingDatagrams int
	Workers             int
	ReadBufferBytes     int
	StatusListen        string
	Keys                KeyTable
}

// ListenAddr is the UDP bind address.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(c.ListenPort))
}

// KeyTable resolves per-device XTEA keys with an optional fallback. It is
// never mutated after Load, so concurrent Resolve calls are safe.
type KeyTable struct {
	Default []byte
	ByIMEI  map[string][]byte
}

// Resolve returns the key configured for imei, else the default key.
func (k KeyTable) Resolve(imei string) ([]byte, bool) {
	if key, ok := k.ByIMEI[imei]; ok {
		return key, true
	}
	if k.Default != nil {
		return k.Default, true
	}
	return nil, false
}

// IMEIs lists the devices with a dedicated key, sorted.
func (k KeyTable) IMEIs() []string {
	out := make([]string, 0, len(k.ByIMEI))
	for imei := range k.ByIMEI {
		out = append(out, imei)
	}
	sort.Strings(out)
	return out
}

// fileConfig mirrors the on-disk layout. Pointers distinguish an absent field
// from an explicit zero value.
type fileConfig struct {
	ListenHost          *string  `yaml:"listen_host" toml:"listen_host" json:"listen_host"`
	ListenPort          *int     `yaml:"listen_port" toml:"listen_port" json:"listen_port"`
	LogDir              *string  `yaml:"log_dir" toml:"log_dir" json:"log_dir"`
	DecodeEnabled       *bool    `yaml:"decode_enabled" toml:"decode_enabled" json:"decode_enabled"`
	MaxPendingDatagrams *int     `yaml:"max_pending_datagrams" toml:"max_pending_datagrams" json:"max_pending_datagrams"`
	Workers             *int     `yaml:"workers" toml:"workers" json:"workers"`
	ReadBufferBytes     int      `yaml:"read_buffer_bytes" toml:"read_buffer_bytes" json:"read_buffer_bytes"`
	StatusListen        string   `yaml:"status_listen" toml:"status_listen" json:"status_listen"`
	Keys                fileKeys `yaml:"keys" toml:"keys" json:"keys"`
}

type fileKeys struct {
	DefaultHex *string            `yaml:"default_hex" toml:"default_hex" json:"default_hex"`
	ByIMEI     map[string]*string `yaml:"by_imei" toml:"by_imei" json:"by_imei"`
}

// Load reads a YAML (default), TOML (.toml) or JSON (.json) config file,
// applies defaults and validates it.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config file not found: %s", path)
		}
		return Config{}, err
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(b, &fc); err != nil {
			return Config{}, fmt.Errorf("invalid TOML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return Config{}, fmt.Errorf("invalid JSON config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return Config{}, fmt.Errorf("invalid YAML config: %w", err)
		}
	}
	return fc.resolve()
}

func (fc fileConfig) resolve() (Config, error) {
	cfg := Config{
		ListenHost:          DefaultListenHost,
		ListenPort:          DefaultListenPort,
		LogDir:              DefaultLogDir,
		DecodeEnabled:       true,
		MaxPendingDatagrams: DefaultMaxPendingDatagrams,
		Workers:             DefaultWorkers,
		ReadBufferBytes:     fc.ReadBufferBytes,
		StatusListen:        strings.TrimSpace(fc.StatusListen),
	}
	if fc.ListenHost != nil {
		cfg.ListenHost = *fc.ListenHost
	}
	if fc.ListenPort != nil {
		cfg.ListenPort = *fc.ListenPort
	}
	if fc.LogDir != nil {
		cfg.LogDir = *fc.LogDir
	}
	if fc.DecodeEnabled != nil {
		cfg.DecodeEnabled = *fc.DecodeEnabled
	}
	if fc.MaxPendingDatagrams != nil {
		cfg.MaxPendingDatagrams = *fc.MaxPendingDatagrams
	}
	if fc.Workers != nil {
		cfg.Workers = *fc.Workers
	}

	if strings.TrimSpace(cfg.ListenHost) == "" {
		return Config{}, fmt.Errorf("listen_host must be a non-empty string")
	}
	if cfg.ListenPort < 1 || cfg.ListenPort > 65535 {
		return Config{}, fmt.Errorf("listen_port must be an integer in range 1..65535")
	}
	if strings.TrimSpace(cfg.LogDir) == "" {
		return Config{}, fmt.Errorf("log_dir must be a non-empty string")
	}
	if cfg.MaxPendingDatagrams < 1 || cfg.MaxPendingDatagrams > 100000 {
		return Config{}, fmt.Errorf("max_pending_datagrams must be an integer in range 1..100000")
	}
	if cfg.Workers < 1 || cfg.Workers > 64 {
		return Config{}, fmt.Errorf("workers must be an integer in range 1..64")
	}
	if cfg.ReadBufferBytes < 0 {
		return Config{}, fmt.Errorf("read_buffer_bytes must be >= 0")
	}
	if cfg.StatusListen != "" {
		if _, _, err := net.SplitHostPort(cfg.StatusListen); err != nil {
			return Config{}, fmt.Errorf("status_listen must be host:port: %w", err)
		}
	}

	keys, err := fc.Keys.resolve()
	if err != nil {
		return Config{}, err
	}
	cfg.Keys = keys
	return cfg, nil
}

func (fk fileKeys) resolve() (KeyTable, error) {
	kt := KeyTable{ByIMEI: make(map[string][]byte, len(fk.ByIMEI))}

	if fk.DefaultHex != nil {
		key, err := ParseHexKey(*fk.DefaultHex, "keys.default_hex")
		if err != nil {
			return KeyTable{}, err
		}
		kt.Default = key
	}

	for imei, keyHex := range fk.ByIMEI {
		if !isDigits(imei) {
			return KeyTable{}, fmt.Errorf("keys.by_imei keys must be IMEI strings with digits only")
		}
		field := fmt.Sprintf("keys.by_imei[%s]", imei)
		if keyHex == nil {
			return KeyTable{}, fmt.Errorf("%s cannot be null", field)
		}
		key, err := ParseHexKey(*keyHex, field)
		if err != nil {
			return KeyTable{}, err
		}
		kt.ByIMEI[imei] = key
	}
	return kt, nil
}

// ParseHexKey decodes a 32-character hex string into a 16-byte key. field is
// used in error messages.
func ParseHexKey(s, field string) ([]byte, error) {
	if len(s) != keyHexLen {
		return nil, fmt.Errorf("%s must be exactly 32 hex characters", field)
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%s must be valid hex", field)
	}
	return key, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

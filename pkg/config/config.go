package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
	} `yaml:"server"`
	Peer struct {
		Handle      string   `yaml:"handle"`
		ListenAddr  string   `yaml:"listen_addr"`
		ListenPort  int      `yaml:"listen_port"`
		MDNS        bool     `yaml:"mdns"`
		ServiceTag  string   `yaml:"service_tag"`
		Bootstrap   []string `yaml:"bootstrap"`
		RateRPS     float64  `yaml:"rate_rps"`
		RateBurst   int      `yaml:"rate_burst"`
		MaxEventLen int      `yaml:"max_event_len"`
	} `yaml:"peer"`
	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`
	Responder struct {
		Enabled    bool   `yaml:"enabled"`
		APIKey     string `yaml:"api_key"`
		ChatModel  string `yaml:"chat_model"`
		ImageModel string `yaml:"image_model"`
	} `yaml:"responder"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // text|json
	} `yaml:"logging"`
	Maintenance struct {
		Cron string `yaml:"cron"`
	} `yaml:"maintenance"`
}

// Addr returns host:port for the local HTTP gateway.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "127.0.0.1"
	}
	p := c.Server.Port
	if p == 0 {
		p = 8374
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// SplitAddr splits a host:port string; a bare host yields port 0.
func SplitAddr(addr string) (string, int) {
	if h, p, err := net.SplitHostPort(addr); err == nil {
		pi, _ := strconv.Atoi(p)
		return h, pi
	}
	return addr, 0
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseCommandFlags defines and parses command-line flags and returns their
// values along with a map indicating which flags were explicitly set.
func ParseCommandFlags() (addr string, dbPath string, handle string, cfgPath string, setFlags map[string]bool) {
	addrPtr := flag.String("addr", "127.0.0.1:8374", "gateway listen address")
	dbPtr := flag.String("db", "./.backchannel", "Pebble DB path")
	handlePtr := flag.String("handle", "", "local user handle")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return *addrPtr, *dbPtr, *handlePtr, *cfgPtr, setFlags
}

// LoadEnvOverrides applies environment overrides onto the provided cfg and
// reports whether any env vars were used.
func LoadEnvOverrides(cfg *Config) bool {
	envUsed := false
	parseList := func(v string) []string {
		if v == "" {
			return nil
		}
		parts := []string{}
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	}

	if v := os.Getenv("BACKCHANNEL_ADDR"); v != "" {
		envUsed = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = v
		}
	}
	if v := os.Getenv("BACKCHANNEL_DB_PATH"); v != "" {
		envUsed = true
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("BACKCHANNEL_HANDLE"); v != "" {
		envUsed = true
		cfg.Peer.Handle = v
	}
	if v := os.Getenv("BACKCHANNEL_PEER_ADDR"); v != "" {
		envUsed = true
		cfg.Peer.ListenAddr = v
	}
	if v := os.Getenv("BACKCHANNEL_PEER_PORT"); v != "" {
		if pi, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Peer.ListenPort = pi
		}
	}
	if v := os.Getenv("BACKCHANNEL_MDNS"); v != "" {
		envUsed = true
		vl := strings.ToLower(strings.TrimSpace(v))
		cfg.Peer.MDNS = vl == "1" || vl == "true" || vl == "yes"
	}
	if v := os.Getenv("BACKCHANNEL_BOOTSTRAP"); v != "" {
		envUsed = true
		cfg.Peer.Bootstrap = parseList(v)
	}
	if v := os.Getenv("BACKCHANNEL_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envUsed = true
			cfg.Peer.RateRPS = f
		}
	}
	if v := os.Getenv("BACKCHANNEL_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Peer.RateBurst = n
		}
	}
	if v := os.Getenv("BACKCHANNEL_RESPONDER_API_KEY"); v != "" {
		envUsed = true
		cfg.Responder.APIKey = v
		cfg.Responder.Enabled = true
	}
	if v := os.Getenv("BACKCHANNEL_RESPONDER_CHAT_MODEL"); v != "" {
		envUsed = true
		cfg.Responder.ChatModel = v
	}
	if v := os.Getenv("BACKCHANNEL_RESPONDER_IMAGE_MODEL"); v != "" {
		envUsed = true
		cfg.Responder.ImageModel = v
	}
	if v := os.Getenv("BACKCHANNEL_MAINTENANCE_CRON"); v != "" {
		envUsed = true
		cfg.Maintenance.Cron = v
	}
	return envUsed
}

// LoadEffective loads config from the given path and applies environment
// overrides. A missing file is not an error; overrides apply to a zero config.
func LoadEffective(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if err != nil {
		cfg = &Config{}
	}
	envUsed := LoadEnvOverrides(cfg)
	return cfg, envUsed, nil
}

// ResolveConfigPath decides the config file path using the flag-provided value
// and the environment variable `BACKCHANNEL_CONFIG` when the flag was not set.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("BACKCHANNEL_CONFIG"); p != "" {
		return p
	}
	return flagPath
}

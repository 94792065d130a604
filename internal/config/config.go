package config

import "time"

// Config holds tracker and peer configuration values.
type Config struct {
	LogLevel string        `mapstructure:"log_level" yaml:"log_level"`
	Tracker  TrackerConfig `mapstructure:"tracker" yaml:"tracker"`
	Peer     PeerConfig    `mapstructure:"peer" yaml:"peer"`
}

// TrackerConfig configures the tracker process.
type TrackerConfig struct {
	Addr             string        `mapstructure:"addr" yaml:"addr"`
	AdminAddr        string        `mapstructure:"admin_addr" yaml:"admin_addr"`
	DatabasePath     string        `mapstructure:"database_path" yaml:"database_path"`
	UsersFile        string        `mapstructure:"users_file" yaml:"users_file"`
	StaticDir        string        `mapstructure:"static_dir" yaml:"static_dir"`
	DefaultChannel   string        `mapstructure:"default_channel" yaml:"default_channel"`
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout" yaml:"heartbeat_timeout"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	MaxHeaderBytes   int           `mapstructure:"max_header_bytes" yaml:"max_header_bytes"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// PeerConfig configures a chat peer.
type PeerConfig struct {
	TrackerURL        string        `mapstructure:"tracker_url" yaml:"tracker_url"`
	Username          string        `mapstructure:"username" yaml:"username"`
	ListenAddr        string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	AdvertiseIP       string        `mapstructure:"advertise_ip" yaml:"advertise_ip"`
	DataDir           string        `mapstructure:"data_dir" yaml:"data_dir"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	RefreshInterval   time.Duration `mapstructure:"refresh_interval" yaml:"refresh_interval"`
	DrainInterval     time.Duration `mapstructure:"drain_interval" yaml:"drain_interval"`
	DialTimeout       time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		LogLevel: "info",
		Tracker: TrackerConfig{
			Addr:             ":8080",
			AdminAddr:        "127.0.0.1:9090",
			DatabasePath:     "relay.db",
			DefaultChannel:   "general",
			HeartbeatTimeout: 30 * time.Second,
			ReadTimeout:      5 * time.Second,
			MaxHeaderBytes:   64 << 10,
			ShutdownTimeout:  5 * time.Second,
		},
		Peer: PeerConfig{
			TrackerURL:        "http://127.0.0.1:8080",
			ListenAddr:        "0.0.0.0:0",
			DataDir:           "data",
			HeartbeatInterval: 15 * time.Second,
			RefreshInterval:   5 * time.Second,
			DrainInterval:     200 * time.Millisecond,
			DialTimeout:       2 * time.Second,
			RequestTimeout:    5 * time.Second,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	c.Tracker.updateFrom(other.Tracker)
	c.Peer.updateFrom(other.Peer)
}

func (t *TrackerConfig) updateFrom(other TrackerConfig) {
	if other.Addr != "" {
		t.Addr = other.Addr
	}
	if other.AdminAddr != "" {
		t.AdminAddr = other.AdminAddr
	}
	if other.DatabasePath != "" {
		t.DatabasePath = other.DatabasePath
	}
	if other.UsersFile != "" {
		t.UsersFile = other.UsersFile
	}
	if other.StaticDir != "" {
		t.StaticDir = other.StaticDir
	}
	if other.DefaultChannel != "" {
		t.DefaultChannel = other.DefaultChannel
	}
	if other.HeartbeatTimeout != 0 {
		t.HeartbeatTimeout = other.HeartbeatTimeout
	}
	if other.ReadTimeout != 0 {
		t.ReadTimeout = other.ReadTimeout
	}
	if other.MaxHeaderBytes != 0 {
		t.MaxHeaderBytes = other.MaxHeaderBytes
	}
	if other.ShutdownTimeout != 0 {
		t.ShutdownTimeout = other.ShutdownTimeout
	}
}

func (p *PeerConfig) updateFrom(other PeerConfig) {
	if other.TrackerURL != "" {
		p.TrackerURL = other.TrackerURL
	}
	if other.Username != "" {
		p.Username = other.Username
	}
	if other.ListenAddr != "" {
		p.ListenAddr = other.ListenAddr
	}
	if other.AdvertiseIP != "" {
		p.AdvertiseIP = other.AdvertiseIP
	}
	if other.DataDir != "" {
		p.DataDir = other.DataDir
	}
	if other.HeartbeatInterval != 0 {
		p.HeartbeatInterval = other.HeartbeatInterval
	}
	if other.RefreshInterval != 0 {
		p.RefreshInterval = other.RefreshInterval
	}
	if other.DrainInterval != 0 {
		p.DrainInterval = other.DrainInterval
	}
	if other.DialTimeout != 0 {
		p.DialTimeout = other.DialTimeout
	}
	if other.RequestTimeout != 0 {
		p.RequestTimeout = other.RequestTimeout
	}
}

// Package config holds the structs a configuration loader populates.
// Full section-type sniffing and validation is out of scope; this package
// only defines the shapes and one viper-backed Source that can read a
// YAML-ish representation of them.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Server is one logical backend target, corresponding to a `[name]
// type=server` section.
type Server struct {
	Name            string `mapstructure:"name"`
	Address         string `mapstructure:"address"`
	Port            int    `mapstructure:"port"`
	Socket          string `mapstructure:"socket"`
	ExtraPort       int    `mapstructure:"extra_port"`
	Protocol        string `mapstructure:"protocol"`
	MonitorUser     string `mapstructure:"monitoruser"`
	MonitorPassword string `mapstructure:"monitorpw"`
	PersistPoolMax  int    `mapstructure:"persistpoolmax"`
	PersistMaxTime  int    `mapstructure:"persistmaxtime"`
	ProxyProtocol   bool   `mapstructure:"proxy_protocol"`
	Priority        int    `mapstructure:"priority"`
	Rank            string `mapstructure:"rank"`
	SSL             bool   `mapstructure:"ssl"`
	SSLCert         string `mapstructure:"ssl_cert"`
	SSLKey          string `mapstructure:"ssl_key"`
	SSLCACert       string `mapstructure:"ssl_ca_cert"`
	SSLVersion      string `mapstructure:"ssl_version"`
	SSLCertDepth    int    `mapstructure:"ssl_cert_verify_depth"`
	SSLVerifyPeer   bool   `mapstructure:"ssl_verify_peer_certificate"`
	SSLVerifyHost   bool   `mapstructure:"ssl_verify_peer_host"`
	DiskSpaceThresh string `mapstructure:"disk_space_threshold"`
}

// Service is a `[name] type=service` section: a router plus the servers it
// may target.
type Service struct {
	Name     string            `mapstructure:"name"`
	Router   string            `mapstructure:"router"`
	Servers  []string          `mapstructure:"servers"`
	User     string            `mapstructure:"user"`
	Password string            `mapstructure:"password"`
	Options  map[string]string `mapstructure:"options"`
}

// Listener is a `[name] type=listener` section binding a service to a port
// or socket.
type Listener struct {
	Name     string `mapstructure:"name"`
	Service  string `mapstructure:"service"`
	Protocol string `mapstructure:"protocol"`
	Port     int    `mapstructure:"port"`
	Socket   string `mapstructure:"socket"`
}

// Monitor is a `[name] type=monitor` section.
type Monitor struct {
	Name                   string   `mapstructure:"name"`
	Module                 string   `mapstructure:"module"`
	Servers                []string `mapstructure:"servers"`
	User                   string   `mapstructure:"user"`
	Password               string   `mapstructure:"password"`
	MonitorInterval        int      `mapstructure:"monitor_interval"`
	ClusterMonitorInterval int      `mapstructure:"cluster_monitor_interval"`
	HealthCheckThreshold   int      `mapstructure:"health_check_threshold"`
	HealthCheckPort        int      `mapstructure:"health_check_port"`
	DynamicNodeDetection   bool     `mapstructure:"dynamic_node_detection"`
}

// Config is the fully loaded configuration: the `[maxscale]`-equivalent
// top-level section plus every named server/service/listener/monitor.
type Config struct {
	Threads   int                 `mapstructure:"threads"`
	Servers   map[string]Server   `mapstructure:"servers"`
	Services  map[string]Service  `mapstructure:"services"`
	Listeners map[string]Listener `mapstructure:"listeners"`
	Monitors  map[string]Monitor  `mapstructure:"monitors"`
}

// Source loads a Config from wherever it is kept.
type Source interface {
	Load() (*Config, error)
}

// ViperSource reads a Config from a file path using spf13/viper, following
// the same config/flag wiring the original cmd/proxy entry point used.
type ViperSource struct {
	Path string
}

func NewViperSource(path string) *ViperSource {
	return &ViperSource{Path: path}
}

func (s *ViperSource) Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(s.Path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", s.Path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", s.Path, err)
	}
	return &cfg, nil
}

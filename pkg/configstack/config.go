// Package configstack loads the mountkit INI configuration.
//
//	[log]
//	level = info
//	format = text
//	output = /var/log/mountkit.log
//	debug = false
//
//	[resolver]
//	max_symlinks = 40
//
//	[device]
//	default_access = rwm
//
//	[tracing]
//	endpoint = localhost:4317
//	insecure = true
//	service_name = mountkit
//	sample_ratio = 0.5
//	export_timeout = 5s
package configstack

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gookit/ini/v2"

	defs "mountkit/definitions"
	log "mountkit/logger"
	"mountkit/pkg/device"
	"mountkit/pkg/rootfs"
	"mountkit/pkg/tracer"
	"mountkit/pkg/utils"
)

const (
	KeyLogLevel      = "log.level"
	KeyLogFormat     = "log.format"
	KeyLogOutput     = "log.output"
	KeyLogDebug      = "log.debug"
	KeyMaxSymlinks   = "resolver.max_symlinks"
	KeyDefaultAccess = "device.default_access"
	KeyTraceEndpoint = "tracing.endpoint"
	KeyTraceInsecure = "tracing.insecure"
	KeyTraceService  = "tracing.service_name"
	KeyTraceRatio    = "tracing.sample_ratio"
	KeyTraceTimeout  = "tracing.export_timeout"
)

const (
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
)

type Config struct {
	Log           log.Config
	MaxSymlinks   int
	DefaultAccess device.Access
	Tracing       tracer.Config

	// Files that were loaded, in order.
	Files []string
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	access, _ := device.NewAccess(defs.DefaultDeviceAccess)
	return &Config{
		Log: log.Config{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		MaxSymlinks:   defs.DefaultMaxSymlinks,
		DefaultAccess: access,
		Tracing:       tracer.NewConfig(defs.ServiceName),
	}
}

// Load reads files over the defaults. Later files override earlier ones and
// missing files are skipped.
func Load(files ...string) (*Config, error) {
	cfg := NewConfig()
	if len(files) == 0 {
		return cfg, nil
	}

	data := ini.New()
	if err := data.LoadExists(files...); err != nil {
		return nil, fmt.Errorf("load mountkit config %v: %w", files, err)
	}
	for _, f := range files {
		if utils.FileExist(f) {
			cfg.Files = append(cfg.Files, f)
		}
	}

	cfg.Log.Level = data.String(KeyLogLevel, cfg.Log.Level)
	cfg.Log.Format = data.String(KeyLogFormat, cfg.Log.Format)
	cfg.Log.Output = data.String(KeyLogOutput, cfg.Log.Output)
	cfg.Log.Debug = data.Bool(KeyLogDebug, cfg.Log.Debug)

	if n := data.Int(KeyMaxSymlinks, cfg.MaxSymlinks); n > 0 {
		cfg.MaxSymlinks = n
	} else {
		log.Warnf("ignoring %s = %d, keeping %d", KeyMaxSymlinks, n, cfg.MaxSymlinks)
	}

	if s := data.String(KeyDefaultAccess); s != "" {
		access, err := device.NewAccess(s)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", KeyDefaultAccess, err)
		}
		cfg.DefaultAccess = access
	}

	cfg.Tracing.Endpoint = data.String(KeyTraceEndpoint, cfg.Tracing.Endpoint)
	cfg.Tracing.Insecure = data.Bool(KeyTraceInsecure, cfg.Tracing.Insecure)
	cfg.Tracing.ServiceName = data.String(KeyTraceService, cfg.Tracing.ServiceName)
	if s := data.String(KeyTraceRatio); s != "" {
		ratio, err := strconv.ParseFloat(s, 64)
		if err != nil || ratio < 0 || ratio > 1 {
			return nil, fmt.Errorf("invalid %s %q: want a number in [0, 1]", KeyTraceRatio, s)
		}
		cfg.Tracing.SampleRatio = ratio
	}
	if s := data.String(KeyTraceTimeout); s != "" {
		timeout, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", KeyTraceTimeout, err)
		}
		cfg.Tracing.ExportTimeout = timeout
	}

	return cfg, nil
}

// LoadFile loads one explicitly named file, which must exist.
func LoadFile(path string) (*Config, error) {
	if err := checkConfigFile(path); err != nil {
		return nil, err
	}
	return Load(path)
}

// LoadDiscovered loads the files found by DiscoverConfigFiles.
func LoadDiscovered() (*Config, error) {
	files, err := DiscoverConfigFiles()
	if err != nil {
		return nil, err
	}
	return Load(files...)
}

// Apply configures the logger and the rootfs resolver.
func (c *Config) Apply() error {
	if err := log.Init(&c.Log); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	rootfs.SetMaxSymlinks(c.MaxSymlinks)
	log.Debugf("mountkit config applied from %v: max_symlinks=%d default_access=%s",
		c.Files, c.MaxSymlinks, c.DefaultAccess)
	log.Pretty("log config: %v", c.Log)
	return nil
}

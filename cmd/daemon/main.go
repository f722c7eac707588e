package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	aurena "github.com/devgianlu/go-aurena"
)

type Config struct {
	ConfigDir string `koanf:"config_dir"`

	LogLevel            log.Level `koanf:"log_level"`
	LogDisableTimestamp bool      `koanf:"log_disable_timestamp"`
	ServiceType         string    `koanf:"service_type"`
	Discovery           struct {
		Backend          string   `koanf:"backend"`
		Interfaces       []string `koanf:"interfaces"`
		ResolveTimeoutMs int      `koanf:"resolve_timeout_ms"`
		StopOnLost       bool     `koanf:"stop_on_lost"`
		PollIntervalMs   int      `koanf:"poll_interval_ms"`
	} `koanf:"discovery"`
	Engine struct {
		Server             string   `koanf:"server"`
		Pipeline           string   `koanf:"pipeline"`
		PipelineCommand    []string `koanf:"pipeline_command"`
		PositionIntervalMs int      `koanf:"position_interval_ms"`
		IdleTimeoutS       int      `koanf:"idle_timeout_s"`
		Reconnect          bool     `koanf:"reconnect"`
	} `koanf:"engine"`
	Surface struct {
		WindowHandle uint64 `koanf:"window_handle"`
		Width        int    `koanf:"width"`
		Height       int    `koanf:"height"`
	} `koanf:"surface"`
	Server struct {
		Enabled     bool   `koanf:"enabled"`
		Address     string `koanf:"address"`
		Port        int    `koanf:"port"`
		AllowOrigin string `koanf:"allow_origin"`
		CertFile    string `koanf:"cert_file"`
		KeyFile     string `koanf:"key_file"`
	} `koanf:"server"`
	MprisEnabled bool `koanf:"mpris_enabled"`
}

func loadConfig(cfg *Config) error {
	f := flag.NewFlagSet("config", flag.ContinueOnError)
	f.Usage = func() {
		fmt.Println(f.FlagUsages())
		os.Exit(0)
	}

	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return err
	}

	defaultConfigDir := filepath.Join(userConfigDir, "go-aurena")
	f.StringVar(&cfg.ConfigDir, "config_dir", defaultConfigDir, "the configuration directory")

	var configPath string
	f.StringVar(&configPath, "config_path", "config.yml", "the configuration file path")

	f.String("server", "", "fixed server address, disables discovery")
	f.String("log_level", "", "the log level")

	if err := f.Parse(os.Args[1:]); err != nil {
		return err
	}

	k := koanf.New(".")

	// load default configuration
	_ = k.Load(confmap.Provider(map[string]interface{}{
		"log_level":             "info",
		"log_disable_timestamp": false,
		"service_type":          aurena.ServiceType,

		"discovery.backend":            "builtin",
		"discovery.interfaces":         []string{},
		"discovery.resolve_timeout_ms": 5000,
		"discovery.stop_on_lost":       false,
		"discovery.poll_interval_ms":   10000,

		"engine.server":               "",
		"engine.pipeline":             "virtual",
		"engine.pipeline_command":     []string{},
		"engine.position_interval_ms": 250,
		"engine.idle_timeout_s":       20,
		"engine.reconnect":            true,

		"surface.window_handle": 0,
		"surface.width":         1280,
		"surface.height":        720,

		"server.enabled": false,
		"server.address": "localhost",
		"server.port":    3679,

		"mpris_enabled": false,
	}, "."), nil)

	// load file configuration (if available)
	var configFile string
	if !filepath.IsAbs(configPath) {
		configFile = filepath.Join(cfg.ConfigDir, configPath)
	} else {
		configFile = configPath
	}

	if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed reading configuration file: %w", err)
		}
	}

	// load command line configuration
	if err := k.Load(posflag.ProviderWithFlag(f, ".", k, func(fl *flag.Flag) (string, interface{}) {
		switch fl.Name {
		case "server":
			return "engine.server", posflag.FlagVal(f, fl)
		default:
			return fl.Name, posflag.FlagVal(f, fl)
		}
	}), nil); err != nil {
		return fmt.Errorf("failed loading command line configuration: %w", err)
	}

	// unmarshal configuration
	if err := k.Unmarshal("", cfg); err != nil {
		return fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	cfg.ServiceType = aurena.NormalizeServiceType(strings.TrimSpace(cfg.ServiceType))
	return nil
}

func main() {
	var cfg Config
	if err := loadConfig(&cfg); err != nil {
		log.WithError(err).Fatal("failed loading config")
	}

	// set log level and format
	log.SetLevel(cfg.LogLevel)
	log.SetFormatter(&log.TextFormatter{
		DisableTimestamp: cfg.LogDisableTimestamp,
	})

	// acquire a lock on the state directory
	stateDir, err := UserStateDir()
	if err != nil {
		log.WithError(err).Fatal("failed getting user state directory")
	}

	stateDir = filepath.Join(stateDir, "go-aurena")
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		log.WithError(err).Fatal("failed creating state directory")
	}

	lock := flock.New(filepath.Join(stateDir, "daemon.lock"))
	if ok, err := lock.TryLock(); err != nil {
		log.WithError(err).Fatal("failed acquiring lock")
	} else if !ok {
		log.Fatal("another instance of the daemon is already running")
	}

	defer func() { _ = lock.Unlock() }()

	log.Infof("starting %s", aurena.VersionString())
	log.Debugf("running on %s", aurena.SystemInfoString())

	// create new app
	app, err := NewApp(&cfg)
	if err != nil {
		_ = lock.Unlock()
		log.WithError(err).Fatal("failed creating app")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		_ = lock.Unlock()
		if errors.Is(err, aurena.ErrEngineLoad) {
			log.WithError(err).Fatal("the playback engine could not be loaded")
		}

		log.WithError(err).Fatal("failed running app")
	}
}

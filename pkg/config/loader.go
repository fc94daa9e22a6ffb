package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	consulp "github.com/knadh/koanf/providers/consul/v2"
	etcdp "github.com/knadh/koanf/providers/etcd/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/fsnotify/fsnotify"
)

// Backend selects where orchid.config.json is sourced from, per
// SPEC_FULL.md's DOMAIN STACK: local file by default, with consul/etcd/
// zookeeper available for multi-host MCP server catalogs.
type Backend string

const (
	BackendFile      Backend = "file"
	BackendConsul    Backend = "consul"
	BackendEtcd      Backend = "etcd"
	BackendZookeeper Backend = "zookeeper"
)

// LoaderOptions configures a Loader, mirroring the teacher's
// koanf_loader.go LoaderOptions shape.
type LoaderOptions struct {
	Backend   Backend
	Path      string
	Endpoints []string
	Watch     bool
	OnChange  func(*Config) error
}

// Loader loads and, optionally, hot-reloads orchid.config.json.
type Loader struct {
	k      *koanf.Koanf
	opts   LoaderOptions
	parser *yaml.YAML
}

func NewLoader(opts LoaderOptions) (*Loader, error) {
	if opts.Backend == "" {
		opts.Backend = BackendFile
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	if len(opts.Endpoints) == 0 {
		switch opts.Backend {
		case BackendConsul:
			opts.Endpoints = []string{"localhost:8500"}
		case BackendEtcd:
			opts.Endpoints = []string{"localhost:2379"}
		case BackendZookeeper:
			opts.Endpoints = []string{"localhost:2181"}
		}
	}
	return &Loader{k: koanf.New("."), opts: opts, parser: yaml.Parser()}, nil
}

// Load reads and decodes the configuration once. JSON is valid YAML, so the
// same yaml.Parser() handles both `orchid.config.json` and
// `.orchidrc.json` without a separate JSON parser dependency.
func (l *Loader) Load() (*Config, error) {
	provider, parser, err := l.buildProvider()
	if err != nil {
		return nil, err
	}
	if err := l.k.Load(provider, parser); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", l.opts.Backend, err)
	}
	if err := l.expandEnv(); err != nil {
		return nil, fmt.Errorf("failed to expand environment variables: %w", err)
	}
	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}
	if l.opts.Watch {
		go l.watch(provider, parser)
	}
	return cfg, nil
}

func (l *Loader) buildProvider() (koanf.Provider, koanf.Parser, error) {
	switch l.opts.Backend {
	case BackendFile:
		return file.Provider(l.opts.Path), l.parser, nil

	case BackendConsul:
		cc := api.DefaultConfig()
		cc.Address = l.opts.Endpoints[0]
		client, err := api.NewClient(cc)
		if err != nil {
			return nil, nil, fmt.Errorf("consul client: %w", err)
		}
		return consulp.Provider(consulp.Config{Client: client, Key: l.opts.Path}), nil, nil

	case BackendEtcd:
		p, err := etcdp.Provider(etcdp.Config{
			Endpoints:   l.opts.Endpoints,
			DialTimeout: 5 * time.Second,
			Key:         l.opts.Path,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("etcd provider: %w", err)
		}
		return p, nil, nil

	case BackendZookeeper:
		zp, err := NewZookeeperProvider(l.opts.Endpoints, l.opts.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("zookeeper provider: %w", err)
		}
		return zp, l.parser, nil

	default:
		return nil, nil, fmt.Errorf("unsupported config backend: %s", l.opts.Backend)
	}
}

// expandEnv resolves `${VAR}` references in string leaves of the loaded
// tree (Provider API keys in mcpServers[].env, etc.), reloading through
// confmap.Provider, mirroring the teacher's expandEnvVarsInKoanf.
func (l *Loader) expandEnv() error {
	expanded := expandEnvInValue(l.k.Raw())
	m, ok := expanded.(map[string]interface{})
	if !ok {
		return fmt.Errorf("unexpected type after env var expansion")
	}
	newK := koanf.New(".")
	if err := newK.Load(confmap.Provider(m, "."), nil); err != nil {
		return err
	}
	l.k = newK
	return nil
}

func expandEnvInValue(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return os.ExpandEnv(t)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, vv := range t {
			out[k] = expandEnvInValue(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, vv := range t {
			out[i] = expandEnvInValue(vv)
		}
		return out
	default:
		return v
	}
}

func (l *Loader) decode() (*Config, error) {
	cfg := &Config{}
	if err := l.k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.SetDefaults()
	return cfg, nil
}

// watch installs an fsnotify-backed reload for the file backend, matching
// koanf's documented fsnotify watch pattern; non-file backends are not
// watched.
func (l *Loader) watch(provider koanf.Provider, parser koanf.Parser) {
	if l.opts.Backend != BackendFile {
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("config watcher unavailable", "error", err)
		return
	}
	defer watcher.Close()
	if err := watcher.Add(l.opts.Path); err != nil {
		slog.Warn("failed to watch config file", "path", l.opts.Path, "error", err)
		return
	}
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			newK := koanf.New(".")
			if err := newK.Load(provider, parser); err != nil {
				slog.Warn("failed to reload config", "error", err)
				continue
			}
			l.k = newK
			if err := l.expandEnv(); err != nil {
				slog.Warn("failed to expand env vars in reloaded config", "error", err)
				continue
			}
			cfg, err := l.decode()
			if err != nil {
				slog.Warn("reloaded config failed to decode", "error", err)
				continue
			}
			if l.opts.OnChange != nil {
				if err := l.opts.OnChange(cfg); err != nil {
					slog.Warn("config change callback failed", "error", err)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watch error", "error", err)
		}
	}
}

// Load is a convenience one-shot loader for callers that don't need the
// *Loader itself.
func Load(opts LoaderOptions) (*Config, error) {
	l, err := NewLoader(opts)
	if err != nil {
		return nil, err
	}
	return l.Load()
}

// ParseBackend parses a CLI/env string into a Backend.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "file":
		return BackendFile, nil
	case "consul":
		return BackendConsul, nil
	case "etcd":
		return BackendEtcd, nil
	case "zookeeper", "zk":
		return BackendZookeeper, nil
	default:
		return "", fmt.Errorf("invalid config backend: %s", s)
	}
}

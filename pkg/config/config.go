package config

import (
	"os"
	"time"

	"github.com/Minei3oat/firegex/pkg/blockingqueue"
	"github.com/Minei3oat/firegex/pkg/capture"
	"github.com/Minei3oat/firegex/pkg/filter"
	"github.com/Minei3oat/firegex/pkg/hexcodec"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Queue   Queue   `yaml:"queue"`
	Capture Capture `yaml:"capture"`
	Workers int     `yaml:"workers"`
	Server  Server  `yaml:"server"`
	Filter  Filter  `yaml:"filter"`
}

// Queue configures the capture to processing hand-off. Capacity must not
// exceed the kernel queue the capture side drains.
type Queue struct {
	Capacity int    `yaml:"capacity"`
	Backend  string `yaml:"backend"`
}

type Capture struct {
	Source   string        `yaml:"source"`
	Interval time.Duration `yaml:"interval"`
	Hostname string        `yaml:"hostname"`
}

type Server struct {
	ListenAddr string `yaml:"listen"`
}

// Filter lists the regex rules of the protected service. Patterns are hex
// encoded.
type Filter struct {
	ServicePort uint16 `yaml:"service_port"`
	Rules       []Rule `yaml:"rules"`
}

type Rule struct {
	ID              int    `yaml:"id"`
	Regex           string `yaml:"regex"`
	Mode            string `yaml:"mode"`
	CaseInsensitive bool   `yaml:"case_insensitive"`
	Whitelist       bool   `yaml:"whitelist"`
	Disabled        bool   `yaml:"disabled"`
}

// Add appends r in its configuration form.
func (f *Filter) Add(r filter.Rule) {
	f.Rules = append(f.Rules, Rule{
		ID:              r.ID,
		Regex:           hexcodec.EncodeToString(r.Pattern),
		Mode:            r.Mode.String(),
		CaseInsensitive: !r.CaseSensitive,
		Whitelist:       !r.Blacklist,
		Disabled:        !r.Active,
	})
}

// Build decodes and compiles the configured rules.
func (f Filter) Build() (*filter.Set, error) {
	rules := make([]filter.Rule, 0, len(f.Rules))
	for i, rc := range f.Rules {
		mode, err := filter.ParseMode(rc.Mode)
		if err != nil {
			return nil, errors.Wrapf(err, "rule %d", i+1)
		}
		r, err := filter.NewRule(rc.Regex, mode, !rc.CaseInsensitive)
		if err != nil {
			return nil, errors.Wrapf(err, "rule %d", i+1)
		}
		r.ID = rc.ID
		r.Blacklist = !rc.Whitelist
		r.Active = !rc.Disabled
		rules = append(rules, r)
	}
	return filter.NewSet(f.ServicePort, rules)
}

func Default() Config {
	hostname, _ := os.Hostname()

	return Config{
		Queue: Queue{
			Capacity: blockingqueue.DefaultCapacity,
			Backend:  string(blockingqueue.BackendCond),
		},
		Capture: Capture{
			Source:   capture.KindMock,
			Interval: time.Second,
			Hostname: hostname,
		},
		Workers: 1,
		Server: Server{
			ListenAddr: ":8080",
		},
	}
}

// Load reads a YAML file on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Queue.Capacity <= 0 {
		return errors.Wrapf(blockingqueue.ErrInvalidCapacity, "queue.capacity %d", c.Queue.Capacity)
	}
	if _, err := blockingqueue.ParseBackend(c.Queue.Backend); err != nil {
		return errors.Wrap(err, "queue.backend")
	}
	if _, err := capture.ParseKind(c.Capture.Source); err != nil {
		return errors.Wrap(err, "capture.source")
	}
	if c.Capture.Interval < 0 {
		return errors.Errorf("capture.interval must not be negative, got %s", c.Capture.Interval)
	}
	if c.Workers <= 0 {
		return errors.Errorf("workers must be positive, got %d", c.Workers)
	}
	if _, err := c.Filter.Build(); err != nil {
		return errors.Wrap(err, "filter")
	}
	return nil
}

package iziqueue

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// QueueConfig describes one dispatcher's concurrency and polling
// behavior, as described in spec.md §3.4.
type QueueConfig struct {
	Name         string
	Limit        int
	Paused       bool
	PollInterval time.Duration
}

// defaultQueueLimit is applied to a QueueConfig whose Limit is unset.
const defaultQueueLimit = 10

type rawQueueEntry struct {
	Limit        int    `yaml:"limit"`
	PollInterval string `yaml:"poll_interval"`
	Paused       bool   `yaml:"paused"`
}

type rawQueuesFile struct {
	Queues map[string]yaml.Node `yaml:"queues"`
}

// ParseQueues normalizes either the map form (`{"default": 5}` or
// `{"default": {limit: 5, paused: true}}`) or the list form
// (`[]QueueConfig`) into a slice of QueueConfig. v is typically the
// result of unmarshaling a config fragment into `any`.
func ParseQueues(v any) ([]QueueConfig, error) {
	switch t := v.(type) {
	case []QueueConfig:
		out := make([]QueueConfig, len(t))
		copy(out, t)
		return applyQueueDefaults(out), nil
	case map[string]int:
		out := make([]QueueConfig, 0, len(t))
		for name, limit := range t {
			out = append(out, QueueConfig{Name: name, Limit: limit})
		}
		return applyQueueDefaults(out), nil
	case map[string]any:
		out := make([]QueueConfig, 0, len(t))
		for name, raw := range t {
			cfg, err := queueConfigFromAny(name, raw)
			if err != nil {
				return nil, err
			}
			out = append(out, cfg)
		}
		return applyQueueDefaults(out), nil
	default:
		return nil, fmt.Errorf("iziqueue: ParseQueues: unsupported value type %T", v)
	}
}

func queueConfigFromAny(name string, raw any) (QueueConfig, error) {
	switch r := raw.(type) {
	case int:
		return QueueConfig{Name: name, Limit: r}, nil
	case map[string]any:
		cfg := QueueConfig{Name: name}
		if limit, ok := r["limit"].(int); ok {
			cfg.Limit = limit
		}
		if paused, ok := r["paused"].(bool); ok {
			cfg.Paused = paused
		}
		if interval, ok := r["poll_interval"].(string); ok {
			d, err := time.ParseDuration(interval)
			if err != nil {
				return QueueConfig{}, fmt.Errorf("iziqueue: queue %q: poll_interval: %w", name, err)
			}
			cfg.PollInterval = d
		}
		return cfg, nil
	default:
		return QueueConfig{}, fmt.Errorf("iziqueue: queue %q: unsupported entry type %T", name, raw)
	}
}

func applyQueueDefaults(cfgs []QueueConfig) []QueueConfig {
	for i := range cfgs {
		if cfgs[i].Limit <= 0 {
			cfgs[i].Limit = defaultQueueLimit
		}
	}
	return cfgs
}

// LoadQueuesYAML reads a queue topology document of the shape:
//
//	queues:
//	  default: 10
//	  email:
//	    limit: 25
//	    poll_interval: 500ms
//	  reports:
//	    limit: 2
//	    paused: true
func LoadQueuesYAML(r io.Reader) ([]QueueConfig, error) {
	var doc rawQueuesFile
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("iziqueue: load queues yaml: %w", err)
	}

	out := make([]QueueConfig, 0, len(doc.Queues))
	for name, node := range doc.Queues {
		cfg := QueueConfig{Name: name}
		if node.Kind == yaml.ScalarNode {
			if err := node.Decode(&cfg.Limit); err != nil {
				return nil, fmt.Errorf("iziqueue: queue %q: %w", name, err)
			}
			out = append(out, cfg)
			continue
		}
		var entry rawQueueEntry
		if err := node.Decode(&entry); err != nil {
			return nil, fmt.Errorf("iziqueue: queue %q: %w", name, err)
		}
		cfg.Limit = entry.Limit
		cfg.Paused = entry.Paused
		if entry.PollInterval != "" {
			d, err := time.ParseDuration(entry.PollInterval)
			if err != nil {
				return nil, fmt.Errorf("iziqueue: queue %q: poll_interval: %w", name, err)
			}
			cfg.PollInterval = d
		}
		out = append(out, cfg)
	}
	return applyQueueDefaults(out), nil
}

package iziqueue

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func byName(cfgs []QueueConfig) map[string]QueueConfig {
	out := make(map[string]QueueConfig, len(cfgs))
	for _, c := range cfgs {
		out[c.Name] = c
	}
	return out
}

func TestParseQueues_MapOfInt(t *testing.T) {
	cfgs, err := ParseQueues(map[string]int{"default": 5, "reports": 0})
	require.NoError(t, err)

	byN := byName(cfgs)
	assert.Equal(t, 5, byN["default"].Limit)
	assert.Equal(t, defaultQueueLimit, byN["reports"].Limit)
}

func TestParseQueues_MapOfAny(t *testing.T) {
	cfgs, err := ParseQueues(map[string]any{
		"email": map[string]any{"limit": 25, "poll_interval": "500ms", "paused": true},
	})
	require.NoError(t, err)
	require.Len(t, cfgs, 1)

	cfg := cfgs[0]
	assert.Equal(t, "email", cfg.Name)
	assert.Equal(t, 25, cfg.Limit)
	assert.True(t, cfg.Paused)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
}

func TestParseQueues_InvalidPollInterval(t *testing.T) {
	_, err := ParseQueues(map[string]any{
		"email": map[string]any{"poll_interval": "not-a-duration"},
	})
	assert.Error(t, err)
}

func TestParseQueues_UnsupportedType(t *testing.T) {
	_, err := ParseQueues(42)
	assert.Error(t, err)
}

func TestLoadQueuesYAML(t *testing.T) {
	doc := `
queues:
  default: 10
  email:
    limit: 25
    poll_interval: 250ms
  reports:
    limit: 2
    paused: true
`
	cfgs, err := LoadQueuesYAML(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, cfgs, 3)

	names := make([]string, 0, len(cfgs))
	for _, c := range cfgs {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"default", "email", "reports"}, names)

	byN := byName(cfgs)
	assert.Equal(t, 10, byN["default"].Limit)
	assert.Equal(t, 25, byN["email"].Limit)
	assert.Equal(t, 250*time.Millisecond, byN["email"].PollInterval)
	assert.True(t, byN["reports"].Paused)
}

func TestLoadQueuesYAML_InvalidDocument(t *testing.T) {
	_, err := LoadQueuesYAML(strings.NewReader("queues: [not, a, map]"))
	assert.Error(t, err)
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3001, cfg.Port)
	assert.Equal(t, "redis", cfg.BusDriver)
	assert.Equal(t, "events:gateway", cfg.IncomingChannel)
	assert.Equal(t, "events:broadcast", cfg.OutgoingChannel)
}

func TestLoadRequiresAuthSource(t *testing.T) {
	t.Setenv("AUTH_URL", "")
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadBusDriver(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("BUS_DRIVER", "kafka")
	_, err := Load()
	assert.Error(t, err)
}

func TestRoutes(t *testing.T) {
	c := &Config{ServiceRoutes: "stickyNotes=events:stickyNotes, chat=events:chat"}
	routes, err := c.Routes()
	require.NoError(t, err)
	assert.Equal(t, [][2]string{
		{"stickyNotes", "events:stickyNotes"},
		{"chat", "events:chat"},
	}, routes)
}

func TestRoutesEmpty(t *testing.T) {
	c := &Config{}
	routes, err := c.Routes()
	require.NoError(t, err)
	assert.Nil(t, routes)
}

func TestRoutesMalformed(t *testing.T) {
	for _, raw := range []string{"noequals", "=channel", "name="} {
		c := &Config{ServiceRoutes: raw}
		_, err := c.Routes()
		assert.Error(t, err, "entry %q", raw)
	}
}

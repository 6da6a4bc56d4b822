package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cherr "github.com/chronolab/chrono/pkg/errors"
)

func TestLoadRequiresAPIKeys(t *testing.T) {
	t.Setenv("CHRONO_GEMINI_API_KEY", "")
	t.Setenv("CHRONO_TAVILY_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	rerr, ok := err.(*cherr.ResearchError)
	require.True(t, ok)
	assert.Equal(t, cherr.ErrMissingRequired, rerr.Code)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CHRONO_GEMINI_API_KEY", "gk")
	t.Setenv("CHRONO_TAVILY_API_KEY", "tk")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "gemini-2.0-flash", cfg.DefaultModel)
	assert.Equal(t, 8, cfg.ThreadConcurrency)
	assert.Equal(t, 4, cfg.DetailConcurrency)
	assert.Empty(t, cfg.GCPProject)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CHRONO_GEMINI_API_KEY", "gk")
	t.Setenv("CHRONO_TAVILY_API_KEY", "tk")
	t.Setenv("CHRONO_LISTEN_ADDR", ":9999")
	t.Setenv("CHRONO_THREAD_CONCURRENCY", "3")
	t.Setenv("CHRONO_GCP_PROJECT", "my-project")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, 3, cfg.ThreadConcurrency)
	assert.Equal(t, "my-project", cfg.GCPProject)
}

func TestModelFor(t *testing.T) {
	cfg := &Config{
		DefaultModel: "gemini-2.0-flash",
		StageModels:  map[string]string{"synthesis": "gemini-2.5-pro"},
	}

	assert.Equal(t, "gemini-2.5-pro", cfg.ModelFor("synthesis"))
	assert.Equal(t, "gemini-2.0-flash", cfg.ModelFor("milestone"))
}

package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_RejectsUnknownCommandBeforeLoadingConfig(t *testing.T) {
	// a config that can not be read would exit with 1
	t.Setenv("BAKERY_AUTH_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	assert.Equal(t, 2, run(nil))
	assert.Equal(t, 2, run([]string{"bogus"}))
	assert.Equal(t, 2, run([]string{"-config", "x.yaml"}))
}

func TestRun_ConfigError(t *testing.T) {
	assert.Equal(t, 1, run([]string{"sweep", "-config", filepath.Join(t.TempDir(), "missing.yaml")}))
}

func TestRun_BadFlag(t *testing.T) {
	assert.Equal(t, 2, run([]string{"sweep", "-nope"}))
}

func TestRun_MaintenanceCommands(t *testing.T) {
	t.Setenv("BAKERY_AUTH_CONFIG", "")
	t.Setenv("BAKERY_AUTH_ACCESS_SIGNING_KEY", "access-secret")
	t.Setenv("BAKERY_AUTH_REFRESH_SIGNING_KEY", "refresh-secret")
	t.Setenv("BAKERY_AUTH_DB_DRIVER", "sqlite")
	t.Setenv("BAKERY_AUTH_DB_DSN", filepath.Join(t.TempDir(), "auth.db"))

	assert.Equal(t, 0, run([]string{"migrate"}))
	assert.Equal(t, 0, run([]string{"migrate"}), "second run is a no-op")

	assert.Equal(t, 0, run([]string{"create-user",
		"-username", "baker",
		"-email", "baker@example.com",
		"-password", "sourdough-99",
		"-role", "admin",
	}))
	assert.Equal(t, 1, run([]string{"create-user",
		"-username", "ghost",
		"-password", "sourdough-99",
		"-role", "owner",
	}), "unknown role")

	assert.Equal(t, 0, run([]string{"sweep"}))
	assert.Equal(t, 0, run([]string{"purge"}))
	assert.Equal(t, 0, run([]string{"migrate", "-down"}))
}

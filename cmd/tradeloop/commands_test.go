package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := fmt.Sprintf(`
log_level = "warn"

[catalog]
store = "file"
file = %q

[server]
auth_token = "s3cret-token"
`, filepath.Join(dir, "profiles.yaml"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "tradeloop dev\n", out)
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	path := writeConfig(t)

	out, err := execute(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, `auth_token = "***"`)
	assert.NotContains(t, out, "s3cret-token")
	assert.Contains(t, out, `log_level = "warn"`)
}

func TestConfigValidateRejectsBadMode(t *testing.T) {
	path := writeConfig(t)

	out, err := execute(t, "config", "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "configuration ok")

	_, err = execute(t, "config", "validate", "--config", path, "--mode", "bogus")
	assert.Error(t, err)
}

func TestMissingExplicitConfigFails(t *testing.T) {
	_, err := execute(t, "config", "validate", "--config", filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestProfilesActivateAndList(t *testing.T) {
	path := writeConfig(t)

	out, err := execute(t, "profiles", "activate", "conservative", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "active profile: conservative")

	out, err = execute(t, "profiles", "list", "--config", path)
	require.NoError(t, err)
	assert.Regexp(t, `(?m)^\*\s+conservative\s`, out)
	assert.Contains(t, out, "aggressive")

	_, err = execute(t, "profiles", "activate", "unknown", "--config", path)
	assert.Error(t, err)
}

func TestProfilesRecommendApply(t *testing.T) {
	path := writeConfig(t)

	out, err := execute(t, "profiles", "recommend", "--volatility", "high", "--trend", "bullish", "--apply", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "recommended: aggressive")
	assert.Contains(t, out, "active profile: aggressive")

	out, err = execute(t, "profiles", "list", "--config", path)
	require.NoError(t, err)
	assert.Regexp(t, `(?m)^\*\s+aggressive\s`, out)
}

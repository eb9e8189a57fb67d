package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(LoadOptions{EnvFile: writeFile(t, "empty.env", ""), Getenv: envMap(nil)})
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "orthomap.yaml", `
server: http://127.0.0.1:9000
gene_column: Symbol
workers: 4
base_delay: 500ms
rate_limit_rps: 12.5
log_format: json
`)
	cfg, err := Load(LoadOptions{
		ConfigPath: path,
		EnvFile:    writeFile(t, "empty.env", ""),
		Getenv: envMap(map[string]string{
			"WORKERS":      "8",
			"MAX_ATTEMPTS": "5",
			"LOG_LEVEL":    " debug ",
		}),
	})
	require.NoError(t, err)

	want := Default()
	want.Server = "http://127.0.0.1:9000"
	want.GeneColumn = "Symbol"
	want.Workers = 8
	want.MaxAttempts = 5
	want.BaseDelay = 500 * time.Millisecond
	want.RateLimitRPS = 12.5
	want.LogLevel = "debug"
	want.LogFormat = "json"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_InvalidEnvironment(t *testing.T) {
	t.Parallel()

	_, err := Load(LoadOptions{
		EnvFile: writeFile(t, "empty.env", ""),
		Getenv:  envMap(map[string]string{"BASE_DELAY": "soon"}),
	})
	require.ErrorContains(t, err, "BASE_DELAY")
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Parallel()

	_, err := Load(LoadOptions{ConfigPath: filepath.Join(t.TempDir(), "nope.yaml"), Getenv: envMap(nil)})
	require.ErrorContains(t, err, "read config file")
}

func TestLoad_EnvFileDoesNotOverrideEnvironment(t *testing.T) {
	t.Setenv("ORTHOMAP_GENE_COLUMN", "From Env")
	// Registers a restore, then leaves the variable unset for the env file to fill.
	t.Setenv("MAX_ATTEMPTS", "")
	require.NoError(t, os.Unsetenv("MAX_ATTEMPTS"))

	envFile := writeFile(t, "test.env", "ORTHOMAP_GENE_COLUMN=From File\nMAX_ATTEMPTS=7\n")
	cfg, err := Load(LoadOptions{EnvFile: envFile})
	require.NoError(t, err)

	require.Equal(t, "From Env", cfg.GeneColumn)
	require.Equal(t, 7, cfg.MaxAttempts)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Workers = 0
	cfg.MaxAttempts = -1
	cfg.Server = "ftp://example.org"
	cfg.GeneColumn = " "

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"workers", "max attempts", "http or https", "gene column"} {
		require.True(t, strings.Contains(err.Error(), want), "missing %q in %v", want, err)
	}

	cfg = Default()
	cfg.Server = "http://"
	require.ErrorContains(t, cfg.Validate(), "host")
}

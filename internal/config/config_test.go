// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// TestLoad_YAMLWithExpansionAndDefaults verifies loading YAML with env expansion and defaults.
func TestLoad_YAMLWithExpansionAndDefaults(t *testing.T) {
	t.Setenv("TEST_ELOQUA_SECRET", "s3cret")
	path := writeConfig(t, `
eloqua:
  base_url: https://secure.p03.eloqua.com
  timezone: America/New_York
auth:
  client_id: my-client
  client_secret: ${TEST_ELOQUA_SECRET}
report:
  excluded_asset_ids: ["12345", "67890"]
  denied_addresses: ["test@example.com"]
bulk:
  poll_interval: 5s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://secure.p03.eloqua.com", cfg.Eloqua.BaseURL)
	assert.Equal(t, "s3cret", cfg.Auth.ClientSecret)
	assert.Equal(t, []string{"12345", "67890"}, cfg.Report.ExcludedAssetIDs)
	assert.Equal(t, 5*time.Second, cfg.Bulk.PollInterval)
	assert.Equal(t, "America/New_York", cfg.Location().String())

	// Defaults
	assert.Equal(t, 60, cfg.Bulk.PollAttempts)
	assert.Equal(t, 3, cfg.Bulk.DownloadAttempts)
	assert.Equal(t, 2*time.Second, cfg.Bulk.DownloadDelay)
	assert.Equal(t, 1000, cfg.OData.PageSize)
	assert.Equal(t, 6, cfg.Pipeline.FetchWorkers)
	assert.Equal(t, 20, cfg.Contacts.Workers)
	assert.Equal(t, []string{"@hp.com"}, cfg.Report.InternalDomains)
	assert.Equal(t, "100199", cfg.Eloqua.FieldIDs.Role)
	assert.Equal(t, "100195", cfg.Eloqua.FieldIDs.Market)
	assert.Equal(t, "data/email_downloads", cfg.Emails.DownloadDir)
	assert.Equal(t, 5, cfg.Emails.Workers)
}

// TestLoad_EnvOverridesYAML verifies environment variables override file values.
func TestLoad_EnvOverridesYAML(t *testing.T) {
	t.Setenv("ELOQUA_BASE_URL", "https://secure.p06.eloqua.com")
	t.Setenv("ELOQUA_ACCESS_TOKEN", "env-token")
	t.Setenv("CONTACT_FETCH_MAX_WORKERS", "7")
	t.Setenv("REDIS_URL", "redis://cache:6379/2")
	t.Setenv("REPORT_QUEUE", "reports:ready")
	path := writeConfig(t, `
eloqua:
  base_url: https://ignored.example.com
contacts:
  workers: 50
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://secure.p06.eloqua.com", cfg.Eloqua.BaseURL)
	assert.Equal(t, "env-token", cfg.Auth.AccessToken)
	assert.Equal(t, 7, cfg.Contacts.Workers)
	assert.Equal(t, "redis://cache:6379/2", cfg.Redis.URL)
	assert.Equal(t, "reports:ready", cfg.Redis.Queue)
}

// TestLoad_MissingFileUsesEnvironment verifies a missing config file falls back to the environment.
func TestLoad_MissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("ELOQUA_ACCESS_TOKEN", "tok")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "UTC", cfg.Eloqua.Timezone)
	assert.Equal(t, "data", cfg.Report.OutputDir)
}

// TestLoad_ValidationErrors verifies invalid settings are rejected.
func TestLoad_ValidationErrors(t *testing.T) {
	t.Setenv("ELOQUA_ACCESS_TOKEN", "")
	t.Setenv("ELOQUA_BASE_URL", "")
	t.Setenv("REPORT_TIMEZONE", "")
	path := writeConfig(t, `
eloqua:
  base_url: secure.p06.eloqua.com
  timezone: Mars/Olympus
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
	assert.Contains(t, err.Error(), "timezone")
	assert.Contains(t, err.Error(), "auth")
}

// TestLoad_MalformedYAML verifies malformed YAML is reported.
func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "eloqua: [unterminated")

	_, err := Load(path)
	assert.ErrorContains(t, err, "parse config YAML")
}

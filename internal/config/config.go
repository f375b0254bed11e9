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

// Package config loads configuration from config.yaml, a local .env file,
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when neither --config nor CONFIG_PATH is set.
const DefaultPath = "config.yaml"

// Config holds all configuration for the report generator.
type Config struct {
	Eloqua   EloquaConfig   `yaml:"eloqua"`
	Auth     AuthConfig     `yaml:"auth"`
	HTTP     HTTPConfig     `yaml:"http"`
	Bulk     BulkConfig     `yaml:"bulk"`
	OData    ODataConfig    `yaml:"odata"`
	Contacts ContactsConfig `yaml:"contacts"`
	Report   ReportConfig   `yaml:"report"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	S3       S3Config       `yaml:"s3"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Emails   EmailsConfig   `yaml:"emails"`
}

// EloquaConfig locates the instance and its OData tables.
type EloquaConfig struct {
	BaseURL   string         `yaml:"base_url"`
	Timezone  string         `yaml:"timezone"`
	Endpoints EndpointConfig `yaml:"endpoints"`
	FieldIDs  FieldIDConfig  `yaml:"field_ids"`
}

// EndpointConfig holds OData paths relative to the base URL.
type EndpointConfig struct {
	EmailOpens  string `yaml:"email_opens"`
	EmailClicks string `yaml:"email_clicks"`
	Campaigns   string `yaml:"campaigns"`
	Users       string `yaml:"users"`
	EmailAssets string `yaml:"email_assets"`
}

// FieldIDConfig maps contact custom fields to their Eloqua field ids.
type FieldIDConfig struct {
	Role        string `yaml:"hp_role"`
	PartnerID   string `yaml:"hp_partner_id"`
	PartnerName string `yaml:"partner_name"`
	Market      string `yaml:"market"`
}

// AuthConfig selects how bearer tokens are obtained.
type AuthConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
	TokenURL     string `yaml:"token_url"`
	TokenFile    string `yaml:"token_file"`
	AccessToken  string `yaml:"access_token"`
}

// HTTPConfig tunes the shared transport.
type HTTPConfig struct {
	Timeout             time.Duration `yaml:"timeout"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxRetries          int           `yaml:"max_retries"`
	RetryBaseDelay      time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay       time.Duration `yaml:"retry_max_delay"`
}

// BulkConfig tunes the export/sync protocol.
type BulkConfig struct {
	PollInterval     time.Duration `yaml:"poll_interval"`
	PollAttempts     int           `yaml:"poll_attempts"`
	PageSize         int           `yaml:"page_size"`
	DownloadAttempts int           `yaml:"download_attempts"`
	DownloadDelay    time.Duration `yaml:"download_delay"`
}

// ODataConfig tunes the synchronous pager.
type ODataConfig struct {
	PageSize  int           `yaml:"page_size"`
	MaxPages  int           `yaml:"max_pages"`
	PageDelay time.Duration `yaml:"page_delay"`
}

// ContactsConfig controls the contact cache and its fetch pool.
type ContactsConfig struct {
	CacheFile       string        `yaml:"cache_file"`
	LegacyCacheFile string        `yaml:"legacy_cache_file"`
	Workers         int           `yaml:"workers"`
	RequestDelay    time.Duration `yaml:"request_delay"`
}

// ReportConfig holds reconciliation windows and exclusion rules.
type ReportConfig struct {
	OutputDir          string   `yaml:"output_dir"`
	BounceWindowDays   int      `yaml:"bounce_window_days"`
	ActivityWindowDays int      `yaml:"activity_window_days"`
	ActivityChunkDays  int      `yaml:"activity_chunk_days"`
	WatchedAssetIDs    []string `yaml:"watched_asset_ids"`
	AssetBatchSize     int      `yaml:"asset_batch_size"`
	ExcludedAssetIDs   []string `yaml:"excluded_asset_ids"`
	InternalDomains    []string `yaml:"internal_domains"`
	DeniedAddresses    []string `yaml:"denied_addresses"`
}

// PipelineConfig sizes the worker pools.
type PipelineConfig struct {
	FetchWorkers int  `yaml:"fetch_workers"`
	RangeWorkers int  `yaml:"range_workers"`
	SkipExisting bool `yaml:"skip_existing"`
}

// S3Config enables report upload when Bucket is set.
type S3Config struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

// RedisConfig enables the run ledger when URL is set. Queue, when also
// set, receives an event for every generated report.
type RedisConfig struct {
	URL       string        `yaml:"url"`
	Queue     string        `yaml:"queue"`
	KeyPrefix string        `yaml:"key_prefix"`
	LockTTL   time.Duration `yaml:"lock_ttl"`
	DoneTTL   time.Duration `yaml:"done_ttl"`
}

// DatabaseConfig enables run history when URL is set.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// MetricsConfig enables the textfile exporter when TextfilePath is set.
type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path"`
}

// EmailsConfig controls creative downloads.
type EmailsConfig struct {
	DownloadDir string `yaml:"download_dir"`
	Workers     int    `yaml:"workers"`
}

// Load reads .env (if present), then the YAML file at path (with ${VAR}
// expansion), then applies environment overrides and defaults.
// A missing YAML file is not an error; every setting has a default or an
// environment variable.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if path == "" {
		path = envOrDefault("CONFIG_PATH", DefaultPath)
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config YAML %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Eloqua.BaseURL = firstNonEmpty(os.Getenv("ELOQUA_BASE_URL"), c.Eloqua.BaseURL)
	c.Eloqua.Timezone = firstNonEmpty(os.Getenv("REPORT_TIMEZONE"), c.Eloqua.Timezone)
	c.Auth.ClientID = firstNonEmpty(os.Getenv("ELOQUA_CLIENT_ID"), c.Auth.ClientID)
	c.Auth.ClientSecret = firstNonEmpty(os.Getenv("ELOQUA_CLIENT_SECRET"), c.Auth.ClientSecret)
	c.Auth.RedirectURL = firstNonEmpty(os.Getenv("ELOQUA_REDIRECT_URI"), c.Auth.RedirectURL)
	c.Auth.TokenFile = firstNonEmpty(os.Getenv("ELOQUA_TOKEN_FILE"), c.Auth.TokenFile)
	c.Auth.AccessToken = firstNonEmpty(os.Getenv("ELOQUA_ACCESS_TOKEN"), c.Auth.AccessToken)
	c.Contacts.CacheFile = firstNonEmpty(os.Getenv("CONTACT_CACHE_FILE"), c.Contacts.CacheFile)
	c.Report.OutputDir = firstNonEmpty(os.Getenv("REPORT_OUTPUT_DIR"), c.Report.OutputDir)
	c.S3.Bucket = firstNonEmpty(os.Getenv("S3_BUCKET"), c.S3.Bucket)
	c.S3.Prefix = firstNonEmpty(os.Getenv("S3_PREFIX"), c.S3.Prefix)
	c.S3.Region = firstNonEmpty(os.Getenv("AWS_REGION"), c.S3.Region)
	c.Redis.URL = firstNonEmpty(os.Getenv("REDIS_URL"), c.Redis.URL)
	c.Redis.Queue = firstNonEmpty(os.Getenv("REPORT_QUEUE"), c.Redis.Queue)
	c.Database.URL = firstNonEmpty(os.Getenv("DATABASE_URL"), c.Database.URL)
	c.Metrics.TextfilePath = firstNonEmpty(os.Getenv("METRICS_TEXTFILE"), c.Metrics.TextfilePath)
	c.Emails.DownloadDir = firstNonEmpty(os.Getenv("EMAIL_DOWNLOADS_DIR"), c.Emails.DownloadDir)

	c.Pipeline.FetchWorkers = envOrDefaultInt("FETCH_WORKERS", c.Pipeline.FetchWorkers)
	c.Contacts.Workers = envOrDefaultInt("CONTACT_FETCH_MAX_WORKERS", c.Contacts.Workers)
	c.Contacts.RequestDelay = envOrDefaultDuration("REST_API_RATE_LIMIT_DELAY", c.Contacts.RequestDelay)
	c.Bulk.PollInterval = envOrDefaultDuration("SYNC_WAIT", c.Bulk.PollInterval)
	c.Bulk.PollAttempts = envOrDefaultInt("SYNC_MAX_ATTEMPTS", c.Bulk.PollAttempts)
}

func (c *Config) applyDefaults() {
	setString(&c.Eloqua.BaseURL, "https://secure.p06.eloqua.com")
	setString(&c.Eloqua.Timezone, "UTC")
	setString(&c.Eloqua.Endpoints.EmailOpens, "/API/OData/ActivityDetails/1/EmailOpen")
	setString(&c.Eloqua.Endpoints.EmailClicks, "/API/OData/ActivityDetails/1/EmailClickthrough")
	setString(&c.Eloqua.Endpoints.Campaigns, "/API/OData/CampaignAnalysis/1/Campaign")
	setString(&c.Eloqua.Endpoints.Users, "/API/OData/CampaignAnalysis/1/User")
	setString(&c.Eloqua.Endpoints.EmailAssets, "/API/OData/EmailAnalysis/1/EmailAsset")
	setString(&c.Eloqua.FieldIDs.Role, "100199")
	setString(&c.Eloqua.FieldIDs.PartnerID, "100198")
	setString(&c.Eloqua.FieldIDs.PartnerName, "100197")
	setString(&c.Eloqua.FieldIDs.Market, "100195")

	setString(&c.Auth.TokenFile, "data/tokens.json")

	setDuration(&c.HTTP.Timeout, 60*time.Second)
	setInt(&c.HTTP.MaxIdleConnsPerHost, 32)
	setInt(&c.HTTP.MaxRetries, 3)
	setDuration(&c.HTTP.RetryBaseDelay, time.Second)
	setDuration(&c.HTTP.RetryMaxDelay, 30*time.Second)

	setDuration(&c.Bulk.PollInterval, 10*time.Second)
	setInt(&c.Bulk.PollAttempts, 60)
	setInt(&c.Bulk.PageSize, 50000)
	setInt(&c.Bulk.DownloadAttempts, 3)
	setDuration(&c.Bulk.DownloadDelay, 2*time.Second)

	setInt(&c.OData.PageSize, 1000)
	setInt(&c.OData.MaxPages, 200)
	setDuration(&c.OData.PageDelay, 500*time.Millisecond)

	setString(&c.Contacts.CacheFile, "data/cache/contact_cache.json.gz")
	setString(&c.Contacts.LegacyCacheFile, "data/cache/contact_cache.json")
	setInt(&c.Contacts.Workers, 20)
	setDuration(&c.Contacts.RequestDelay, 100*time.Millisecond)

	setString(&c.Report.OutputDir, "data")
	setInt(&c.Report.BounceWindowDays, 7)
	setInt(&c.Report.ActivityWindowDays, 30)
	setInt(&c.Report.ActivityChunkDays, 7)
	setInt(&c.Report.AssetBatchSize, 50)
	if len(c.Report.InternalDomains) == 0 {
		c.Report.InternalDomains = []string{"@hp.com"}
	}

	setInt(&c.Pipeline.FetchWorkers, 6)
	setInt(&c.Pipeline.RangeWorkers, 3)

	setString(&c.S3.Region, "us-east-1")

	setString(&c.Emails.DownloadDir, "data/email_downloads")
	setInt(&c.Emails.Workers, 5)

	setString(&c.Redis.KeyPrefix, "eloqua:report:")
	setDuration(&c.Redis.LockTTL, 2*time.Hour)
	setDuration(&c.Redis.DoneTTL, 90*24*time.Hour)
}

// Validate checks settings that have no sensible default.
func (c *Config) Validate() error {
	var errs []error
	if !strings.HasPrefix(c.Eloqua.BaseURL, "http://") && !strings.HasPrefix(c.Eloqua.BaseURL, "https://") {
		errs = append(errs, fmt.Errorf("eloqua.base_url must be an http(s) URL, got %q", c.Eloqua.BaseURL))
	}
	if _, err := time.LoadLocation(c.Eloqua.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("eloqua.timezone: %w", err))
	}
	if c.Auth.AccessToken == "" && (c.Auth.ClientID == "" || c.Auth.ClientSecret == "") {
		errs = append(errs, errors.New("auth: set access_token or both client_id and client_secret"))
	}
	if c.Report.BounceWindowDays < 1 {
		errs = append(errs, errors.New("report.bounce_window_days must be at least 1"))
	}
	if c.Report.ActivityWindowDays < 1 {
		errs = append(errs, errors.New("report.activity_window_days must be at least 1"))
	}
	return errors.Join(errs...)
}

// Location returns the report timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Eloqua.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setString(p *string, v string) {
	if strings.TrimSpace(*p) == "" {
		*p = v
	}
}

func setInt(p *int, v int) {
	if *p == 0 {
		*p = v
	}
}

func setDuration(p *time.Duration, v time.Duration) {
	if *p == 0 {
		*p = v
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

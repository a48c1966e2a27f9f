// Package config loads the server configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port        int    `yaml:"port"`
		Host        string `yaml:"host"`
		CORSOrigins string `yaml:"cors_origins"`
	} `yaml:"server"`

	Storage struct {
		DataDir  string `yaml:"data_dir"`
		TempDir  string `yaml:"temp_dir"`
		Database string `yaml:"database"`
	} `yaml:"storage"`

	Workers struct {
		Count     int `yaml:"count"`
		QueueSize int `yaml:"queue_size"`
	} `yaml:"workers"`

	Locks struct {
		WaitSeconds int `yaml:"wait_seconds"`
	} `yaml:"locks"`

	Diarization struct {
		Command           string   `yaml:"command"`
		Args              []string `yaml:"args"`
		HFToken           string   `yaml:"hf_token"`
		MinSegmentSeconds float64  `yaml:"min_segment_seconds"`
		SplitConcurrency  int      `yaml:"split_concurrency"`
	} `yaml:"diarization"`

	Acquire struct {
		YtdlpPath     string `yaml:"ytdlp_path"`
		FFmpegPath    string `yaml:"ffmpeg_path"`
		ResolveTitles bool   `yaml:"resolve_titles"`
	} `yaml:"acquire"`

	Whisper struct {
		Enabled  bool   `yaml:"enabled"`
		Model    string `yaml:"model"`
		Language string `yaml:"language"`
	} `yaml:"whisper"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes"`
		MaxAgeHours     int `yaml:"max_age_hours"`
	} `yaml:"cleanup"`

	GoogleDrive struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		FolderName      string `yaml:"folder_name"`
	} `yaml:"google_drive"`

	Limits struct {
		MaxFileSizeMB int `yaml:"max_file_size_mb"`
	} `yaml:"limits"`

	Poll struct {
		IntervalSeconds int `yaml:"interval_seconds"`
	} `yaml:"poll"`
}

// Load reads the YAML file at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	file, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(file, &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("HF_TOKEN"); v != "" {
		c.Diarization.HFToken = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = v
	}
}

func (c *Config) applyDefaults() {
	setString(&c.Server.Host, "0.0.0.0")
	setInt(&c.Server.Port, 8000)
	setString(&c.Server.CORSOrigins, "*")
	c.Server.CORSOrigins = strings.Join(strings.Fields(strings.ReplaceAll(c.Server.CORSOrigins, ",", " ")), ",")

	setString(&c.Storage.DataDir, "./data/projects")
	setString(&c.Storage.TempDir, "./data/temp")
	setString(&c.Storage.Database, "./data/diarization.db")

	setInt(&c.Workers.Count, 2)
	setInt(&c.Workers.QueueSize, 100)
	setInt(&c.Locks.WaitSeconds, 10)

	setString(&c.Diarization.Command, "python3")
	if len(c.Diarization.Args) == 0 {
		c.Diarization.Args = []string{"scripts/diarize.py"}
	}
	if c.Diarization.MinSegmentSeconds <= 0 {
		c.Diarization.MinSegmentSeconds = 0.1
	}
	setInt(&c.Diarization.SplitConcurrency, 4)

	setString(&c.Acquire.YtdlpPath, "yt-dlp")
	setString(&c.Acquire.FFmpegPath, "ffmpeg")

	setString(&c.Whisper.Model, "base")

	setInt(&c.Cleanup.IntervalMinutes, 60)
	setInt(&c.Cleanup.MaxAgeHours, 24)

	setString(&c.GoogleDrive.CredentialsFile, "config/credentials.json")
	setString(&c.GoogleDrive.TokenFile, "config/token.json")
	setString(&c.GoogleDrive.FolderName, "Diarization Exports")

	setInt(&c.Limits.MaxFileSizeMB, 500)
	setInt(&c.Poll.IntervalSeconds, 2)
}

// LockWait is the bounded wait for a project lock.
func (c *Config) LockWait() time.Duration {
	return time.Duration(c.Locks.WaitSeconds) * time.Second
}

// PollInterval is how often job status is pushed to stream clients.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalSeconds) * time.Second
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func setString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func setInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

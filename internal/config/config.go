// Package config loads and writes the ratmail TOML configuration file
// described in spec.md §6.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/hkdb/ratmail/internal/logging"
)

// CLIConfig is the [cli] table.
type CLIConfig struct {
	Enabled        bool   `toml:"enabled"`
	DefaultAccount string `toml:"default_account"`
}

// IMAPConfig is an account's [accounts.imap] table.
type IMAPConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	Username        string `toml:"username"`
	Password        string `toml:"password"`
	SkipTLSVerify   bool   `toml:"skip_tls_verify"`
	InitialSyncDays int    `toml:"initial_sync_days"`
	FetchChunkSize  int    `toml:"fetch_chunk_size"`
}

// SMTPConfig is an account's [accounts.smtp] table.
type SMTPConfig struct {
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Username      string `toml:"username"`
	Password      string `toml:"password"`
	From          string `toml:"from"`
	SkipTLSVerify bool   `toml:"skip_tls_verify"`
}

// AccountConfig is one [[accounts]] entry.
type AccountConfig struct {
	Name   string     `toml:"name"`
	DBPath string     `toml:"db_path"`
	IMAP   IMAPConfig `toml:"imap"`
	SMTP   SMTPConfig `toml:"smtp"`
}

// RenderConfig is the [render] table.
type RenderConfig struct {
	RemoteImages      bool   `toml:"remote_images"`
	WidthPx           int    `toml:"width_px"`
	RenderScale       float64 `toml:"render_scale"`
	TileHeightPxSide  int    `toml:"tile_height_px_side"`
	TileHeightPxFocus int    `toml:"tile_height_px_focus"`
}

// Palette is the [ui.palette] table; keys are free-form so the UI (out of
// core scope) can add theme entries without breaking the loader.
type Palette struct {
	BaseFG string `toml:"base_fg"`
	BaseBG string `toml:"base_bg"`
	Border string `toml:"border"`
}

// UIConfig is the [ui] table.
type UIConfig struct {
	FolderWidthCols int     `toml:"folder_width_cols"`
	Theme           string  `toml:"theme"`
	ComposeVim      bool    `toml:"compose_vim"`
	Palette         Palette `toml:"palette"`
}

// SendConfig is the [send] table.
type SendConfig struct {
	HTML       bool   `toml:"html"`
	FontFamily string `toml:"font_family"`
	FontSizePx int    `toml:"font_size_px"`
}

// SpellConfig is the [spell] table.
type SpellConfig struct {
	Lang   string   `toml:"lang"`
	Dir    string   `toml:"dir"`
	Ignore []string `toml:"ignore"`
}

// Config is the full ratmail.toml document.
type Config struct {
	CLI      CLIConfig       `toml:"cli"`
	Accounts []AccountConfig `toml:"accounts"`
	Render   RenderConfig    `toml:"render"`
	UI       UIConfig        `toml:"ui"`
	Send     SendConfig      `toml:"send"`
	Spell    SpellConfig     `toml:"spell"`

	// ParseError holds an unparsable-TOML failure reason; the CLI stays
	// disabled but the process does not abort (spec.md §7).
	ParseError string `toml:"-"`
}

// DefaultPath resolves $XDG_CONFIG_HOME/ratmail/ratmail.toml, falling back
// to $HOME/.config/ratmail/ratmail.toml.
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ratmail", "ratmail.toml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "ratmail", "ratmail.toml")
}

// demoDefaults populates the two-account demo fixture used when no accounts
// are configured (spec.md §6 "Missing account list").
func demoDefaults() []AccountConfig {
	return []AccountConfig{
		{Name: "Personal", DBPath: "personal.db"},
		{Name: "Work", DBPath: "work.db"},
	}
}

// Load reads the config at path, synthesising a minimal default on a
// missing file and marking ParseError (without failing) on malformed TOML.
func Load(path string) (*Config, error) {
	log := logging.WithComponent("config")

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		log.Debug().Str("path", path).Msg("config file missing, synthesising default")
		cfg := &Config{CLI: CLIConfig{Enabled: true}}
		if err := Write(path, cfg); err != nil {
			return nil, err
		}
		cfg.Accounts = demoDefaults()
		return cfg, nil
	}

	cfg := &Config{}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		log.Error().Err(err).Msg("config file unparsable, disabling CLI")
		return &Config{CLI: CLIConfig{Enabled: false}, ParseError: err.Error()}, nil
	}

	if len(cfg.Accounts) == 0 {
		cfg.Accounts = demoDefaults()
	}

	return cfg, nil
}

// Write serialises cfg as TOML to path, creating parent directories as
// needed with owner-only permissions (the file may carry IMAP/SMTP
// passwords).
func Write(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config file for write: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

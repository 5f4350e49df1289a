package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

type HubOptions struct {
	ListenAddr     string `toml:"listen-addr"`
	URL            string `toml:"url"`
	AllowAnyOrigin bool   `toml:"allow-any-origin"`
}

type PresenceOptions struct {
	HeartbeatTimeoutSec int      `toml:"heartbeat-timeout-sec"`
	CursorColors        []string `toml:"cursor-colors"`
}

type SessionOptions struct {
	Persist          bool `toml:"persist"`
	AutosaveSec      int  `toml:"autosave-sec"`
	MaxCollaborators int  `toml:"max-collaborators"`
}

type Config struct {
	Hub      HubOptions      `toml:"hub"`
	Presence PresenceOptions `toml:"presence"`
	Session  SessionOptions  `toml:"session"`
}

// DefaultCursorColors is the palette assigned to collaborators. The
// order matters: color assignment hashes the actor id into this slice,
// so edits to the palette reshuffle everyone's color.
var DefaultCursorColors = []string{
	"#FF6B6B", // red
	"#4ECDC4", // teal
	"#45B7D1", // sky blue
	"#96CEB4", // sage
	"#FFEAA7", // yellow
	"#DDA0DD", // plum
	"#98D8C8", // mint
	"#F7DC6F", // gold
	"#BB8FCE", // purple
	"#85C1E9", // light blue
	"#F8B500", // orange
	"#00CED1", // dark turquoise
}

func Default() Config {
	return Config{
		Hub: HubOptions{
			ListenAddr:     ":8721",
			URL:            "ws://127.0.0.1:8721/ws",
			AllowAnyOrigin: false,
		},
		Presence: PresenceOptions{
			HeartbeatTimeoutSec: 30,
			CursorColors:        append([]string(nil), DefaultCursorColors...),
		},
		Session: SessionOptions{
			Persist:          true,
			AutosaveSec:      15,
			MaxCollaborators: 10,
		},
	}
}

func (p PresenceOptions) HeartbeatTimeout() time.Duration {
	return time.Duration(p.HeartbeatTimeoutSec) * time.Second
}

func (s SessionOptions) AutosaveInterval() time.Duration {
	return time.Duration(s.AutosaveSec) * time.Second
}

func Load() (Config, error) {
	cfg := Default()
	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	var userCfg Config
	if _, err := toml.Decode(string(data), &userCfg); err != nil {
		return cfg, err
	}

	if userCfg.Hub.ListenAddr != "" {
		cfg.Hub.ListenAddr = userCfg.Hub.ListenAddr
	}
	if userCfg.Hub.URL != "" {
		cfg.Hub.URL = userCfg.Hub.URL
	}
	if userCfg.Hub.AllowAnyOrigin {
		cfg.Hub.AllowAnyOrigin = true
	}
	if userCfg.Presence.HeartbeatTimeoutSec > 0 {
		cfg.Presence.HeartbeatTimeoutSec = userCfg.Presence.HeartbeatTimeoutSec
	}
	if len(userCfg.Presence.CursorColors) > 0 {
		cfg.Presence.CursorColors = userCfg.Presence.CursorColors
	}
	if userCfg.Session.AutosaveSec > 0 {
		cfg.Session.AutosaveSec = userCfg.Session.AutosaveSec
	}
	if userCfg.Session.MaxCollaborators > 0 {
		cfg.Session.MaxCollaborators = userCfg.Session.MaxCollaborators
	}

	return cfg, nil
}

func ConfigDir() (string, error) {
	if v := os.Getenv("EDSYNC_CONFIG_HOME"); v != "" {
		return filepath.Join(v), nil
	}
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "edsync"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "edsync"), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

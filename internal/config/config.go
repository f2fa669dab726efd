package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hylla/draftwork/internal/domain"
	toml "github.com/pelletier/go-toml/v2"
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Users    []UserConfig   `toml:"users"`
	Watch    WatchConfig    `toml:"watch"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type ServerConfig struct {
	Bind        string `toml:"bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

// UserConfig seeds one directory user on startup. Directory order follows
// the order of entries in the file.
type UserConfig struct {
	ID          string `toml:"id"`
	Handle      string `toml:"handle"`
	DisplayName string `toml:"display_name"`
	Role        string `toml:"role"`
}

type WatchConfig struct {
	ServerURL string `toml:"server_url"`
	Pulse     string `toml:"pulse"`
}

// PulseDuration parses the configured pulse window, falling back to 2s.
func (w WatchConfig) PulseDuration() time.Duration {
	parsed, err := time.ParseDuration(strings.TrimSpace(w.Pulse))
	if err != nil || parsed <= 0 {
		return 2 * time.Second
	}
	return parsed
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Server: ServerConfig{
			Bind:        "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
		Watch: WatchConfig{
			ServerURL: "http://127.0.0.1:8080",
			Pulse:     "2s",
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}
	if strings.TrimSpace(c.Server.Bind) == "" {
		return errors.New("server bind address is required")
	}
	if pulse := strings.TrimSpace(c.Watch.Pulse); pulse != "" {
		if _, err := time.ParseDuration(pulse); err != nil {
			return fmt.Errorf("invalid watch.pulse: %q", pulse)
		}
	}

	seenID := map[string]struct{}{}
	seenHandle := map[string]struct{}{}
	for idx, user := range c.Users {
		id := strings.TrimSpace(user.ID)
		handle := strings.TrimSpace(strings.ToLower(user.Handle))
		if id == "" {
			return fmt.Errorf("users[%d].id is required", idx)
		}
		if handle == "" {
			return fmt.Errorf("users[%d].handle is required", idx)
		}
		if !domain.IsValidRole(domain.Role(user.Role)) {
			return fmt.Errorf("users[%d].role is invalid: %q", idx, user.Role)
		}
		if _, ok := seenID[id]; ok {
			return fmt.Errorf("users[%d].id is duplicated: %s", idx, id)
		}
		if _, ok := seenHandle[handle]; ok {
			return fmt.Errorf("users[%d].handle is duplicated: %s", idx, handle)
		}
		seenID[id] = struct{}{}
		seenHandle[handle] = struct{}{}
	}
	return nil
}

// Directory converts seeded users to their domain form, in file order.
func (c Config) Directory() []domain.UserRef {
	users := make([]domain.UserRef, 0, len(c.Users))
	for _, user := range c.Users {
		users = append(users, domain.UserRef{
			ID:          strings.TrimSpace(user.ID),
			Handle:      strings.TrimSpace(strings.ToLower(user.Handle)),
			DisplayName: strings.TrimSpace(user.DisplayName),
			Role:        domain.NormalizeRole(domain.Role(user.Role)),
		})
	}
	return users
}

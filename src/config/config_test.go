package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"personal/botkit/src/client"
)

type ConfigSuite struct {
	suite.Suite
	dir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) SetupTest() {
	for _, key := range []string{EnvToken, EnvIntents, EnvGatewayURL, EnvAPIURL, EnvProjectDir, EnvDebug, EnvMetricsAddr, EnvLogLevel} {
		s.T().Setenv(key, "")
	}
	s.dir = s.T().TempDir()
}

func (s *ConfigSuite) writeFile(name, content string) string {
	path := filepath.Join(s.dir, name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (s *ConfigSuite) TestDefaultsFromEnvironment() {
	s.T().Setenv(EnvToken, "env-token")

	cfg, err := Load("")
	s.Require().NoError(err)
	s.Equal("env-token", cfg.Token())
	s.Equal(client.IntentGuilds, cfg.Intents())
	s.Equal(client.DiscordAPI, cfg.APIURL)
	s.Empty(cfg.GatewayURL)
	s.Equal(".", cfg.ProjectDir)
	s.Equal(5, cfg.Reconnect.MaxAttempts)
	s.Equal(500*time.Millisecond, cfg.Reconnect.InitialInterval)
	s.Equal(30*time.Second, cfg.Reconnect.MaxInterval)
	s.Empty(cfg.Path)
}

func (s *ConfigSuite) TestFileValues() {
	path := s.writeFile("botkit.yaml", `
token: file-token
intents: 513
gateway_url: wss://gateway.example
project_dir: ./bot
debug: true
log_level: warn
metrics_addr: ":9464"
handler_timeout: 3s
reconnect:
  max_attempts: 0
  initial_interval: 1s
  max_interval: 10s
`)

	cfg, err := Load(path)
	s.Require().NoError(err)
	s.Equal("file-token", cfg.Token())
	s.Equal(uint32(513), cfg.Intents())
	s.Equal("wss://gateway.example", cfg.GatewayURL)
	s.Equal("./bot", cfg.ProjectDir)
	s.True(cfg.Debug)
	s.Equal("warn", cfg.LogLevel)
	s.Equal(":9464", cfg.MetricsAddr)
	s.Equal(3*time.Second, cfg.HandlerTimeout)
	s.Equal(ReconnectConfig{MaxAttempts: 0, InitialInterval: time.Second, MaxInterval: 10 * time.Second}, cfg.Reconnect)
	s.Equal(path, cfg.Path)
}

func (s *ConfigSuite) TestEnvironmentOverridesFile() {
	path := s.writeFile("botkit.yaml", "token: file-token\nintents: GUILDS\ndebug: true\n")
	s.T().Setenv(EnvToken, "env-token")
	s.T().Setenv(EnvIntents, "guilds, guild_messages, message_content")
	s.T().Setenv(EnvDebug, "false")
	s.T().Setenv(EnvMetricsAddr, "127.0.0.1:9000")

	cfg, err := Load(path)
	s.Require().NoError(err)
	s.Equal("env-token", cfg.Token())
	s.Equal(client.IntentGuilds|client.IntentGuildMessages|client.IntentMessageContent, cfg.Intents())
	s.False(cfg.Debug)
	s.Equal("127.0.0.1:9000", cfg.MetricsAddr)
}

func (s *ConfigSuite) TestEmptyFile() {
	path := s.writeFile("botkit.yml", "")
	s.T().Setenv(EnvToken, "t")

	cfg, err := Load(path)
	s.Require().NoError(err)
	s.Equal(client.IntentGuilds, cfg.Intents())
}

func (s *ConfigSuite) TestRejected() {
	tests := map[string]struct {
		file string
		env  map[string]string
	}{
		"missing token":   {file: "intents: 1\n"},
		"unknown key":     {file: "token: t\nprefix: '!'\n"},
		"unknown intent":  {file: "token: t\nintents: GUILDS,EVERYTHING\n"},
		"http gateway":    {file: "token: t\ngateway_url: https://gateway.discord.gg\n"},
		"relative api":    {file: "token: t\napi_url: /api\n"},
		"bad log level":   {file: "token: t\nlog_level: loud\n"},
		"bad debug":       {file: "token: t\n", env: map[string]string{EnvDebug: "sometimes"}},
		"negative tries":  {file: "token: t\nreconnect:\n  max_attempts: -1\n"},
		"inverted window": {file: "token: t\nreconnect:\n  initial_interval: 10s\n  max_interval: 1s\n"},
	}
	for name, tt := range tests {
		s.Run(name, func() {
			for k, v := range tt.env {
				s.T().Setenv(k, v)
			}
			_, err := Load(s.writeFile("botkit.yaml", tt.file))
			s.Error(err)
		})
	}
}

func (s *ConfigSuite) TestUnsupportedFormat() {
	s.T().Setenv(EnvToken, "t")
	_, err := Load(s.writeFile("botkit.json", "{}"))
	s.ErrorContains(err, "only YAML supported")
}

func (s *ConfigSuite) TestMissingExplicitFile() {
	s.T().Setenv(EnvToken, "t")
	_, err := Load(filepath.Join(s.dir, "nope.yaml"))
	s.Error(err)
}

package config

import (
	"fmt"
	"strings"
)

// RuntimeKey describes one runtime.* configuration key: a bootstrap or
// infra setting the control plane needs before (or instead of) anything
// persisted in the transcript/workspace/scheduler stores.
type RuntimeKey struct {
	Key         string // full key name, e.g. "runtime.daemon_tcp_addr"
	Description string
	EnvVar      string // corresponding PRIME_* env var; empty = no mapping
	Secret      bool   // true: value must come from env, never config.yaml
	Required    bool   // true: the control plane needs this set; not checked at startup
	Default     string
	Validate    func(string) error
}

// RuntimeKeys defines every recognized runtime.* key. Secrets (API keys,
// bot tokens, the daemon registration key) are marked Secret so
// ValidateRuntimeKey rejects an attempt to write them into config.yaml.
var RuntimeKeys = []RuntimeKey{
	{
		Key:         "runtime.daemon_tcp_addr",
		Description: "TCP listen address for the daemon wire transport",
		EnvVar:      "PRIME_DAEMON_TCP_ADDR",
		Default:     ":7420",
	},
	{
		Key:         "runtime.http_addr",
		Description: "HTTP listen address for the operator monitoring surface",
		EnvVar:      "PRIME_HTTP_ADDR",
		Default:     ":7080",
	},
	{
		Key:         "runtime.log_level",
		Description: "Structured log level (debug, info, warn, error)",
		EnvVar:      "PRIME_LOG_LEVEL",
		Default:     "info",
		Validate:    validateLogLevel,
	},
	{
		Key:         "runtime.log_json",
		Description: "Emit logs as JSON rather than console-formatted text",
		EnvVar:      "PRIME_LOG_JSON",
		Default:     "false",
		Validate:    validateBool,
	},
	{
		Key:         "runtime.registration_key",
		Description: "Pre-shared key a daemon must present to register",
		EnvVar:      "PRIME_REGISTRATION_KEY",
		Secret:      true,
	},
	{
		Key:         "runtime.anthropic_api_key",
		Description: "API key for the brain loop's model provider",
		EnvVar:      "PRIME_ANTHROPIC_API_KEY",
		Secret:      true,
		Required:    true,
	},
	{
		Key:         "runtime.chat_bot_token",
		Description: "Bot token for the configured chat provider",
		EnvVar:      "PRIME_CHAT_BOT_TOKEN",
		Secret:      true,
	},
	{
		Key:         "runtime.chat_app_token",
		Description: "App-level token for the chat provider's Socket Mode connection",
		EnvVar:      "PRIME_CHAT_APP_TOKEN",
		Secret:      true,
	},
	{
		Key:         "runtime.http_token",
		Description: "Bearer token required on the operator monitoring HTTP surface; empty disables auth",
		EnvVar:      "PRIME_HTTP_TOKEN",
		Secret:      true,
	},
	{
		Key:         "runtime.search_url",
		Description: "GET ?q= endpoint the web_search tool queries",
		EnvVar:      "PRIME_SEARCH_URL",
	},
	{
		Key:         "runtime.redis_url",
		Description: "Redis connection URL for the storage abstraction's redis backend",
		EnvVar:      "PRIME_REDIS_URL",
	},
	{
		Key:         "runtime.redis_namespace",
		Description: "Redis key namespace prefix",
		EnvVar:      "PRIME_REDIS_NAMESPACE",
		Default:     "prime",
	},
	{
		Key:         "runtime.tls_enabled",
		Description: "Enable TLS on the daemon TCP listener",
		EnvVar:      "PRIME_TLS_ENABLED",
		Default:     "false",
		Validate:    validateBool,
	},
}

var runtimeKeyMap map[string]*RuntimeKey

func init() {
	runtimeKeyMap = make(map[string]*RuntimeKey, len(RuntimeKeys))
	for i := range RuntimeKeys {
		runtimeKeyMap[RuntimeKeys[i].Key] = &RuntimeKeys[i]
	}
}

// IsRuntimeKey returns true if key is in the runtime.* namespace.
func IsRuntimeKey(key string) bool {
	return strings.HasPrefix(key, "runtime.")
}

// LookupRuntimeKey returns the key definition, or nil if key is unrecognized.
func LookupRuntimeKey(key string) *RuntimeKey {
	return runtimeKeyMap[key]
}

// ValidateRuntimeKey checks that key is known, not a secret, and that value
// passes its validator (if any). Called before writing a runtime.* key to
// config.yaml — secrets must only ever be set via their env var.
func ValidateRuntimeKey(key, value string) error {
	rk := runtimeKeyMap[key]
	if rk == nil {
		known := make([]string, 0, len(RuntimeKeys))
		for _, k := range RuntimeKeys {
			known = append(known, k.Key)
		}
		return fmt.Errorf("unknown runtime key %q; valid keys: %s", key, strings.Join(known, ", "))
	}
	if rk.Secret {
		return fmt.Errorf("key %q is a secret and must be set via %s, not config.yaml", key, rk.EnvVar)
	}
	if rk.Validate != nil {
		if err := rk.Validate(value); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
	}
	return nil
}

// RuntimeKeyEnvMap maps every runtime.* key that has one to its env var name.
func RuntimeKeyEnvMap() map[string]string {
	m := make(map[string]string, len(RuntimeKeys))
	for _, rk := range RuntimeKeys {
		if rk.EnvVar != "" {
			m[rk.Key] = rk.EnvVar
		}
	}
	return m
}

// RegisterRuntimeDefaults installs viper defaults for every runtime.* key
// that declares one. Called from Initialize.
func RegisterRuntimeDefaults() {
	for _, rk := range RuntimeKeys {
		if rk.Default != "" {
			setDefault(rk.Key, rk.Default)
		}
	}
}

// RuntimeSettings is the resolved view of runtime.* used by cmd/primed at
// startup.
type RuntimeSettings struct {
	DaemonTCPAddr    string
	HTTPAddr         string
	LogLevel         string
	LogJSON          bool
	RegistrationKey  string
	AnthropicAPIKey  string
	ChatBotToken     string
	ChatAppToken     string
	HTTPToken        string
	SearchURL        string
	RedisURL         string
	RedisNamespace   string
	TLSEnabled       bool
}

// GetRuntimeSettings reads every runtime.* key from the viper singleton.
func GetRuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		DaemonTCPAddr:   GetString("runtime.daemon_tcp_addr"),
		HTTPAddr:        GetString("runtime.http_addr"),
		LogLevel:        GetString("runtime.log_level"),
		LogJSON:         GetBool("runtime.log_json"),
		RegistrationKey: GetString("runtime.registration_key"),
		AnthropicAPIKey: GetString("runtime.anthropic_api_key"),
		ChatBotToken:    GetString("runtime.chat_bot_token"),
		ChatAppToken:    GetString("runtime.chat_app_token"),
		HTTPToken:       GetString("runtime.http_token"),
		SearchURL:       GetString("runtime.search_url"),
		RedisURL:        GetString("runtime.redis_url"),
		RedisNamespace:  GetString("runtime.redis_namespace"),
		TLSEnabled:      GetBool("runtime.tls_enabled"),
	}
}

func validateLogLevel(value string) error {
	switch strings.ToLower(value) {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("must be one of: debug, info, warn, error; got %q", value)
	}
}

func validateBool(value string) error {
	switch strings.ToLower(value) {
	case "true", "false", "1", "0", "yes", "no":
		return nil
	default:
		return fmt.Errorf("must be true or false, got %q", value)
	}
}

package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// YamlOnlyKeys are configuration keys that must live in config.yaml rather
// than anywhere else, because they're read at process startup before the
// rest of the configuration machinery (and any storage backend) exists.
var YamlOnlyKeys = map[string]bool{
	// Bootstrap flags read before the daemon listener or brain loop starts.
	"runtime.daemon_tcp_addr": true,
	"runtime.http_addr":       true,
	"runtime.log_level":       true,
	"runtime.log_json":        true,
	"storage.backend":         true,
}

// IsYamlOnlyKey returns true if key must be stored in config.yaml rather
// than anywhere a runtime operation (e.g. a future `primectl config set`
// talking to a running daemon) could otherwise write it.
func IsYamlOnlyKey(key string) bool {
	if YamlOnlyKeys[key] {
		return true
	}
	prefixes := []string{"storage.", "confirmation.", "daemons."}
	for _, prefix := range prefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// SetYamlConfig sets a configuration value in the project's config.yaml,
// handling both adding new keys and updating existing (possibly commented)
// keys.
func SetYamlConfig(key, value string) error {
	configPath, err := findProjectConfigYaml()
	if err != nil {
		return err
	}

	content, err := os.ReadFile(configPath) //nolint:gosec // configPath is from findProjectConfigYaml
	if err != nil {
		return fmt.Errorf("failed to read config.yaml: %w", err)
	}

	newContent, err := updateYamlKey(string(content), key, value)
	if err != nil {
		return err
	}

	if err := os.WriteFile(configPath, []byte(newContent), 0600); err != nil { //nolint:gosec // configPath is validated
		return fmt.Errorf("failed to write config.yaml: %w", err)
	}

	if v != nil {
		_ = v.ReadInConfig()
	}
	return nil
}

// GetYamlConfig gets a configuration value from config.yaml via the viper
// singleton. Returns empty string if the key is unset or viper hasn't been
// initialized.
func GetYamlConfig(key string) string {
	return GetString(key)
}

// findProjectConfigYaml finds the project's .prime/config.yaml file,
// walking up from the working directory.
func findProjectConfigYaml() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
		configPath := filepath.Join(dir, ".prime", "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
	}

	return "", fmt.Errorf("no .prime/config.yaml found above %s", cwd)
}

// updateYamlKey updates a key in yaml content, handling commented-out keys.
// If the key exists (commented or not), it's updated in place; otherwise
// it's appended at the end.
func updateYamlKey(content, key, value string) (string, error) {
	formattedValue := formatYamlValue(value)
	newLine := fmt.Sprintf("%s: %s", key, formattedValue)

	keyPattern := regexp.MustCompile(`^(\s*)(#\s*)?` + regexp.QuoteMeta(key) + `\s*:`)

	found := false
	var result []string

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if keyPattern.MatchString(line) {
			matches := keyPattern.FindStringSubmatch(line)
			indent := ""
			if len(matches) > 1 {
				indent = matches[1]
			}
			result = append(result, indent+newLine)
			found = true
		} else {
			result = append(result, line)
		}
	}

	if !found {
		if len(result) > 0 && result[len(result)-1] != "" {
			result = append(result, "")
		}
		result = append(result, newLine)
	}

	return strings.Join(result, "\n"), nil
}

// formatYamlValue formats a value appropriately for YAML.
func formatYamlValue(value string) string {
	lower := strings.ToLower(value)
	if lower == "true" || lower == "false" {
		return lower
	}
	if isNumeric(value) {
		return value
	}
	if isDuration(value) {
		return value
	}
	if needsQuoting(value) {
		return fmt.Sprintf("%q", value)
	}
	return value
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		if c == '-' && i == 0 {
			continue
		}
		if c == '.' {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isDuration(s string) bool {
	if len(s) < 2 {
		return false
	}
	suffix := s[len(s)-1]
	if suffix != 's' && suffix != 'm' && suffix != 'h' {
		return false
	}
	return isNumeric(s[:len(s)-1])
}

func needsQuoting(s string) bool {
	special := []string{":", "#", "[", "]", "{", "}", ",", "&", "*", "!", "|", ">", "'", "\"", "%", "@", "`"}
	for _, c := range special {
		if strings.Contains(s, c) {
			return true
		}
	}
	if strings.TrimSpace(s) != s {
		return true
	}
	return false
}

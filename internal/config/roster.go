package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RosterConfig is the daemons.trusted section of config.yaml: a
// soft allowlist of daemon names an operator expects to connect. It is not
// enforced by the registry (any daemon presenting the registration key may
// still register). No caller in this repository checks it, so an unlisted
// name registers without any warning.
type RosterConfig struct {
	Trusted []string `yaml:"trusted,omitempty,flow"`
}

// IsTrustedDaemon reports whether name appears in roster. A nil or empty
// roster is treated as "everything trusted" (no roster configured yet), so
// a fresh install never warns.
func IsTrustedDaemon(roster []string, name string) bool {
	if len(roster) == 0 {
		return true
	}
	for _, t := range roster {
		if t == name {
			return true
		}
	}
	return false
}

// GetRosterFromYAML reads the daemons.trusted list from config.yaml.
// Returns an empty RosterConfig if the section or the file doesn't exist.
func GetRosterFromYAML(configPath string) (*RosterConfig, error) {
	data, err := os.ReadFile(configPath) // #nosec G304 - config path from caller
	if err != nil {
		if os.IsNotExist(err) {
			return &RosterConfig{}, nil
		}
		return nil, fmt.Errorf("read config.yaml: %w", err)
	}

	var cfg map[string]interface{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config.yaml: %w", err)
	}

	roster := &RosterConfig{}
	daemonsRaw, ok := cfg["daemons"]
	if !ok || daemonsRaw == nil {
		return roster, nil
	}
	daemonsMap, ok := daemonsRaw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("daemons section is not a map")
	}
	trustedRaw, ok := daemonsMap["trusted"]
	if !ok || trustedRaw == nil {
		return roster, nil
	}
	items, ok := trustedRaw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("daemons.trusted is not a list")
	}
	for _, item := range items {
		if str, ok := item.(string); ok {
			roster.Trusted = append(roster.Trusted, str)
		}
	}
	return roster, nil
}

// SetRosterInYAML writes the daemons.trusted list to config.yaml, preserving
// every other section and comment via yaml.Node round-tripping.
func SetRosterInYAML(configPath string, roster *RosterConfig) error {
	data, err := os.ReadFile(configPath) // #nosec G304 - config path from caller
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read config.yaml: %w", err)
	}

	var root yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &root); err != nil {
			return fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		root = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode}},
		}
	}

	mapping := root.Content[0]
	if mapping.Kind != yaml.MappingNode {
		root.Content[0] = &yaml.Node{Kind: yaml.MappingNode}
		mapping = root.Content[0]
	}

	daemonsIndex := -1
	for i := 0; i < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == "daemons" {
			daemonsIndex = i
			break
		}
	}

	daemonsNode := buildDaemonsNode(roster)
	if daemonsIndex >= 0 {
		if daemonsNode == nil {
			mapping.Content = append(mapping.Content[:daemonsIndex], mapping.Content[daemonsIndex+2:]...)
		} else {
			mapping.Content[daemonsIndex+1] = daemonsNode
		}
	} else if daemonsNode != nil {
		mapping.Content = append(mapping.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: "daemons"},
			daemonsNode,
		)
	}

	var buf strings.Builder
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&root); err != nil {
		return fmt.Errorf("encode config.yaml: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("close encoder: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(buf.String()), 0600); err != nil {
		return fmt.Errorf("write config.yaml: %w", err)
	}

	if v != nil {
		_ = v.ReadInConfig()
	}
	return nil
}

func buildDaemonsNode(roster *RosterConfig) *yaml.Node {
	if roster == nil || len(roster.Trusted) == 0 {
		return nil
	}
	trustedNode := &yaml.Node{Kind: yaml.SequenceNode}
	for _, name := range roster.Trusted {
		trustedNode.Content = append(trustedNode.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: name, Style: yaml.DoubleQuotedStyle},
		)
	}
	node := &yaml.Node{Kind: yaml.MappingNode}
	node.Content = append(node.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: "trusted"},
		trustedNode,
	)
	return node
}

// AddTrustedDaemon adds name to daemons.trusted in config.yaml.
func AddTrustedDaemon(configPath, name string) error {
	roster, err := GetRosterFromYAML(configPath)
	if err != nil {
		return fmt.Errorf("read roster: %w", err)
	}
	for _, existing := range roster.Trusted {
		if existing == name {
			return fmt.Errorf("daemon already trusted: %s", name)
		}
	}
	roster.Trusted = append(roster.Trusted, name)
	return SetRosterInYAML(configPath, roster)
}

// RemoveTrustedDaemon removes name from daemons.trusted in config.yaml.
func RemoveTrustedDaemon(configPath, name string) error {
	roster, err := GetRosterFromYAML(configPath)
	if err != nil {
		return fmt.Errorf("read roster: %w", err)
	}
	found := false
	remaining := make([]string, 0, len(roster.Trusted))
	for _, existing := range roster.Trusted {
		if existing == name {
			found = true
			continue
		}
		remaining = append(remaining, existing)
	}
	if !found {
		return fmt.Errorf("daemon not in roster: %s", name)
	}
	roster.Trusted = remaining
	return SetRosterInYAML(configPath, roster)
}

// ListTrustedDaemons returns the current daemons.trusted list.
func ListTrustedDaemons(configPath string) ([]string, error) {
	roster, err := GetRosterFromYAML(configPath)
	if err != nil {
		return nil, err
	}
	return roster.Trusted, nil
}

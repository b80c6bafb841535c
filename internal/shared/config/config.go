// Package config loads proxyward's two-tier configuration: an ini file for
// scalar tuning knobs and a JSON file for the harvester's seed source list.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/ini.v1"

	"proxyward/internal/shared/types"
)

// LoadIni loads the behavior configuration file (the "[http]"/"[judge]"/
// "[proxies]"/"[storage]"/"[log]" sections).
func LoadIni(cfg *types.Config, fileName string) error {
	iniFile, err := ini.Load(fileName)
	if err != nil {
		return fmt.Errorf("config: failed to load %s: %w", fileName, err)
	}
	if err := iniFile.MapTo(cfg); err != nil {
		return fmt.Errorf("config: failed to map %s: %w", fileName, err)
	}
	cfg.HTTPConf.UserAgents = splitCSV(iniFile.Section("http").Key("user_agents").String())
	cfg.JudgeConf.URLs = splitCSV(iniFile.Section("judge").Key("urls").String())
	cfg.ApplyDefaults()
	return nil
}

// LoadSources loads the sources.json seed file for the Source Harvester. A
// missing file is treated as an empty source list, not an error.
func LoadSources(fileName string) ([]*types.SourceProfile, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return []*types.SourceProfile{}, nil
		}
		return nil, fmt.Errorf("config: failed to read %s: %w", fileName, err)
	}

	var sources []*types.SourceProfile
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal %s: %w", fileName, err)
	}
	return sources, nil
}

// SaveSources persists the source list to fileName as indented JSON.
func SaveSources(fileName string, sources []*types.SourceProfile) error {
	data, err := json.MarshalIndent(sources, "", "  ")
	if err != nil {
		return fmt.Errorf("config: failed to marshal sources: %w", err)
	}
	return os.WriteFile(fileName, data, 0644)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if v := trim(s[start:i]); v != "" {
				out = append(out, v)
			}
			start = i + 1
		}
	}
	return out
}

func trim(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	return s
}

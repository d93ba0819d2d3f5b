package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CueFile is the YAML cue lexicon. Omitted families keep the built-in phrases.
//
//	conditional: ['si\s+.+?\s+entonces']
//	locator: ['art[ií]culo\s*\d+']
type CueFile struct {
	Conditional  []string `yaml:"conditional"`
	Comparison   []string `yaml:"comparison"`
	Procedural   []string `yaml:"procedural"`
	Aggregation  []string `yaml:"aggregation"`
	Locator      []string `yaml:"locator"`
	AboutLocator []string `yaml:"about_locator"`
	HyDE         []string `yaml:"hyde"`
}

func LoadCueFile(path string) (CueFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return CueFile{}, fmt.Errorf("read cues file: %w", err)
	}
	var file CueFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return CueFile{}, fmt.Errorf("parse cues file %s: %w", path, err)
	}
	return file, nil
}

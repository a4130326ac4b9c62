package config

import (
	"bufio"
	"errors"
	"fmt"
	"gopkg.in/yaml.v2"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// BasePath is the directory of the loaded config file. Relative paths and
// include rules are resolved against it.
var BasePath = "."

var ErrInvalidConfig = errors.New("invalid config")

const includePrefix = "include:"

type RewriterConfig struct {
	Identifier    string
	Input         string
	Output        string
	SkipMalformed bool
	Rule          []string
}

type _RewriterConfig struct {
	Identifier    string   `yaml:"identifier,omitempty"`
	Input         string   `yaml:"input,omitempty"`
	Output        string   `yaml:"output,omitempty"`
	SkipMalformed bool     `yaml:"skipMalformed,omitempty"`
	Rule          []string `yaml:"rule,omitempty"`
}

func ParseConfig(reader io.Reader) (*RewriterConfig, error) {
	_config := _RewriterConfig{}
	err := yaml.NewDecoder(reader).Decode(&_config)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return &RewriterConfig{
		Identifier:    strings.TrimSpace(_config.Identifier),
		Input:         resolvePath(_config.Input),
		Output:        resolvePath(_config.Output),
		SkipMalformed: _config.SkipMalformed,
		Rule:          _config.Rule,
	}, nil
}

// Validate checks the fields every run needs.
func (conf *RewriterConfig) Validate() error {
	if conf.Identifier == "" {
		return fmt.Errorf("%w: identifier is empty", ErrInvalidConfig)
	}
	for _, c := range conf.Identifier {
		if c < '0' || c > '9' {
			return fmt.Errorf("%w: identifier %q is not numeric", ErrInvalidConfig, conf.Identifier)
		}
	}
	if conf.Input == "" {
		return fmt.Errorf("%w: input path is empty", ErrInvalidConfig)
	}
	if conf.Output == "" {
		return fmt.Errorf("%w: output path is empty", ErrInvalidConfig)
	}
	return nil
}

func resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(BasePath, p)
}

// ParseRule expands include:<file> entries into the domains listed in that
// file, one per line. An unreadable rule file is an ErrInvalidConfig.
func ParseRule(rules []string) ([]string, error) {
	domains := make([]string, 0, len(rules))
	for _, rule := range rules {
		rule = strings.TrimSpace(rule)
		if rule == "" || strings.HasPrefix(rule, "#") {
			continue
		}
		if strings.HasPrefix(rule, includePrefix) {
			included, err := readRuleFile(resolvePath(strings.TrimPrefix(rule, includePrefix)))
			if err != nil {
				return nil, fmt.Errorf("%w: rule file: %v", ErrInvalidConfig, err)
			}
			domains = append(domains, included...)
		} else {
			domains = append(domains, strings.ToLower(strings.TrimSuffix(rule, ".")))
		}
	}
	return domains, nil
}

func readRuleFile(location string) ([]string, error) {
	open, err := os.Open(location)
	if err != nil {
		return nil, err
	}
	defer open.Close()
	domains := make([]string, 0)
	scanner := bufio.NewScanner(open)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		domains = append(domains, strings.ToLower(strings.TrimSuffix(line, ".")))
	}
	return domains, scanner.Err()
}

// Package config loads the reporting configuration from a project file and
// environment overrides. All validation happens at load time: silent
// misconfiguration would only surface after an entire test run was wasted.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath  = "runreport.config.yaml"
	DefaultArchiveDir  = ".runreport/archives"
	defaultMaxTotalMB  = 1024
	defaultMaxArchMB   = 256
	defaultMaxArchives = 50
	defaultMaxAnnots   = 10
	DefaultPrimaryLog  = "run.log"
)

// EnvPrefix is the prefix for all environment overrides.
const EnvPrefix = "RUNREPORT_"

type Config struct {
	// ArchiveDir is where failure archives and manifests are written.
	ArchiveDir string `yaml:"archiveDir" json:"archiveDir"`

	// Budgets, in megabytes / counts.
	MaxTotalMB   int `yaml:"maxTotalMB" json:"maxTotalMB"`
	MaxArchiveMB int `yaml:"maxArchiveMB" json:"maxArchiveMB"`
	MaxArchives  int `yaml:"maxArchives" json:"maxArchives"`

	// ArchiveAtEndOfRun defers archiving until the run completes so archive
	// I/O does not contend with in-flight test I/O.
	ArchiveAtEndOfRun bool `yaml:"archiveAtEndOfRun" json:"archiveAtEndOfRun"`

	// Include/Exclude are regular expressions matched against each file's
	// project-relative path with forward slashes.
	Include string `yaml:"include,omitempty" json:"include,omitempty"`
	Exclude string `yaml:"exclude,omitempty" json:"exclude,omitempty"`

	// ProjectRoot anchors the paths the filters see. When empty each file
	// is matched by its path relative to the test's output directory.
	ProjectRoot string `yaml:"projectRoot,omitempty" json:"projectRoot,omitempty"`

	// PrimaryLog is ordered first within its directory so the most useful
	// diagnostic lands early in size-constrained archives.
	PrimaryLog string `yaml:"primaryLog" json:"primaryLog"`

	MaxAnnotations     int  `yaml:"maxAnnotations" json:"maxAnnotations"`
	FailureAnnotations bool `yaml:"failureAnnotations" json:"failureAnnotations"`
	SummaryAnnotation  bool `yaml:"summaryAnnotation" json:"summaryAnnotation"`

	// ConfigPath records where this config was loaded from; attached to the
	// summary annotation for host navigation. Not read from the file itself.
	ConfigPath string `yaml:"-" json:"-"`

	includeRe *regexp.Regexp
	excludeRe *regexp.Regexp
}

func Default() Config {
	return Config{
		ArchiveDir:         DefaultArchiveDir,
		MaxTotalMB:         defaultMaxTotalMB,
		MaxArchiveMB:       defaultMaxArchMB,
		MaxArchives:        defaultMaxArchives,
		ArchiveAtEndOfRun:  true,
		PrimaryLog:         DefaultPrimaryLog,
		MaxAnnotations:     defaultMaxAnnots,
		FailureAnnotations: true,
		SummaryAnnotation:  true,
	}
}

// Load reads path (yaml or json by extension) over the defaults and
// validates the result. A missing file is fine: defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultConfigPath
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := cfg.Validate(); err != nil {
				return Config{}, err
			}
			return cfg, nil
		}
		return Config{}, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("invalid config yaml %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("invalid config json %s: %w", path, err)
		}
	}
	cfg.ConfigPath = path
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv layers RUNREPORT_* overrides on top of the loaded values and
// re-validates. getenv defaults to os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	str := func(key string, dst *string) {
		if v := getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v := getenv(EnvPrefix + key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: expected integer, got %q", EnvPrefix, key, v)
		}
		*dst = n
		return nil
	}
	boolean := func(key string, dst *bool) error {
		v := getenv(EnvPrefix + key)
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: expected bool, got %q", EnvPrefix, key, v)
		}
		*dst = b
		return nil
	}

	str("ARCHIVE_DIR", &c.ArchiveDir)
	str("INCLUDE", &c.Include)
	str("EXCLUDE", &c.Exclude)
	str("PROJECT_ROOT", &c.ProjectRoot)
	str("PRIMARY_LOG", &c.PrimaryLog)
	for _, e := range []error{
		num("MAX_TOTAL_MB", &c.MaxTotalMB),
		num("MAX_ARCHIVE_MB", &c.MaxArchiveMB),
		num("MAX_ARCHIVES", &c.MaxArchives),
		num("MAX_ANNOTATIONS", &c.MaxAnnotations),
		boolean("ARCHIVE_AT_END", &c.ArchiveAtEndOfRun),
		boolean("FAILURE_ANNOTATIONS", &c.FailureAnnotations),
		boolean("SUMMARY_ANNOTATION", &c.SummaryAnnotation),
	} {
		if e != nil {
			return e
		}
	}
	return c.Validate()
}

// Validate fails fast on anything that would otherwise surface mid-run.
// Patterns are compiled once here; the archiver walk is a hot path.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ArchiveDir) == "" {
		return fmt.Errorf("archiveDir must not be empty")
	}
	if c.MaxTotalMB <= 0 || c.MaxArchiveMB <= 0 {
		return fmt.Errorf("maxTotalMB and maxArchiveMB must be positive")
	}
	if c.MaxArchives <= 0 {
		return fmt.Errorf("maxArchives must be positive")
	}
	if c.MaxAnnotations < 0 {
		return fmt.Errorf("maxAnnotations must not be negative")
	}
	if c.PrimaryLog == "" {
		c.PrimaryLog = DefaultPrimaryLog
	}

	c.includeRe, c.excludeRe = nil, nil
	if c.Include != "" {
		re, err := regexp.Compile(c.Include)
		if err != nil {
			return fmt.Errorf("invalid include pattern: %w", err)
		}
		c.includeRe = re
	}
	if c.Exclude != "" {
		re, err := regexp.Compile(c.Exclude)
		if err != nil {
			return fmt.Errorf("invalid exclude pattern: %w", err)
		}
		c.excludeRe = re
	}
	return nil
}

// IncludeRe/ExcludeRe return the patterns compiled by Validate, nil when
// unset.
func (c *Config) IncludeRe() *regexp.Regexp { return c.includeRe }
func (c *Config) ExcludeRe() *regexp.Regexp { return c.excludeRe }

func (c *Config) MaxTotalBytes() int64   { return int64(c.MaxTotalMB) * 1024 * 1024 }
func (c *Config) MaxArchiveBytes() int64 { return int64(c.MaxArchiveMB) * 1024 * 1024 }

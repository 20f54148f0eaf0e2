package cmd

import (
	"fmt"
	"os"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v2"
)

// configuration represents the on-disk configuration of the sanitizer.
type configuration struct {
	// InputDir is the directory containing the extracted snapshot files to
	// sanitize.
	InputDir string `yaml:"input_dir"`

	// OutDir is the root of the archival output tree.
	OutDir string `yaml:"out_dir"`

	// RecentDir is the root of the recent staging tree.
	RecentDir string `yaml:"recent_dir"`

	// SecretsFile is the path to the month-to-secret file.
	SecretsFile string `yaml:"secrets_file"`

	// MaxSnapshotSize is the maximum size of a single snapshot file.
	MaxSnapshotSize byteSize `yaml:"max_snapshot_size"`

	// RetentionMonths is the number of months hashing secrets are kept.
	RetentionMonths uint `yaml:"retention_months"`

	// SanitizeAddresses enables the keyed-hash pseudonyms.  When false,
	// fixed placeholder addresses are emitted instead.
	SanitizeAddresses bool `yaml:"sanitize_ip_addresses"`
}

// readConfig reads the configuration file.
func readConfig(confPath string) (c *configuration, err error) {
	// #nosec G304 -- Trust the path to the configuration file.
	yamlFile, err := os.ReadFile(confPath)
	if err != nil {
		return nil, err
	}

	c = &configuration{}
	err = yaml.Unmarshal(yamlFile, c)
	if err != nil {
		return nil, err
	}

	return c, nil
}

// validate returns an error if the configuration is invalid.
func (c *configuration) validate() (err error) {
	err = errors.Join(
		validate.NotEmpty("input_dir", c.InputDir),
		validate.NotEmpty("out_dir", c.OutDir),
		validate.NotEmpty("recent_dir", c.RecentDir),
		validate.NotEmpty("secrets_file", c.SecretsFile),
		validate.Positive("max_snapshot_size", c.MaxSnapshotSize.ByteSize),
		validate.Positive("retention_months", c.RetentionMonths),
	)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	return nil
}

// byteSize is a wrapper for datasize.ByteSize that can be decoded from YAML
// strings like "10 MB".
type byteSize struct {
	datasize.ByteSize
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for *byteSize.
func (s *byteSize) UnmarshalYAML(unmarshal func(v any) (err error)) (err error) {
	var str string
	err = unmarshal(&str)
	if err != nil {
		return err
	}

	return s.UnmarshalText([]byte(str))
}

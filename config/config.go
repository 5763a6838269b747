package config

import (
	"io/ioutil"
	"os"

	"github.com/min-tian-thomas/deployment/util"

	"github.com/hashicorp/hcl"
	"github.com/imdario/mergo"
)

type Config struct {
	LogLevel    string `hcl:"log_level"`
	Root        string `hcl:"root"`
	OutputDir   string `hcl:"output_dir"`
	BinariesDir string `hcl:"binaries_dir"`
}

func Default() *Config {
	return &Config{
		LogLevel:    "info",
		Root:        ".",
		OutputDir:   "install",
		BinariesDir: "install/binaries",
	}
}

// Parse loads the tool configuration. A missing file is not an error: the
// tool runs from a deployment repository root with pure defaults.
func Parse(filename string) (*Config, error) {
	filename, err := util.ExpandHomeDir(filename)
	if err != nil {
		return nil, err
	}
	content, err := ioutil.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, util.NewError(err, "cannot read configuration file")
	}
	config := &Config{}
	if err := hcl.Unmarshal(content, config); err != nil {
		return nil, util.NewError(err, "invalid configuration format")
	}
	if err := mergo.Merge(config, Default()); err != nil {
		return nil, util.NewError(err, "cannot apply default configuration value")
	}
	return config, nil
}

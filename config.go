package gofprint

import (
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	yml "gopkg.in/yaml.v2"

	"github.com/openfprint/gofprint/ferrors"
)

// Config holds every tunable this library's components read at startup: debounce and poll
// timings, assembly policy defaults, and the on-disk print storage root.
type Config struct {
	// PrintStoreRoot overrides the default $HOME/.fprint/prints location; empty means default.
	PrintStoreRoot string `yaml:"PrintStoreRoot"`

	// DebounceMillis is the imaging sub-state debounce window, in milliseconds.
	DebounceMillis int `yaml:"DebounceMillis"`

	// PollRateHz throttles the finger-detection interrupt poll.
	PollRateHz float64 `yaml:"PollRateHz"`

	// PollBurst is the number of polls permitted back to back before throttling kicks in.
	PollBurst int `yaml:"PollBurst"`

	// BulkTimeoutMillis is the default timeout for bulk transfers.
	BulkTimeoutMillis int `yaml:"BulkTimeoutMillis"`

	// CommandTimeoutMillis is the default timeout for command (control) transfers.
	CommandTimeoutMillis int `yaml:"CommandTimeoutMillis"`

	// AssemblyDropLastN is the default number of trailing stripes discarded before assembly.
	AssemblyDropLastN int `yaml:"AssemblyDropLastN"`

	// AssemblyMinFrames and AssemblyMaxFrames bound stripe accumulation for an assembly pass.
	AssemblyMinFrames int `yaml:"AssemblyMinFrames"`
	AssemblyMaxFrames int `yaml:"AssemblyMaxFrames"`
}

// DefaultConfig returns the library's built-in defaults, used as the base layer LoadConfig starts
// from before any file on disk is overlaid.
func DefaultConfig() Config {
	return Config{
		PrintStoreRoot:       "",
		DebounceMillis:       10,
		PollRateHz:           20,
		PollBurst:            4,
		BulkTimeoutMillis:    4000,
		CommandTimeoutMillis: 10000,
		AssemblyDropLastN:    1,
		AssemblyMinFrames:    3,
		AssemblyMaxFrames:    64,
	}
}

// LoadConfig builds a Config by layering DefaultConfig with whatever path contains, if it exists.
// A missing file is not an error: every driver and component still has sane defaults.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return Config{}, ferrors.Wrap(ferrors.Invalid, err, "loading default configuration")
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !strings.Contains(err.Error(), "no such file") {
			return Config{}, ferrors.Wrap(ferrors.IoError, err, "loading configuration file")
		}
	}
	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return Config{}, ferrors.Wrap(ferrors.Invalid, err, "unmarshaling configuration")
	}
	return c, nil
}

// WriteDefaultConfig writes DefaultConfig to path in YAML form, for a caller bootstrapping a fresh
// config file to edit by hand.
func WriteDefaultConfig(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return ferrors.Wrap(ferrors.IoError, err, "creating configuration file")
	}
	defer f.Close()
	if err := yml.NewEncoder(f).Encode(DefaultConfig()); err != nil {
		return ferrors.Wrap(ferrors.IoError, err, "writing default configuration")
	}
	return nil
}

package main

import (
	"os"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/synthread/nrf-memory/flash"
)

// defaults is a YAML file of flag values. Keys are flag names:
//
//	family: NRF52
//	conf: boards/pca10056.ini
//	serial: "683123456"
//	size: 0x100000
//
// Values are taken as written, so addresses and sizes keep their hex form.
type defaults map[string]yaml.Node

func loadDefaults(path string) (defaults, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, &flash.Error{Kind: flash.KindFile, Op: "read defaults", Err: err}
	}

	d := defaults{}
	if err := yaml.Unmarshal(bs, &d); err != nil {
		return nil, usageError(errors.Wrapf(err, "defaults %s", path))
	}
	return d, nil
}

// apply will set every flag that was not given on the command line from the
// defaults. Keys that name no flag of the command are an error so typos are
// not silently dropped.
func (d defaults) apply(fs *pflag.FlagSet) error {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if k == "defaults" || k == "help" {
			return usageError(errors.Errorf("defaults cannot set %q", k))
		}
		f := fs.Lookup(k)
		if f == nil {
			// flags of other commands may share one defaults file
			if isKnownFlag(k) {
				continue
			}
			return usageError(errors.Errorf("defaults: unknown key %q", k))
		}
		if f.Changed {
			continue
		}
		node := d[k]
		if node.Kind != yaml.ScalarNode {
			return usageError(errors.Errorf("defaults: %s must be a scalar", k))
		}
		if err := fs.Set(k, node.Value); err != nil {
			return usageError(errors.Wrapf(err, "defaults: %s", k))
		}
	}
	return nil
}

// isKnownFlag reports whether any command defines the flag
func isKnownFlag(name string) bool {
	for _, cmd := range commandNames {
		var p rawParams
		if newFlagSet(cmd, &p, nil).Lookup(name) != nil {
			return true
		}
	}
	return false
}

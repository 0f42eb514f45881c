// Package hostvars loads per-host environment variable overrides from a
// YAML file, passed to a command's subcommand with --hosts-variables.
package hostvars

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Variables maps a host's fqdn (the FQDN field of the host in the discovered
// topology) to a set of environment variable overrides applied
// only when a command runs on that host.
type Variables map[string]map[string]string

// Load reads and parses a hosts-variables YAML file. An empty path returns
// an empty Variables value rather than an error, since the flag is
// optional.
//
// File shape:
//
//	node1.example.com:
//	  SNAPSHOT_NAME: weekly
//	node2.example.com:
//	  SNAPSHOT_NAME: hourly
func Load(path string) (Variables, error) {
	if path == "" {
		return Variables{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hosts-variables file: %w", err)
	}

	var vars Variables
	if err := yaml.Unmarshal(data, &vars); err != nil {
		return nil, fmt.Errorf("parse hosts-variables file: %w", err)
	}
	if vars == nil {
		vars = Variables{}
	}
	return vars, nil
}

// For returns the variables for a given host fqdn, or an empty, non-nil
// map if the host has no overrides.
func (v Variables) For(fqdn string) map[string]string {
	if hostVars, ok := v[fqdn]; ok {
		return hostVars
	}
	return map[string]string{}
}

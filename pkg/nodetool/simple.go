package nodetool

import (
	"regexp"

	"github.com/cstarhq/cstar/pkg/cstarerr"
)

var (
	clusterNameRe    = regexp.MustCompile(`(?m)^\s*Name:\s*(.*)$`)
	schemaVersionRe  = regexp.MustCompile(`(?m)([0-9A-Fa-f]{8}(?:-[0-9A-Fa-f]{4}){3}-[0-9A-Fa-f]{12}): `)
	keyspaceNameRe   = regexp.MustCompile(`(?m)^\s*Keyspace\s*:\s*(.*)$`)
)

// ParseDescribeCluster extracts the cluster name and schema version UUID
// from 'nodetool describecluster' output.
func ParseDescribeCluster(text string) (name, schemaVersion string, err error) {
	nameMatch := clusterNameRe.FindStringSubmatch(text)
	if nameMatch == nil {
		return "", "", &cstarerr.ParseException{Line: text, Offset: 0, Reason: "could not find cluster name"}
	}
	versionMatch := schemaVersionRe.FindStringSubmatch(text)
	if versionMatch == nil {
		return "", "", &cstarerr.ParseException{Line: text, Offset: 0, Reason: "could not find schema version"}
	}
	return nameMatch[1], versionMatch[1], nil
}

// ExtractKeyspacesFromCFStats extracts the keyspace names from
// 'nodetool cfstats' output, in the order they appear.
func ExtractKeyspacesFromCFStats(text string) []string {
	matches := keyspaceNameRe.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// Package command locates and parses cstar command definitions: shell
// scripts with a "# C* key: value" header describing how the scheduler
// should run them.
package command

import (
	"bufio"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/cstarhq/cstar/pkg/cstarerr"
	"github.com/cstarhq/cstar/pkg/strategy"
)

//go:embed resources/commands
var builtinCommands embed.FS

var (
	propertyRe = regexp.MustCompile(`^#\s*C\*\s*([^\s:]+)\s*:\s*(.*?)\s*$`)
	envNameRe  = regexp.MustCompile(`[^a-zA-Z0-9_]`)
)

// Argument describes a user-suppliable parameter a command declares via a
// "# C* argument:" header line.
type Argument struct {
	Name        string `json:"name"`
	Option      string `json:"option"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Default     string `json:"default"`
}

// Command is a loaded, parsed command definition.
type Command struct {
	Name            string
	File            string
	Script          string
	Strategy        string
	ClusterParallel *bool
	DCParallel      *bool
	Description     string
	Arguments       []Argument
}

// Load finds a command by name on the search path and parses its header.
func Load(name string) (Command, error) {
	file, content, err := search(name)
	if err != nil {
		return Command{}, err
	}
	return parse(name, file, content)
}

func parse(name, filename, definition string) (Command, error) {
	cmd := Command{Name: name, File: filename, Script: definition, Strategy: "topology"}

	scanner := bufio.NewScanner(strings.NewReader(definition))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line[0] != '#' {
			break
		}

		match := propertyRe.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		key, value := match[1], match[2]

		switch key {
		case "cluster-parallel":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return Command{}, fmt.Errorf("parse cluster-parallel in %s: %w", filename, err)
			}
			cmd.ClusterParallel = &b
		case "dc-parallel":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return Command{}, fmt.Errorf("parse dc-parallel in %s: %w", filename, err)
			}
			cmd.DCParallel = &b
		case "description":
			cmd.Description = value
		case "strategy":
			cmd.Strategy = value
		case "argument":
			arg, err := parseArgument(value)
			if err != nil {
				return Command{}, err
			}
			cmd.Arguments = append(cmd.Arguments, arg)
		}
		// unknown properties are ignored, matching upstream's warn-and-continue
	}

	return cmd, scanner.Err()
}

func parseArgument(jsonValue string) (Argument, error) {
	var raw struct {
		Name        string `json:"name"`
		Option      string `json:"option"`
		Description string `json:"description"`
		Required    bool   `json:"required"`
		Default     string `json:"default"`
	}
	if err := json.Unmarshal([]byte(jsonValue), &raw); err != nil {
		return Argument{}, fmt.Errorf("parse argument header: %w", err)
	}
	if envNameRe.MatchString(raw.Name) {
		return Argument{}, &cstarerr.BadEnvironmentVariableError{Name: raw.Name}
	}
	return Argument(raw), nil
}

// ParseStrategy resolves the effective strategy for a run, preferring an
// explicit CLI override, falling back to the command's own declared
// strategy, and finally "topology".
func ParseStrategy(cliOverride, commandStrategy string) (strategy.Strategy, error) {
	value := commandStrategy
	if cliOverride != "" {
		value = cliOverride
	}
	if value == "" {
		value = "topology"
	}
	return strategy.Parse(value)
}

// SearchPaths returns the directories searched for commands, in priority
// order: the user's own commands, then the system-wide directory. The
// built-ins bundled with the binary are not in this list; search falls
// back to them after these directories.
func SearchPaths() []string {
	home, err := os.UserHomeDir()
	var userDir string
	if err == nil {
		userDir = filepath.Join(home, ".cstar", "commands")
	}
	return []string{userDir, "/etc/cstar/commands"}
}

// search resolves a command name to a file path and its contents, checking
// the search path directories first, then the embedded built-ins, and
// finally treating name as a literal file path. A name containing "/" is
// only tried as a literal file path.
func search(name string) (string, string, error) {
	if !strings.Contains(name, "/") {
		for _, dir := range SearchPaths() {
			if dir == "" {
				continue
			}
			if path, ok := findInDir(os.ReadDir, dir, name); ok {
				content, err := os.ReadFile(path)
				if err != nil {
					return "", "", err
				}
				return path, string(content), nil
			}
		}
		if content, ok := findInFS(builtinCommands, "resources/commands", name); ok {
			return "resources/commands/" + name, content, nil
		}
	}

	info, err := os.Stat(name)
	if err == nil && info.Mode().IsRegular() {
		content, err := os.ReadFile(name)
		if err != nil {
			return "", "", err
		}
		return name, string(content), nil
	}

	return "", "", fmt.Errorf("failed to find definition for command %s", name)
}

func findInDir(readDir func(string) ([]os.DirEntry, error), dir, name string) (string, bool) {
	entries, err := readDir(dir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() && entry.Type() != 0 {
			continue
		}
		if matchesName(entry.Name(), name) {
			return filepath.Join(dir, entry.Name()), true
		}
	}
	return "", false
}

func findInFS(fsys fs.FS, root, name string) (string, bool) {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if matchesName(entry.Name(), name) {
			content, err := fs.ReadFile(fsys, root+"/"+entry.Name())
			if err != nil {
				return "", false
			}
			return string(content), true
		}
	}
	return "", false
}

func matchesName(filename, name string) bool {
	if strings.HasSuffix(filename, "~") || strings.HasPrefix(filename, "#") {
		return false
	}
	prefix := filename
	if idx := strings.Index(filename, "."); idx >= 0 {
		prefix = filename[:idx]
	}
	return prefix == name
}

// List returns the names of all commands visible on the search path,
// including the built-ins.
func List() []string {
	seen := map[string]bool{}
	var names []string

	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	for _, dir := range SearchPaths() {
		if dir == "" {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if strings.HasSuffix(entry.Name(), "~") || strings.HasPrefix(entry.Name(), "#") {
				continue
			}
			prefix := entry.Name()
			if idx := strings.Index(prefix, "."); idx >= 0 {
				prefix = prefix[:idx]
			}
			add(prefix)
		}
	}

	entries, err := fs.ReadDir(builtinCommands, "resources/commands")
	if err == nil {
		for _, entry := range entries {
			prefix := entry.Name()
			if idx := strings.Index(prefix, "."); idx >= 0 {
				prefix = prefix[:idx]
			}
			add(prefix)
		}
	}

	return names
}

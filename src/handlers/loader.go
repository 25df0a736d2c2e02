package handlers

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"personal/botkit/src/issue"
)

// ScriptExt is the extension of handler files picked up by LoadProject.
const ScriptExt = ".js"

// EventDirs and CommandDirs are searched in order; the first one that
// exists is used.
var (
	EventDirs   = []string{"events", filepath.Join("src", "events")}
	CommandDirs = []string{"commands", filepath.Join("src", "commands")}
)

// LoadProject compiles every handler under dir. Problems with single files
// are reported and the file is skipped; the returned error is only set when
// the project directory itself cannot be read.
func LoadProject(dir string, reporter issue.Reporter) (*Set, error) {
	if reporter == nil {
		reporter = issue.Nop
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("load project: %s is not a directory", dir)
	}

	set := NewSet()
	eventsDir := firstDir(dir, EventDirs)
	commandsDir := firstDir(dir, CommandDirs)
	if eventsDir == "" && commandsDir == "" {
		reporter.Report(issue.Issue{
			Severity:    issue.Warning,
			Stage:       issue.StageStructure,
			Title:       "No handlers found",
			Description: "expected an events or commands directory",
			Path:        dir,
		})
		return set, nil
	}

	if eventsDir != "" {
		files, err := scriptFiles(eventsDir)
		if err != nil {
			return nil, fmt.Errorf("load events: %w", err)
		}
		loadInto(files, eventsDir, EventName, "events", set.On, reporter)
	}
	if commandsDir != "" {
		files, err := scriptFiles(commandsDir)
		if err != nil {
			return nil, fmt.Errorf("load commands: %w", err)
		}
		loadInto(files, commandsDir, CommandName, "commands", set.Command, reporter)
	}
	return set, nil
}

func loadInto(files []string, root string, nameOf func(rel string) string, kind string, register func(string, Handler), reporter issue.Reporter) {
	seen := make(map[string]string)
	for _, file := range files {
		rel, err := filepath.Rel(root, file)
		if err != nil {
			continue
		}
		name := nameOf(rel)
		if name == "" {
			continue
		}
		if prev, ok := seen[name]; ok {
			reporter.Report(issue.Issue{
				Severity:    issue.Fatal,
				Stage:       issue.StageStructure,
				Title:       fmt.Sprintf("Conflicting %s for %s", kind, name),
				Description: fmt.Sprintf("%s and %s", prev, file),
				Path:        file,
			})
			continue
		}
		seen[name] = file

		src, err := os.ReadFile(file)
		if err != nil {
			reporter.Report(issue.Issue{
				Severity:    issue.Error,
				Stage:       issue.StageStructure,
				Title:       "Could not read handler",
				Description: err.Error(),
				Path:        file,
			})
			continue
		}
		script, err := CompileScript(name, file, src)
		if err != nil {
			reporter.Report(issue.Issue{
				Severity:    issue.Error,
				Stage:       issue.StageRuntime,
				Title:       "Could not compile handler",
				Description: err.Error(),
				Path:        file,
			})
			continue
		}
		register(name, script)
	}
}

// EventName derives a dispatch event name from a path relative to the
// events directory. Directories join with "_", a file called "event" names
// its directory, and "(group)" directories are ignored:
//
//	message_create.js           -> MESSAGE_CREATE
//	guild/member/add.js         -> GUILD_MEMBER_ADD
//	interaction_create/event.js -> INTERACTION_CREATE
//	(moderation)/guild_ban_add.js -> GUILD_BAN_ADD
func EventName(rel string) string {
	parts := nameParts(rel)
	if len(parts) > 1 && strings.EqualFold(parts[len(parts)-1], "event") {
		parts = parts[:len(parts)-1]
	}
	if len(parts) == 1 && strings.EqualFold(parts[0], "event") {
		return ""
	}
	return strings.ToUpper(strings.Join(parts, "_"))
}

// CommandName derives a command name from a path relative to the commands
// directory. Command names keep their case.
func CommandName(rel string) string {
	parts := nameParts(rel)
	return strings.Join(parts, "_")
}

func nameParts(rel string) []string {
	rel = filepath.ToSlash(strings.TrimSuffix(rel, filepath.Ext(rel)))
	var parts []string
	for _, p := range strings.Split(rel, "/") {
		if p == "" || isGroup(p) {
			continue
		}
		parts = append(parts, p)
	}
	return parts
}

func isGroup(segment string) bool {
	return len(segment) > 2 && strings.HasPrefix(segment, "(") && strings.HasSuffix(segment, ")")
}

func firstDir(root string, candidates []string) string {
	for _, c := range candidates {
		p := filepath.Join(root, c)
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			return p
		}
	}
	return ""
}

// scriptFiles lists handler files below dir in lexical order, so conflict
// reports are stable between runs.
func scriptFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) == ScriptExt {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

package dotfiles

import (
	"fmt"
	"sort"
	"strings"
)

// Alias is a named shell alias.
type Alias struct {
	Name    string
	Command string
}

// DefaultAliases is the alias set managed in .bashrc. Config entries merge
// over it; same name wins.
var DefaultAliases = []Alias{
	{Name: "ll", Command: "ls -lah"},
	{Name: "la", Command: "ls -A"},
	{Name: "l", Command: "ls -CF"},
	{Name: "df", Command: "df -h"},
	{Name: "du", Command: "du -h"},
	{Name: "free", Command: "free -h"},
	{Name: "ports", Command: "netstat -tulanp"},
	{Name: "update", Command: "apt-get update && apt-get dist-upgrade -y"},
}

// DefaultVimSettings is the directive set managed in .vimrc.
var DefaultVimSettings = []string{
	"syntax on",
	"set number",
	"set paste",
	"set tabstop=4",
	"set shiftwidth=4",
	"set expandtab",
	"set hlsearch",
	"set ignorecase",
}

// MergeAliases overlays config aliases onto the defaults. Overridden names
// keep their default position; new names follow sorted.
func MergeAliases(overrides map[string]string) []Alias {
	merged := make([]Alias, len(DefaultAliases))
	copy(merged, DefaultAliases)

	known := make(map[string]int, len(merged))
	for i, a := range merged {
		known[a.Name] = i
	}

	var extra []string
	for name := range overrides {
		if idx, ok := known[name]; ok {
			merged[idx].Command = overrides[name]
			continue
		}
		extra = append(extra, name)
	}
	sort.Strings(extra)
	for _, name := range extra {
		merged = append(merged, Alias{Name: name, Command: overrides[name]})
	}
	return merged
}

// MergeVimSettings appends config directives not already managed.
func MergeVimSettings(overrides []string) []string {
	merged := make([]string, len(DefaultVimSettings))
	copy(merged, DefaultVimSettings)

	known := make(map[string]bool, len(merged))
	for _, s := range merged {
		known[vimKey(s)] = true
	}
	for _, s := range overrides {
		key := vimKey(s)
		if known[key] {
			for i, existing := range merged {
				if vimKey(existing) == key {
					merged[i] = s
					break
				}
			}
			continue
		}
		known[key] = true
		merged = append(merged, s)
	}
	return merged
}

// AliasEntry renders an alias as a managed .bashrc line.
func AliasEntry(a Alias) Entry {
	return Entry{
		Match: fmt.Sprintf("alias %s=", a.Name),
		Line:  fmt.Sprintf("alias %s='%s'", a.Name, a.Command),
	}
}

// VimEntry renders a directive as a managed .vimrc line.
func VimEntry(setting string) Entry {
	return Entry{Match: vimKey(setting), Line: setting}
}

// vimKey strips the value part of a directive so that "set tabstop=4" and
// "set tabstop=8" are recognized as the same setting.
func vimKey(setting string) string {
	setting = strings.TrimSpace(setting)
	if idx := strings.Index(setting, "="); idx >= 0 {
		return setting[:idx+1]
	}
	// Directives like "syntax on" match on the keyword so a stale
	// "syntax off" is replaced.
	if strings.HasPrefix(setting, "syntax ") {
		return "syntax"
	}
	return setting
}

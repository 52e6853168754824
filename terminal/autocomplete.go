package terminal

import (
	"context"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/c-bata/go-prompt"

	"pleskfm/panel"
)

// Lister is the part of panel.Session the completer needs.
type Lister interface {
	List(ctx context.Context, dir string) (*panel.Listing, error)
}

// Command describes one shell command for completion and help.
type Command struct {
	Name        string
	Description string
	Args        ArgKind
}

// ArgKind selects what the arguments of a command complete to.
type ArgKind int

const (
	ArgNone ArgKind = iota
	ArgRemote
	ArgRemoteDir
	ArgLocal
)

// CommandCompleter handles command and argument completion
type CommandCompleter struct {
	commands     []Command
	lister       Lister
	cacheTimeout time.Duration

	mu     sync.Mutex
	remote map[string]remoteDir // by directory
}

type remoteDir struct {
	files, dirs []string
	fetched     time.Time
}

// NewCommandCompleter creates a new command completer
func NewCommandCompleter(commands []Command, lister Lister) *CommandCompleter {
	return &CommandCompleter{
		commands:     commands,
		lister:       lister,
		cacheTimeout: 15 * time.Second,
		remote:       map[string]remoteDir{},
	}
}

// UpdateRemote records the entries of a listing, so that a completion in
// a directory that was just listed needs no request.
func (c *CommandCompleter) UpdateRemote(l *panel.Listing) {
	var files, dirs []string
	for _, e := range l.Entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		if e.IsDirectory {
			dirs = append(dirs, e.Name)
		} else {
			files = append(files, e.Name)
		}
	}
	c.mu.Lock()
	c.remote[panel.CleanDir(l.Dir)] = remoteDir{files: files, dirs: dirs, fetched: time.Now()}
	c.mu.Unlock()
}

// ClearCache forgets every cached listing, e.g. after a mutating command.
func (c *CommandCompleter) ClearCache() {
	c.mu.Lock()
	c.remote = map[string]remoteDir{}
	c.mu.Unlock()
}

// Completer returns suggestions for the current input
func (c *CommandCompleter) Completer(d prompt.Document) []prompt.Suggest {
	text := d.TextBeforeCursor()
	words := strings.Fields(text)

	// If we're at the start of a new command
	if len(words) == 0 || (len(words) == 1 && !strings.HasSuffix(text, " ")) {
		return c.suggestCommands(d.GetWordBeforeCursor())
	}

	return c.suggestArguments(words[0], d.GetWordBeforeCursor())
}

// suggestCommands returns suggestions for commands
func (c *CommandCompleter) suggestCommands(prefix string) []prompt.Suggest {
	suggestions := make([]prompt.Suggest, 0, len(c.commands))
	for _, cmd := range c.commands {
		suggestions = append(suggestions, prompt.Suggest{Text: cmd.Name, Description: cmd.Description})
	}
	return prompt.FilterHasPrefix(suggestions, prefix, true)
}

// suggestArguments returns suggestions for command arguments
func (c *CommandCompleter) suggestArguments(name, word string) []prompt.Suggest {
	for _, cmd := range c.commands {
		if cmd.Name != name {
			continue
		}
		switch cmd.Args {
		case ArgRemote:
			return c.suggestRemote(word, true)
		case ArgRemoteDir:
			return c.suggestRemote(word, false)
		case ArgLocal:
			return suggestLocalFiles(word)
		}
	}
	return nil
}

// suggestRemote completes word against the remote directory it names.
func (c *CommandCompleter) suggestRemote(word string, withFiles bool) []prompt.Suggest {
	dir, base := "/", word
	if i := strings.LastIndex(word, "/"); i >= 0 {
		dir, base = panel.CleanDir(word[:i]), word[i+1:]
	}
	prefix := word[:len(word)-len(base)]

	files, dirs := c.remoteEntries(dir)
	var suggestions []prompt.Suggest
	for _, d := range dirs {
		if matches(d, base) {
			suggestions = append(suggestions, prompt.Suggest{Text: prefix + d + "/", Description: "Remote directory"})
		}
	}
	if withFiles {
		for _, f := range files {
			if matches(f, base) {
				suggestions = append(suggestions, prompt.Suggest{Text: prefix + f, Description: "Remote file"})
			}
		}
	}
	return suggestions
}

func (c *CommandCompleter) remoteEntries(dir string) (files, dirs []string) {
	c.mu.Lock()
	cached, ok := c.remote[dir]
	c.mu.Unlock()
	if ok && time.Since(cached.fetched) < c.cacheTimeout {
		return cached.files, cached.dirs
	}
	if c.lister == nil {
		return cached.files, cached.dirs
	}

	l, err := c.lister.List(context.Background(), dir)
	if err != nil {
		return cached.files, cached.dirs // Silent failure, keep using old cache
	}
	c.UpdateRemote(l)

	c.mu.Lock()
	defer c.mu.Unlock()
	fresh := c.remote[panel.CleanDir(l.Dir)]
	return fresh.files, fresh.dirs
}

// suggestLocalFiles returns local file suggestions for put
func suggestLocalFiles(word string) []prompt.Suggest {
	dir, base := ".", word
	if i := strings.LastIndex(word, "/"); i >= 0 {
		dir, base = word[:i+1], word[i+1:]
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	prefix := word[:len(word)-len(base)]

	var suggestions []prompt.Suggest
	for _, entry := range entries {
		if !matches(entry.Name(), base) {
			continue
		}
		if entry.IsDir() {
			suggestions = append(suggestions, prompt.Suggest{Text: prefix + entry.Name() + "/", Description: "Local directory"})
			continue
		}
		suggestions = append(suggestions, prompt.Suggest{Text: path.Clean(prefix + entry.Name()), Description: "Local file"})
	}
	return suggestions
}

// matches hides dot files unless the prefix asks for them.
func matches(name, prefix string) bool {
	if strings.HasPrefix(name, ".") && !strings.HasPrefix(prefix, ".") {
		return false
	}
	return strings.HasPrefix(strings.ToLower(name), strings.ToLower(prefix))
}

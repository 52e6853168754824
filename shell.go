package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/mattn/go-shellwords"

	"pleskfm/terminal"
)

// readOnly commands leave the remote tree untouched, so the completion
// cache survives them.
var readOnly = map[string]bool{"ls": true, "cat": true, "get": true, "du": true, "help": true}

func cmdShell(a *app, args []string) error {
	if _, err := a.parseArgs(newFlags("shell"), args, 0, 0); err != nil {
		return err
	}
	if a.shell {
		return usageErrorf("shell: already running")
	}
	a.shell = true
	defer func() { a.shell = false }()

	if isTerminal(a.stdin) && isTerminal(a.stdout) {
		a.interactive()
		return nil
	}
	return a.script()
}

func (a *app) interactive() {
	var cmds []terminal.Command
	for _, c := range commands {
		if c.name != "shell" {
			cmds = append(cmds, terminal.Command{Name: c.name, Description: c.summary, Args: c.args})
		}
	}
	cmds = append(cmds, terminal.Command{Name: "exit", Description: "leave the shell"})
	completer := terminal.NewCommandCompleter(cmds, a.session)
	a.onListing = completer.UpdateRemote
	defer func() { a.onListing = nil }()

	a.console.Infof("Connected to %s. Type 'help' for commands, 'exit' to leave.", a.site.BaseURL)

	name := a.site.Name
	if name == "" {
		name = "pleskfm"
	}
	p := prompt.New(
		func(line string) {
			if isExit(line) {
				return
			}
			if err := a.execLine(line); err != nil {
				a.report(err)
			}
			if args, _ := splitArgs(line); len(args) > 0 && !readOnly[args[0]] {
				completer.ClearCache()
			}
		},
		completer.Completer,
		prompt.OptionTitle("pleskfm"),
		prompt.OptionLivePrefix(func() (string, bool) {
			return "[" + name + "]> ", true
		}),
		prompt.OptionPrefixTextColor(prompt.Green),
		prompt.OptionPreviewSuggestionTextColor(prompt.Blue),
		prompt.OptionSelectedSuggestionBGColor(prompt.LightGray),
		prompt.OptionSuggestionBGColor(prompt.DarkGray),
		prompt.OptionCompletionWordSeparator(" "),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			return breakline && isExit(in)
		}),
	)
	p.Run()
}

// script runs one command per input line. Blank lines and lines starting
// with '#' are skipped; a failing command does not stop the script.
func (a *app) script() error {
	sc := bufio.NewScanner(a.stdin)
	failed, total := 0, 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if isExit(line) {
			break
		}
		total++
		if err := a.execLine(line); err != nil {
			a.report(err)
			failed++
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read commands: %w", err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d commands failed", failed, total)
	}
	return nil
}

func isExit(line string) bool {
	line = strings.TrimSpace(line)
	return line == "exit" || line == "quit"
}

func (a *app) execLine(line string) error {
	args, err := splitArgs(line)
	if err != nil {
		return usageErrorf("%v", err)
	}
	if len(args) == 0 {
		return nil
	}
	c, ok := lookupCommand(args[0])
	if !ok {
		return usageErrorf("unknown command %q", args[0])
	}
	a.logger.Debug("shell", "command", c.name, "args", args[1:])
	return c.run(a, args[1:])
}

// splitArgs splits a command line the way a POSIX shell splits words.
// Variables and backticks are left alone; operators such as ';' or '|'
// are rejected rather than silently ending the line.
func splitArgs(line string) ([]string, error) {
	p := shellwords.NewParser()
	args, err := p.Parse(line)
	if err != nil {
		return nil, err
	}
	if p.Position >= 0 {
		return nil, fmt.Errorf("unsupported shell operator %q", line[p.Position:p.Position+1])
	}
	return args, nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"pleskfm/panel"
	"pleskfm/perfmetrics"
	"pleskfm/terminal"
	"pleskfm/transfer"
)

type command struct {
	name    string
	summary string
	usage   string
	args    terminal.ArgKind

	needsSession bool
	run          func(a *app, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{name: "ls", summary: "list files", usage: "ls [-r] [-c] [dir ...]", args: terminal.ArgRemoteDir, needsSession: true, run: cmdList},
		{name: "cat", summary: "print remote file contents to stdout", usage: "cat <file>", args: terminal.ArgRemote, needsSession: true, run: cmdCat},
		{name: "tee", summary: "save stdin to a remote file", usage: "tee <file>", args: terminal.ArgRemote, needsSession: true, run: cmdTee},
		{name: "get", summary: "copy a remote file to the local disk", usage: "get <file> [local path or dir]", args: terminal.ArgRemote, needsSession: true, run: cmdGet},
		{name: "put", summary: "upload a local file into a remote directory", usage: "put <local file> [remote dir]", args: terminal.ArgLocal, needsSession: true, run: cmdPut},
		{name: "edit", summary: "replace the contents of a remote file", usage: "edit <file> <contents|->", args: terminal.ArgRemote, needsSession: true, run: cmdEdit},
		{name: "zip", summary: "archive files", usage: "zip [-C dir] <zipname> <file ...>", args: terminal.ArgRemote, needsSession: true, run: cmdZip},
		{name: "unzip", summary: "unpack an archive next to it", usage: "unzip <zipfile>", args: terminal.ArgRemote, needsSession: true, run: cmdUnzip},
		{name: "mkdir", summary: "create a directory", usage: "mkdir <dir>", args: terminal.ArgRemoteDir, needsSession: true, run: cmdMkdir},
		{name: "rmdir", summary: "delete a directory and everything in it", usage: "rmdir <dir>", args: terminal.ArgRemoteDir, needsSession: true, run: cmdRmdir},
		{name: "rm", summary: "delete files", usage: "rm [-C dir] <file ...>", args: terminal.ArgRemote, needsSession: true, run: cmdRemove},
		{name: "empty", summary: "create an empty file", usage: "empty <file>", args: terminal.ArgRemote, needsSession: true, run: cmdEmpty},
		{name: "rename", summary: "rename a file in place", usage: "rename <file> <new name>", args: terminal.ArgRemote, needsSession: true, run: cmdRename},
		{name: "mv", summary: "move files; the destination is an absolute directory", usage: "mv [-C dir] <file ...> <dest dir>", args: terminal.ArgRemote, needsSession: true, run: cmdMove},
		{name: "cp", summary: "copy files; the destination is an absolute directory", usage: "cp [-C dir] <file ...> <dest dir>", args: terminal.ArgRemote, needsSession: true, run: cmdCopy},
		{name: "du", summary: "calculate the size of files", usage: "du [-C dir] <file ...>", args: terminal.ArgRemote, needsSession: true, run: cmdSize},
		{name: "shell", summary: "run commands interactively over one login", usage: "shell", needsSession: true, run: cmdShell},
		{name: "help", summary: "verbose usage", usage: "help [command]", run: cmdHelp},
	}
}

func lookupCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// parseArgs parses the flags of one command and checks the number of
// remaining arguments; max < 0 means unbounded.
func (a *app) parseArgs(fs *flag.FlagSet, args []string, min, max int) ([]string, error) {
	c, _ := lookupCommand(fs.Name())
	fs.SetOutput(a.stderr)
	fs.Usage = func() {
		fmt.Fprintf(a.stderr, "usage: %s\n", c.usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, usageErrorf("%s: %v", fs.Name(), err)
	}
	rest := fs.Args()
	if len(rest) < min || (max >= 0 && len(rest) > max) {
		return nil, usageErrorf("usage: %s", c.usage)
	}
	return rest, nil
}

func newFlags(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

// selections resolves path arguments into per-directory selections. With
// dir set every argument is a name inside dir.
func selections(dir string, paths []string) []panel.Selection {
	if dir != "" {
		return []panel.Selection{{Dir: panel.CleanDir(dir), Names: paths}}
	}
	return panel.GroupByDir(paths)
}

func cmdList(a *app, args []string) error {
	fs := newFlags("ls")
	recurse := fs.Bool("r", false, "recursively list directories")
	cont := fs.Bool("c", false, "continue after an error")
	dirs, err := a.parseArgs(fs, args, 0, -1)
	if err != nil {
		return err
	}
	if len(dirs) == 0 {
		dirs = []string{"/"}
	}

	var tf *terminal.TableFormatter
	if a.stdoutTTY {
		tf = terminal.NewTableFormatter(a.stdout)
	}
	show := func(dir string, l *panel.Listing) error {
		if a.onListing != nil {
			a.onListing(l)
		}
		fmt.Fprintf(a.stdout, "%s:\n", dir)
		if tf != nil {
			if err := tf.FormatListing(l); err != nil {
				return err
			}
		} else {
			for _, e := range l.Entries {
				fmt.Fprintln(a.stdout, e.Format())
			}
		}
		fmt.Fprintln(a.stdout)
		return nil
	}

	var errs *multierror.Error
	for _, dir := range dirs {
		err := a.session.Walk(a.ctx, dir, panel.WalkOptions{Recursive: *recurse, ContinueOnError: *cont}, show)
		if err == nil {
			continue
		}
		if !*cont {
			return err
		}
		errs = multierror.Append(errs, err)
	}
	if errs != nil {
		for _, err := range errs.Errors {
			a.console.Errorf("%v", err)
		}
	}
	return nil
}

func cmdCat(a *app, args []string) error {
	rest, err := a.parseArgs(newFlags("cat"), args, 1, 1)
	if err != nil {
		return err
	}
	return a.download(rest[0], a.stdout)
}

func cmdTee(a *app, args []string) error {
	rest, err := a.parseArgs(newFlags("tee"), args, 1, 1)
	if err != nil {
		return err
	}
	if a.shell {
		return usageErrorf("tee: stdin is not available in the shell")
	}
	return a.upload(a.stdin, rest[0])
}

func cmdGet(a *app, args []string) error {
	rest, err := a.parseArgs(newFlags("get"), args, 1, 2)
	if err != nil {
		return err
	}
	remote, dest := rest[0], "."
	if len(rest) == 2 {
		dest = rest[1]
	}
	if dest == "-" {
		return a.download(remote, a.stdout)
	}
	_, name := panel.SplitPath(remote)
	if name == "" {
		return usageErrorf("get: %q names a directory", remote)
	}
	if fi, err := os.Stat(dest); err == nil && fi.IsDir() {
		dest = filepath.Join(dest, name)
	}
	return a.downloadFile(remote, dest)
}

// downloadFile writes remote to a temporary file next to dest and renames
// it into place once the transfer is complete.
func (a *app) downloadFile(remote, dest string) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".part-*")
	if err != nil {
		return fmt.Errorf("create local file: %w", err)
	}
	err = a.download(remote, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("write %s: %w", dest, cerr)
	}
	if err == nil {
		err = os.Rename(tmp.Name(), dest)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

func cmdPut(a *app, args []string) error {
	rest, err := a.parseArgs(newFlags("put"), args, 1, 2)
	if err != nil {
		return err
	}
	dir := "/"
	if len(rest) == 2 {
		dir = rest[1]
	}
	f, err := os.Open(rest[0])
	if err != nil {
		return err
	}
	defer f.Close()
	return a.upload(f, path.Join(panel.CleanDir(dir), filepath.Base(rest[0])))
}

func (a *app) download(remote string, w io.Writer) error {
	finish := a.startBar("get " + path.Base(remote))
	start := time.Now()
	n, err := a.session.Download(a.ctx, remote, w)
	finish()
	a.recordTransfer(perfmetrics.Download, remote, n, time.Since(start), err)
	return err
}

func (a *app) upload(r io.Reader, remote string) error {
	finish := a.startBar("put " + path.Base(remote))
	start := time.Now()
	n, err := a.session.Upload(a.ctx, r, remote)
	finish()
	a.recordTransfer(perfmetrics.Upload, remote, n, time.Since(start), err)
	return err
}

func (a *app) startBar(label string) func() {
	if !a.stderrTTY {
		return func() {}
	}
	a.bar = transfer.NewBar(a.stderr, label)
	return func() {
		a.bar.Finish()
		a.bar = nil
	}
}

func (a *app) recordTransfer(dir perfmetrics.Direction, remote string, n int64, elapsed time.Duration, err error) {
	a.logger.Debug("transfer", "direction", dir, "path", remote, "bytes", n,
		"MBps", transfer.Stats{Bytes: n, Elapsed: elapsed}.MBps(), "error", err)
	if a.metrics == nil {
		return
	}
	rec := perfmetrics.Record{
		Time:       time.Now(),
		Site:       a.site.Name,
		Direction:  dir,
		RemotePath: remote,
		Bytes:      n,
		Elapsed:    elapsed,
		Err:        err,
	}
	if err := a.metrics.Log(rec); err != nil {
		a.logger.Warn("write metrics", "error", err)
	}
}

func cmdEdit(a *app, args []string) error {
	rest, err := a.parseArgs(newFlags("edit"), args, 2, 2)
	if err != nil {
		return err
	}
	content := rest[1]
	if content == "-" {
		if a.shell {
			return usageErrorf("edit: stdin is not available in the shell")
		}
		b, err := io.ReadAll(a.stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		content = string(b)
	}
	return a.session.Edit(a.ctx, rest[0], content)
}

func cmdZip(a *app, args []string) error {
	fs := newFlags("zip")
	dir := fs.String("C", "", "the directory containing the files")
	rest, err := a.parseArgs(fs, args, 2, -1)
	if err != nil {
		return err
	}
	sels := selections(*dir, rest[1:])
	if len(sels) != 1 {
		return usageErrorf("zip: files are in several directories; use -C")
	}
	return a.session.Archive(a.ctx, sels[0].Dir, rest[0], sels[0].Names)
}

func cmdUnzip(a *app, args []string) error {
	rest, err := a.parseArgs(newFlags("unzip"), args, 1, 1)
	if err != nil {
		return err
	}
	return a.session.Extract(a.ctx, rest[0])
}

func cmdMkdir(a *app, args []string) error {
	rest, err := a.parseArgs(newFlags("mkdir"), args, 1, 1)
	if err != nil {
		return err
	}
	return a.session.Mkdir(a.ctx, rest[0])
}

func cmdRmdir(a *app, args []string) error {
	rest, err := a.parseArgs(newFlags("rmdir"), args, 1, 1)
	if err != nil {
		return err
	}
	dir, name := panel.SplitPath(strings.TrimRight(rest[0], "/"))
	if name == "" {
		return usageErrorf("rmdir: refusing to remove the top-level directory")
	}
	msg, err := a.session.Delete(a.ctx, dir, []string{name})
	if msg != "" {
		fmt.Fprintln(a.stdout, msg)
	}
	return err
}

func cmdRemove(a *app, args []string) error {
	fs := newFlags("rm")
	dir := fs.String("C", "", "the directory containing the files")
	rest, err := a.parseArgs(fs, args, 1, -1)
	if err != nil {
		return err
	}
	var errs *multierror.Error
	for _, sel := range selections(*dir, rest) {
		msg, err := a.session.Delete(a.ctx, sel.Dir, sel.Names)
		if msg != "" {
			fmt.Fprintln(a.stdout, msg)
		}
		if err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func cmdEmpty(a *app, args []string) error {
	rest, err := a.parseArgs(newFlags("empty"), args, 1, 1)
	if err != nil {
		return err
	}
	return a.session.CreateFile(a.ctx, rest[0])
}

func cmdRename(a *app, args []string) error {
	rest, err := a.parseArgs(newFlags("rename"), args, 2, 2)
	if err != nil {
		return err
	}
	dir, name := panel.SplitPath(rest[0])
	return a.session.Rename(a.ctx, dir, name, rest[1])
}

func cmdMove(a *app, args []string) error {
	return a.copyOrMove("mv", args, a.session.Move)
}

func cmdCopy(a *app, args []string) error {
	return a.copyOrMove("cp", args, a.session.Copy)
}

type copyFunc func(ctx context.Context, dir string, names []string, dest string) error

func (a *app) copyOrMove(name string, args []string, op copyFunc) error {
	fs := newFlags(name)
	dir := fs.String("C", "", "the directory containing the files")
	rest, err := a.parseArgs(fs, args, 2, -1)
	if err != nil {
		return err
	}
	dest := rest[len(rest)-1]
	var errs *multierror.Error
	for _, sel := range selections(*dir, rest[:len(rest)-1]) {
		if err := op(a.ctx, sel.Dir, sel.Names, dest); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func cmdSize(a *app, args []string) error {
	fs := newFlags("du")
	dir := fs.String("C", "", "the directory containing the files")
	rest, err := a.parseArgs(fs, args, 1, -1)
	if err != nil {
		return err
	}
	sels := selections(*dir, rest)
	var errs *multierror.Error
	for _, sel := range sels {
		report, err := a.session.CalculateSize(a.ctx, sel.Dir, sel.Names)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if len(sels) > 1 {
			fmt.Fprintf(a.stdout, "%s: %s\n", sel.Dir, report.Summary)
		} else {
			fmt.Fprintln(a.stdout, report.Summary)
		}
	}
	return errs.ErrorOrNil()
}

func cmdHelp(a *app, args []string) error {
	rest, err := a.parseArgs(newFlags("help"), args, 0, 1)
	if err != nil {
		return err
	}
	if len(rest) == 1 {
		c, ok := lookupCommand(rest[0])
		if !ok {
			return usageErrorf("help: unknown command %q", rest[0])
		}
		fmt.Fprintf(a.stdout, "usage: %s\n\n%s\n", c.usage, c.summary)
		fs := newFlags(c.name)
		fs.SetOutput(a.stdout)
		switch c.name {
		case "ls":
			fs.Bool("r", false, "recursively list directories")
			fs.Bool("c", false, "continue after an error")
		case "zip", "rm", "mv", "cp", "du":
			fs.String("C", "", "the directory containing the files")
		}
		fs.PrintDefaults()
		return nil
	}
	a.global.SetOutput(a.stdout)
	printUsage(a.stdout, a.global)
	fmt.Fprintln(a.stdout)
	for _, c := range commands {
		fmt.Fprintf(a.stdout, "usage: pleskfm %s\n", c.usage)
	}
	return nil
}

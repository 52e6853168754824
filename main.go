package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"

	"pleskfm/config"
	"pleskfm/panel"
	"pleskfm/perfmetrics"
	"pleskfm/terminal"
	"pleskfm/transfer"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// errUsage marks an error caused by bad command-line arguments.
var errUsage = errors.New("usage")

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type globalOptions struct {
	section  string
	baseURL  string
	username string
	password string
	insecure bool
	verbose  bool
	metrics  bool
	theme    string
	rcPath   string
}

func (o *globalOptions) register(fs *flag.FlagSet) {
	for _, name := range []string{"config", "c"} {
		fs.StringVar(&o.section, name, "", "section of ~/.pleskrc to use")
	}
	fs.StringVar(&o.baseURL, "baseurl", "", "panel base url, e.g. https://host:8443/")
	for _, name := range []string{"ignoresslerrors", "k"} {
		fs.BoolVar(&o.insecure, name, false, "do not verify the TLS certificate")
	}
	for _, name := range []string{"username", "u"} {
		fs.StringVar(&o.username, name, "", "login name")
	}
	for _, name := range []string{"password", "p"} {
		fs.StringVar(&o.password, name, "", "login password")
	}
	for _, name := range []string{"verbose", "v"} {
		fs.BoolVar(&o.verbose, name, false, "log requests and raw responses")
	}
	fs.BoolVar(&o.metrics, "metrics", false, "append transfer throughput to ~/.pleskfm/perfmetrics/"+perfmetrics.FileName)
	fs.StringVar(&o.theme, "theme", "", "colour theme: "+strings.Join(terminal.Themes, ", "))
	fs.StringVar(&o.rcPath, "rcfile", "", "configuration file (default ~/"+config.FileName+")")
}

// run is the whole program; it returns the exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var opts globalOptions
	fs := flag.NewFlagSet("pleskfm", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts.register(fs)
	fs.Usage = func() { printUsage(stderr, fs) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	logger := newLogger(stderr, opts.verbose)
	slog.SetDefault(logger)

	site, err := loadSite(opts)
	theme, themeErr := terminal.NewTheme(site.Theme)
	if themeErr != nil {
		theme, _ = terminal.NewTheme("")
	}
	console := &terminal.Console{Out: stdout, Err: stderr, Theme: theme, Plain: !isTerminal(stderr)}
	if err != nil {
		console.Errorf("%v", err)
		return exitError
	}
	if themeErr != nil {
		console.Warnf("%v, using %s", themeErr, theme.Name)
	}

	rest := fs.Args()
	if len(rest) == 0 {
		printUsage(stderr, fs)
		return exitUsage
	}
	cmd, ok := lookupCommand(rest[0])
	if !ok {
		console.Errorf("unknown command %q", rest[0])
		printUsage(stderr, fs)
		return exitUsage
	}

	a := &app{
		ctx:       ctx,
		stdin:     stdin,
		stdout:    stdout,
		stderr:    stderr,
		console:   console,
		logger:    logger,
		site:      site,
		stdoutTTY: isTerminal(stdout),
		stderrTTY: isTerminal(stderr),
		global:    fs,
	}
	if cmd.needsSession {
		if err := a.connect(); err != nil {
			console.Errorf("%v", err)
			return exitError
		}
		defer a.session.Close()
	}

	if err := cmd.run(a, rest[1:]); err != nil {
		return a.report(err)
	}
	return exitOK
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    !isTerminal(w),
	}))
}

// loadSite merges ~/.pleskrc with the command line; flags win.
func loadSite(opts globalOptions) (*config.Site, error) {
	path := opts.rcPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return &config.Site{}, err
		}
		path = p
	}
	site, err := config.Load(path, opts.section)
	if err != nil {
		return &config.Site{}, err
	}
	site.Override(config.Site{
		BaseURL:         opts.baseURL,
		Username:        opts.username,
		Password:        opts.password,
		IgnoreSSLErrors: opts.insecure,
		Theme:           opts.theme,
		Metrics:         opts.metrics,
	})
	return site, nil
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "usage: pleskfm [global options] <command> [arguments]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "global options:")
	fs.PrintDefaults()
}

// app is the state shared by the commands of one invocation.
type app struct {
	ctx     context.Context
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	console *terminal.Console
	logger  *slog.Logger
	site    *config.Site
	global  *flag.FlagSet

	stdoutTTY bool
	stderrTTY bool

	session *panel.Session
	metrics *perfmetrics.Logger
	bar     *transfer.Bar

	// onListing, when set, sees every listing printed by ls.
	onListing func(*panel.Listing)
	// shell is set while commands are read from stdin.
	shell bool
}

// connect opens and starts the session, prompting for a missing password
// when stdin is a terminal.
func (a *app) connect() error {
	if err := a.site.Validate(); err != nil {
		return err
	}
	if a.site.Username != "" && a.site.Password == "" {
		if f, ok := a.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			fmt.Fprintf(a.stderr, "Password for %s: ", a.site.Username)
			pw, err := term.ReadPassword(int(f.Fd()))
			fmt.Fprintln(a.stderr)
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			a.site.Password = string(pw)
		}
	}

	if a.site.Metrics {
		dir, err := perfmetrics.DefaultDir()
		if err != nil {
			a.logger.Warn("metrics disabled", "error", err)
		} else {
			a.metrics = &perfmetrics.Logger{Dir: dir}
		}
	}

	s, err := panel.New(panel.Config{
		BaseURL:            a.site.BaseURL,
		Username:           a.site.Username,
		Password:           a.site.Password,
		InsecureSkipVerify: a.site.IgnoreSSLErrors,
		OnProgress:         a.progress,
		Logger:             a.logger,
	})
	if err != nil {
		return err
	}
	if err := s.Start(a.ctx); err != nil {
		s.Close()
		return err
	}
	a.session = s
	return nil
}

func (a *app) progress(transferred, total int64, speed float64, elapsed time.Duration) {
	if a.bar != nil {
		a.bar.Update(transferred, total, speed, elapsed)
	}
}

// report prints err the way the command line reports failures and returns
// the exit code.
func (a *app) report(err error) int {
	if errors.Is(err, errUsage) {
		a.console.Errorf("%s", strings.TrimPrefix(err.Error(), errUsage.Error()+": "))
		return exitUsage
	}
	a.console.Errorf("%v", err)
	return exitError
}

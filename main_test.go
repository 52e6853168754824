package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"pleskfm/fakepanel"
)

type cli struct {
	t    *testing.T
	fake *fakepanel.Server
	rc   string
}

// newCLI starts a fake panel and writes a configuration file pointing at it.
func newCLI(t *testing.T) *cli {
	return newCLIWith(t, nil)
}

// newCLIWith is newCLI with the fake panel wrapped by wrap.
func newCLIWith(t *testing.T, wrap func(http.Handler) http.Handler) *cli {
	t.Helper()
	fake := fakepanel.New(fakepanel.Options{
		Username: "admin",
		Password: "secret",
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	var h http.Handler = fake
	if wrap != nil {
		h = wrap(fake)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	rc := filepath.Join(t.TempDir(), "pleskrc")
	conf := fmt.Sprintf("[work]\nbaseurl = %s/\nusername = admin\npassword = secret\n", srv.URL)
	if err := os.WriteFile(rc, []byte(conf), 0600); err != nil {
		t.Fatal(err)
	}
	return &cli{t: t, fake: fake, rc: rc}
}

func (c *cli) run(stdin string, args ...string) (stdout, stderr string, code int) {
	c.t.Helper()
	var out, errOut bytes.Buffer
	code = run(context.Background(), append([]string{"-rcfile", c.rc}, args...), strings.NewReader(stdin), &out, &errOut)
	return out.String(), errOut.String(), code
}

func (c *cli) write(p, data string) {
	c.t.Helper()
	if err := c.fake.WriteFile(p, []byte(data)); err != nil {
		c.t.Fatal(err)
	}
}

func TestList(t *testing.T) {
	c := newCLI(t)
	c.write("/www/index.html", "<h1>hi</h1>")
	c.write("/www/img/logo.png", "png")

	out, errOut, code := c.run("", "ls", "/www")
	if code != exitOK {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if !strings.HasPrefix(out, "/www:\n") || !strings.Contains(out, "index.html") || strings.Contains(out, "logo.png") {
		t.Errorf("ls output:\n%s", out)
	}

	out, _, code = c.run("", "ls", "-r", "/www")
	if code != exitOK || !strings.Contains(out, "/www/img:\n") || !strings.Contains(out, "logo.png") {
		t.Errorf("ls -r exit %d:\n%s", code, out)
	}
}

func TestListContinueOnError(t *testing.T) {
	c := newCLI(t)
	c.write("/www/index.html", "x")
	out, errOut, code := c.run("", "ls", "-c", "/www/index.html", "/www")
	if code != exitOK {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if !strings.Contains(errOut, "ERROR") {
		t.Errorf("stderr = %q, want the listing error", errOut)
	}
	if !strings.Contains(out, "index.html") {
		t.Errorf("stdout = %q", out)
	}
}

func TestPutGet(t *testing.T) {
	c := newCLI(t)
	if err := c.fake.Mkdir("/www"); err != nil {
		t.Fatal(err)
	}
	local := t.TempDir()
	data := strings.Repeat("0123456789abcdef", 10000)
	src := filepath.Join(local, "data.txt")
	if err := os.WriteFile(src, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	if _, errOut, code := c.run("", "put", src, "/www"); code != exitOK {
		t.Fatalf("put exit %d: %s", code, errOut)
	}
	got, ok := c.fake.ReadFile("/www/data.txt")
	if !ok || string(got) != data {
		t.Fatalf("uploaded %d bytes, want %d", len(got), len(data))
	}

	dest := t.TempDir()
	if _, errOut, code := c.run("", "get", "/www/data.txt", dest); code != exitOK {
		t.Fatalf("get exit %d: %s", code, errOut)
	}
	b, err := os.ReadFile(filepath.Join(dest, "data.txt"))
	if err != nil || string(b) != data {
		t.Fatalf("downloaded %d bytes (%v)", len(b), err)
	}
	files, _ := os.ReadDir(dest)
	if len(files) != 1 {
		t.Errorf("leftover files in %s: %v", dest, files)
	}
}

func TestGetMissingLeavesNoFile(t *testing.T) {
	c := newCLI(t)
	c.write("/www/a.txt", "a")
	dest := t.TempDir()
	_, errOut, code := c.run("", "get", "/www/missing.txt", dest)
	if code != exitError || !strings.Contains(errOut, "ERROR") {
		t.Fatalf("exit %d, stderr %q", code, errOut)
	}
	if files, _ := os.ReadDir(dest); len(files) != 0 {
		t.Errorf("files left behind: %v", files)
	}
}

func TestTeeCat(t *testing.T) {
	c := newCLI(t)
	if _, errOut, code := c.run("hello from stdin\n", "tee", "/notes.txt"); code != exitOK {
		t.Fatalf("tee exit %d: %s", code, errOut)
	}
	out, errOut, code := c.run("", "cat", "/notes.txt")
	if code != exitOK || out != "hello from stdin\n" {
		t.Fatalf("cat exit %d out %q err %q", code, out, errOut)
	}
}

func TestEdit(t *testing.T) {
	c := newCLI(t)
	c.write("/conf.ini", "old")
	if _, errOut, code := c.run("new contents\n", "edit", "/conf.ini", "-"); code != exitOK {
		t.Fatalf("edit exit %d: %s", code, errOut)
	}
	if got, _ := c.fake.ReadFile("/conf.ini"); string(got) != "new contents\n" {
		t.Errorf("contents = %q", got)
	}
}

func TestCopyReportsServerMessage(t *testing.T) {
	c := newCLI(t)
	c.write("/a/x.txt", "1")
	c.write("/b/x.txt", "2")

	_, errOut, code := c.run("", "cp", "/a/x.txt", "/b")
	if code != exitError {
		t.Fatalf("exit %d, want %d", code, exitError)
	}
	if !strings.Contains(errOut, "ERROR") || !strings.Contains(errOut, "file exists") {
		t.Errorf("stderr = %q", errOut)
	}

	if _, errOut, code := c.run("", "mv", "/a/x.txt", "/c"); code != exitError {
		t.Errorf("mv to missing dir exit %d: %s", code, errOut)
	}
	if err := c.fake.Mkdir("/c"); err != nil {
		t.Fatal(err)
	}
	if _, errOut, code := c.run("", "mv", "/a/x.txt", "/c"); code != exitOK {
		t.Fatalf("mv exit %d: %s", code, errOut)
	}
	if c.fake.Exists("/a/x.txt") || !c.fake.Exists("/c/x.txt") {
		t.Error("mv did not move the file")
	}
}

func TestRemove(t *testing.T) {
	c := newCLI(t)
	c.write("/a/1.txt", "1")
	c.write("/a/2.txt", "2")
	c.write("/b/3.txt", "3")
	c.write("/old/deep/file", "x")

	if _, errOut, code := c.run("", "rm", "/a/1.txt", "/b/3.txt"); code != exitOK {
		t.Fatalf("rm exit %d: %s", code, errOut)
	}
	if c.fake.Exists("/a/1.txt") || c.fake.Exists("/b/3.txt") || !c.fake.Exists("/a/2.txt") {
		t.Error("rm removed the wrong files")
	}
	if _, errOut, code := c.run("", "rm", "-C", "/a", "2.txt"); code != exitOK {
		t.Fatalf("rm -C exit %d: %s", code, errOut)
	}
	if c.fake.Exists("/a/2.txt") {
		t.Error("rm -C left the file")
	}

	if _, errOut, code := c.run("", "rmdir", "/old/"); code != exitOK {
		t.Fatalf("rmdir exit %d: %s", code, errOut)
	}
	if c.fake.Exists("/old") {
		t.Error("rmdir left the directory")
	}
	if _, _, code := c.run("", "rmdir", "/"); code != exitUsage {
		t.Errorf("rmdir / exit %d", code)
	}
}

func TestRemoveAcrossDirectories(t *testing.T) {
	c := newCLI(t)
	c.write("/b/3.txt", "3")
	c.write("/b/top.txt", "keep")
	c.write("/top.txt", "drop")

	if _, errOut, code := c.run("", "rm", "/b/3.txt", "/top.txt"); code != exitOK {
		t.Fatalf("rm exit %d: %s", code, errOut)
	}
	if c.fake.Exists("/top.txt") {
		t.Error("/top.txt was not removed")
	}
	if !c.fake.Exists("/b/top.txt") {
		t.Error("/b/top.txt was removed instead of /top.txt")
	}
}

// truncateDownloads answers every download with half of the declared body.
func truncateDownloads(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/download") {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename="big.bin"`)
		w.Header().Set("Content-Length", "2000")
		w.Write(make([]byte, 1000))
	})
}

func TestGetTruncatedRemovesPartialFile(t *testing.T) {
	c := newCLIWith(t, truncateDownloads)
	dest := t.TempDir()
	_, errOut, code := c.run("", "get", "/big.bin", dest)
	if code != exitError || !strings.Contains(errOut, "unexpected EOF") {
		t.Fatalf("exit %d, stderr %q", code, errOut)
	}
	if files, _ := os.ReadDir(dest); len(files) != 0 {
		t.Errorf("partial download left behind: %v", files)
	}
}

func TestZipUnzip(t *testing.T) {
	c := newCLI(t)
	c.write("/a/x.txt", "xx")
	c.write("/b/y.txt", "yy")

	_, errOut, code := c.run("", "zip", "bundle.zip", "/a/x.txt", "/b/y.txt")
	if code != exitUsage || !strings.Contains(errOut, "-C") {
		t.Fatalf("exit %d, stderr %q", code, errOut)
	}
	if _, errOut, code := c.run("", "zip", "-C", "/a", "bundle.zip", "x.txt"); code != exitOK {
		t.Fatalf("zip exit %d: %s", code, errOut)
	}
	if !c.fake.Exists("/a/bundle.zip") {
		t.Fatal("archive not created")
	}
	if _, errOut, code := c.run("", "rm", "/a/x.txt"); code != exitOK {
		t.Fatalf("rm exit %d: %s", code, errOut)
	}
	if _, errOut, code := c.run("", "unzip", "/a/bundle.zip"); code != exitOK {
		t.Fatalf("unzip exit %d: %s", code, errOut)
	}
	if got, _ := c.fake.ReadFile("/a/x.txt"); string(got) != "xx" {
		t.Errorf("extracted %q", got)
	}
}

func TestSize(t *testing.T) {
	c := newCLI(t)
	c.write("/a/x.txt", "12345")
	c.write("/a/y.txt", "678")
	out, errOut, code := c.run("", "du", "/a/x.txt", "/a/y.txt")
	if code != exitOK {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if out != "Total size: 8 bytes\n" {
		t.Errorf("du output = %q", out)
	}
}

func TestMkdirEmptyRename(t *testing.T) {
	c := newCLI(t)
	for _, args := range [][]string{
		{"mkdir", "/site"},
		{"empty", "/site/draft.md"},
		{"rename", "/site/draft.md", "post.md"},
	} {
		if _, errOut, code := c.run("", args...); code != exitOK {
			t.Fatalf("%v: exit %d: %s", args, code, errOut)
		}
	}
	if !c.fake.IsDir("/site") || c.fake.Exists("/site/draft.md") || !c.fake.Exists("/site/post.md") {
		t.Error("unexpected tree after mkdir, empty, rename")
	}
}

func TestUsageErrors(t *testing.T) {
	c := newCLI(t)
	for _, args := range [][]string{
		{},
		{"frobnicate"},
		{"rename", "/only-one"},
		{"cat"},
		{"ls", "-z"},
	} {
		if _, _, code := c.run("", args...); code != exitUsage {
			t.Errorf("%v: exit %d, want %d", args, code, exitUsage)
		}
	}
	if len(c.fake.Requests()) != 0 {
		t.Errorf("usage errors reached the server: %v", c.fake.Requests())
	}
}

func TestMissingBaseURL(t *testing.T) {
	var out, errOut bytes.Buffer
	rc := filepath.Join(t.TempDir(), "absent")
	code := run(context.Background(), []string{"-rcfile", rc, "ls"}, strings.NewReader(""), &out, &errOut)
	if code != exitError || !strings.Contains(errOut.String(), "no base url") {
		t.Errorf("exit %d, stderr %q", code, errOut.String())
	}
}

func TestWrongPassword(t *testing.T) {
	c := newCLI(t)
	_, errOut, code := c.run("", "-p", "wrong", "ls")
	if code != exitError || !strings.Contains(errOut, "Incorrect username or password.") {
		t.Errorf("exit %d, stderr %q", code, errOut)
	}
}

func TestHelp(t *testing.T) {
	c := newCLI(t)
	out, _, code := c.run("", "help", "cp")
	if code != exitOK || !strings.Contains(out, "usage: cp [-C dir]") || !strings.Contains(out, "-C") {
		t.Errorf("help cp exit %d:\n%s", code, out)
	}
	out, _, code = c.run("", "help")
	if code != exitOK || !strings.Contains(out, "usage: pleskfm unzip <zipfile>") {
		t.Errorf("help exit %d:\n%s", code, out)
	}
}

func TestShellScript(t *testing.T) {
	c := newCLI(t)
	script := strings.Join([]string{
		"# set up a page",
		"mkdir /site",
		`empty "/site/new page.html"`,
		"",
		"ls /site",
		"bogus",
		"tee /site/x",
		"exit",
		"mkdir /never",
	}, "\n")
	out, errOut, code := c.run(script, "shell")
	if code != exitError {
		t.Errorf("exit %d, want %d", code, exitError)
	}
	if !strings.Contains(out, "new page.html") {
		t.Errorf("stdout = %q", out)
	}
	if !strings.Contains(errOut, `unknown command "bogus"`) || !strings.Contains(errOut, "2 of 5 commands failed") {
		t.Errorf("stderr = %q", errOut)
	}
	if c.fake.Exists("/never") {
		t.Error("commands after exit were run")
	}
}

func TestSplitArgs(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want []string
		err  bool
	}{
		{in: "", want: []string{}},
		{in: "ls  -r\t/www", want: []string{"ls", "-r", "/www"}},
		{in: `put "my file.txt" /`, want: []string{"put", "my file.txt", "/"}},
		{in: `edit /a 'it''s'`, want: []string{"edit", "/a", "its"}},
		{in: `cat a\ b`, want: []string{"cat", "a b"}},
		{in: `edit /a "say \"hi\""`, want: []string{"edit", "/a", `say "hi"`}},
		{in: `edit /a ''`, want: []string{"edit", "/a", ""}},
		{in: `cat "open`, err: true},
		{in: `cat a\`, err: true},
		{in: "rm a; rm b", err: true},
		{in: "cat a | less", err: true},
	} {
		got, err := splitArgs(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("splitArgs(%q) error = %v", tt.in, err)
			continue
		}
		if !tt.err && len(got)+len(tt.want) > 0 && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitArgs(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

package terminal

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/c-bata/go-prompt"

	"pleskfm/panel"
)

type stubLister struct {
	listings map[string]*panel.Listing
	calls    []string
}

func (s *stubLister) List(ctx context.Context, dir string) (*panel.Listing, error) {
	s.calls = append(s.calls, dir)
	l, ok := s.listings[dir]
	if !ok {
		return nil, errors.New("no such directory")
	}
	return l, nil
}

var testCommands = []Command{
	{Name: "ls", Description: "List a directory", Args: ArgRemoteDir},
	{Name: "get", Description: "Download files", Args: ArgRemote},
	{Name: "put", Description: "Upload a file", Args: ArgLocal},
	{Name: "help", Description: "Show help"},
}

func complete(c *CommandCompleter, input string) []string {
	b := prompt.NewBuffer()
	b.InsertText(input, false, true)
	var out []string
	for _, s := range c.Completer(*b.Document()) {
		out = append(out, s.Text)
	}
	return out
}

func TestCompleteCommands(t *testing.T) {
	c := NewCommandCompleter(testCommands, nil)
	if got := complete(c, "g"); len(got) != 1 || got[0] != "get" {
		t.Errorf("complete(g) = %v", got)
	}
	if got := complete(c, ""); len(got) != len(testCommands) {
		t.Errorf("complete() = %v", got)
	}
}

func TestCompleteRemote(t *testing.T) {
	lister := &stubLister{listings: map[string]*panel.Listing{
		"/www": {Dir: "/www", Entries: []panel.Entry{
			{Name: "index.html"},
			{Name: "images", IsDirectory: true},
			{Name: ".htaccess"},
		}},
	}}
	c := NewCommandCompleter(testCommands, lister)

	got := complete(c, "get /www/i")
	want := []string{"/www/images/", "/www/index.html"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("complete(get /www/i) = %v, want %v", got, want)
	}
	if got := complete(c, "ls /www/i"); strings.Join(got, ",") != "/www/images/" {
		t.Errorf("complete(ls /www/i) = %v", got)
	}
	if got := complete(c, "get /www/."); strings.Join(got, ",") != "/www/.htaccess" {
		t.Errorf("complete(get /www/.) = %v", got)
	}
	if len(lister.calls) != 1 {
		t.Errorf("listed %d times, want 1 (cached)", len(lister.calls))
	}

	c.ClearCache()
	complete(c, "get /www/")
	if len(lister.calls) != 2 {
		t.Errorf("cache not cleared: %d listings", len(lister.calls))
	}
	if got := complete(c, "help x"); got != nil {
		t.Errorf("complete(help x) = %v, want none", got)
	}
}

func TestUpdateRemoteAvoidsRequest(t *testing.T) {
	lister := &stubLister{}
	c := NewCommandCompleter(testCommands, lister)
	c.UpdateRemote(&panel.Listing{Dir: "/", Entries: []panel.Entry{{Name: "notes.txt"}}})
	if got := complete(c, "get no"); strings.Join(got, ",") != "notes.txt" {
		t.Errorf("complete(get no) = %v", got)
	}
	if len(lister.calls) != 0 {
		t.Errorf("unexpected listing requests %v", lister.calls)
	}
}

func TestFormatListing(t *testing.T) {
	var buf bytes.Buffer
	tf := NewTableFormatter(&buf)
	l := &panel.Listing{Dir: "/", Entries: []panel.Entry{
		{Name: "report.pdf", Size: "2048", FilePerms: "rw-r--r--", User: "u", Group: "g", ModificationTimestamp: "1700000000"},
		{Name: "site", IsDirectory: true, FilePerms: "rwxr-xr-x"},
	}}
	if err := tf.FormatListing(l); err != nil {
		t.Fatalf("FormatListing: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"report.pdf", "PDF", "2.0 KB", "site/", "dir", "-rw-r--r--", "u:g"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := tf.FormatListing(&panel.Listing{Dir: "/empty"}); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "Directory is empty" {
		t.Errorf("empty listing output = %q", buf.String())
	}
}

func TestFormatListingTruncatesWideNames(t *testing.T) {
	var buf bytes.Buffer
	long := strings.Repeat("файл", 20) + ".txt"
	l := &panel.Listing{Dir: "/", Entries: []panel.Entry{{Name: long}}}
	if err := NewTableFormatter(&buf).FormatListing(l); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !utf8.ValidString(out) {
		t.Fatalf("table is not valid UTF-8:\n%q", out)
	}
	if !strings.Contains(out, "файлфайл") || !strings.Contains(out, "...") || strings.Contains(out, long) {
		t.Errorf("long name not truncated:\n%s", out)
	}
}

func TestConsole(t *testing.T) {
	theme, err := NewTheme("")
	if err != nil {
		t.Fatal(err)
	}
	if theme.Name != "dark" {
		t.Errorf("default theme = %q", theme.Name)
	}
	if _, err := NewTheme("neon"); err == nil {
		t.Error("NewTheme accepted an unknown name")
	}

	var out, errOut bytes.Buffer
	c := &Console{Out: &out, Err: &errOut, Theme: theme, Plain: true}
	c.Errorf("copy: %s", "file exists")
	c.Successf("uploaded %d bytes", 10)
	if errOut.String() != "ERROR copy: file exists\n" {
		t.Errorf("error output = %q", errOut.String())
	}
	if out.String() != "uploaded 10 bytes\n" {
		t.Errorf("output = %q", out.String())
	}
}

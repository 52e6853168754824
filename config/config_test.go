package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sample = `
[work]
baseurl = https://panel.example.com:8443/
username = alice
password = s3cret
ignoresslerrors = yes

[home]
baseurl = https://home.example.net/
Theme = light
metrics = true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFirstSection(t *testing.T) {
	site, err := Load(writeConfig(t, sample), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Site{
		Name:            "work",
		BaseURL:         "https://panel.example.com:8443/",
		Username:        "alice",
		Password:        "s3cret",
		IgnoreSSLErrors: true,
	}
	if *site != want {
		t.Errorf("site = %+v, want %+v", *site, want)
	}
}

func TestLoadNamedSection(t *testing.T) {
	site, err := Load(writeConfig(t, sample), "HOME")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if site.BaseURL != "https://home.example.net/" || site.Theme != "light" || !site.Metrics {
		t.Errorf("site = %+v", *site)
	}
	if site.Username != "" || site.IgnoreSSLErrors {
		t.Errorf("values leaked from another section: %+v", *site)
	}
}

func TestLoadUnknownSection(t *testing.T) {
	if _, err := Load(writeConfig(t, sample), "office"); err == nil {
		t.Fatal("Load of an unknown section succeeded")
	}
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent")
	site, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *site != (Site{}) {
		t.Errorf("site = %+v, want empty", *site)
	}
	if _, err := Load(path, "work"); err == nil {
		t.Error("Load of a named section from a missing file succeeded")
	}
}

func TestLoadDefaultSectionOnly(t *testing.T) {
	site, err := Load(writeConfig(t, "baseurl = https://only.example/\n"), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if site.BaseURL != "https://only.example/" || site.Name != "" {
		t.Errorf("site = %+v", *site)
	}
}

func TestOverride(t *testing.T) {
	site := Site{BaseURL: "https://a/", Username: "u", Password: "p", Theme: "dark"}
	site.Override(Site{BaseURL: "https://b/", IgnoreSSLErrors: true})
	want := Site{BaseURL: "https://b/", Username: "u", Password: "p", Theme: "dark", IgnoreSSLErrors: true}
	if site != want {
		t.Errorf("site = %+v, want %+v", site, want)
	}
	if err := (&Site{}).Validate(); err == nil {
		t.Error("Validate accepted a site without base url")
	}
}

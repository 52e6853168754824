package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

// FileName is the per-user configuration file, looked up in the home directory.
const FileName = ".pleskrc"

// Site holds the connection settings for one panel.
type Site struct {
	Name            string // section the values came from
	BaseURL         string
	Username        string
	Password        string
	IgnoreSSLErrors bool
	Theme           string
	Metrics         bool
}

// DefaultPath returns ~/.pleskrc.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, FileName), nil
}

// Load reads the site named section from the INI file at path. With an
// empty section the first section of the file is used. A missing file
// yields an empty Site unless a section was asked for by name.
func Load(path, section string) (*Site, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if section != "" {
			return nil, fmt.Errorf("config section %q not found: %s does not exist", section, path)
		}
		return &Site{}, nil
	}
	f, err := ini.LoadSources(ini.LoadOptions{Loose: true, InsensitiveKeys: true}, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return fromFile(f, section, path)
}

func fromFile(f *ini.File, section, path string) (*Site, error) {
	var sec *ini.Section
	for _, name := range f.SectionStrings() {
		isDefault := strings.EqualFold(name, ini.DefaultSection)
		if (section == "" && !isDefault) || (section != "" && strings.EqualFold(name, section)) {
			sec = f.Section(name)
			break
		}
	}
	if sec == nil {
		if section != "" {
			return nil, fmt.Errorf("config section %q not found in %s", section, path)
		}
		sec = f.Section(ini.DefaultSection)
	}

	site := &Site{
		BaseURL:         strings.TrimSpace(sec.Key("baseurl").String()),
		Username:        sec.Key("username").String(),
		Password:        sec.Key("password").String(),
		IgnoreSSLErrors: sec.Key("ignoresslerrors").MustBool(false),
		Theme:           sec.Key("theme").String(),
		Metrics:         sec.Key("metrics").MustBool(false),
	}
	if !strings.EqualFold(sec.Name(), ini.DefaultSection) {
		site.Name = sec.Name()
	}
	return site, nil
}

// Override replaces fields of s with the non-zero fields of o.
func (s *Site) Override(o Site) {
	if o.BaseURL != "" {
		s.BaseURL = o.BaseURL
	}
	if o.Username != "" {
		s.Username = o.Username
	}
	if o.Password != "" {
		s.Password = o.Password
	}
	if o.IgnoreSSLErrors {
		s.IgnoreSSLErrors = true
	}
	if o.Theme != "" {
		s.Theme = o.Theme
	}
	if o.Metrics {
		s.Metrics = true
	}
}

// Validate reports what is missing to connect.
func (s *Site) Validate() error {
	if s.BaseURL == "" {
		return fmt.Errorf("no base url: use --baseurl or set baseurl in ~/%s", FileName)
	}
	return nil
}

package panel

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// List returns the contents of dir. As a side effect the server's current
// directory moves to dir.
func (s *Session) List(ctx context.Context, dir string) (*Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return nil, err
	}
	l, err := s.list(ctx, CleanDir(dir))
	if err != nil {
		return nil, err
	}
	return l, nil
}

// WalkOptions controls Walk.
type WalkOptions struct {
	Recursive       bool
	ContinueOnError bool
}

// WalkFunc is called once per listed directory.
type WalkFunc func(dir string, l *Listing) error

// Walk lists dir and, when Recursive, every directory below it. With
// ContinueOnError a failing directory is skipped and its error collected.
func (s *Session) Walk(ctx context.Context, dir string, opts WalkOptions, fn WalkFunc) error {
	var errs *multierror.Error
	if err := s.walk(ctx, CleanDir(dir), opts, fn, &errs); err != nil {
		return err
	}
	return errs.ErrorOrNil()
}

func (s *Session) walk(ctx context.Context, dir string, opts WalkOptions, fn WalkFunc, errs **multierror.Error) error {
	l, err := s.List(ctx, dir)
	if err != nil {
		if opts.ContinueOnError {
			*errs = multierror.Append(*errs, err)
			return nil
		}
		return err
	}
	if err := fn(dir, l); err != nil {
		return err
	}
	if !opts.Recursive {
		return nil
	}
	for _, e := range l.Entries {
		if !e.IsDirectory || e.Name == "." || e.Name == ".." {
			continue
		}
		if err := s.walk(ctx, path.Join(dir, e.Name), opts, fn, errs); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes names from dir, directories recursively. The endpoint
// answers with free text and no error convention: on a 2xx status that
// text is returned as is and the caller must re-list to confirm.
func (s *Session) Delete(ctx context.Context, dir string, names []string) (string, error) {
	if err := requireNames("delete", names); err != nil {
		return "", err
	}
	var msg string
	err := s.inDir(ctx, dir, func() error {
		res, err := s.submit(ctx, "delete", "delete", nil, s.selectionForm(names), ExpectOpaque)
		if err != nil {
			return err
		}
		msg = res.Message
		return nil
	})
	return msg, err
}

// Copy copies names from dir into dest. Existing targets are not overwritten.
func (s *Session) Copy(ctx context.Context, dir string, names []string, dest string) error {
	return s.transferFiles(ctx, "copy", "copy-files", dir, names, dest)
}

// Move moves names from dir into dest. Existing targets are not overwritten.
func (s *Session) Move(ctx context.Context, dir string, names []string, dest string) error {
	return s.transferFiles(ctx, "move", "move-files", dir, names, dest)
}

func (s *Session) transferFiles(ctx context.Context, op, endpoint, dir string, names []string, dest string) error {
	if err := requireNames(op, names); err != nil {
		return err
	}
	if strings.TrimSpace(dest) == "" {
		return &ValidationError{Op: op, Reason: "destination directory is required"}
	}
	query := url.Values{"destinationDir": {CleanDir(dest)}, "overwrite": {"false"}}
	return s.inDir(ctx, dir, func() error {
		_, err := s.submit(ctx, op, endpoint, query, s.selectionForm(names), ExpectStatusMessages)
		return err
	})
}

// Rename renames oldName in dir to newName.
func (s *Session) Rename(ctx context.Context, dir, oldName, newName string) error {
	if err := requireFlat("rename", []string{oldName, newName}); err != nil {
		return err
	}
	return s.inDir(ctx, dir, func() error {
		_, err := s.submit(ctx, "rename", "rename", nil, s.selectionForm([]string{oldName}, "newFileName", newName), ExpectStatus)
		return err
	})
}

// Mkdir creates the directory remotePath. The parent must exist.
func (s *Session) Mkdir(ctx context.Context, remotePath string) error {
	dir, name := SplitPath(strings.TrimRight(remotePath, "/"))
	if name == "" {
		return &ValidationError{Op: "mkdir", Name: remotePath, Reason: "directory name is empty"}
	}
	return s.inDir(ctx, dir, func() error {
		_, err := s.submit(ctx, "mkdir", "create-directory", nil, s.selectionForm(nil, "newDirectoryName", name), ExpectStatus)
		return err
	})
}

// CreateFile creates the empty file remotePath.
func (s *Session) CreateFile(ctx context.Context, remotePath string) error {
	dir, name := SplitPath(remotePath)
	if name == "" {
		return &ValidationError{Op: "create file", Name: remotePath, Reason: "file name is empty"}
	}
	return s.inDir(ctx, dir, func() error {
		_, err := s.submit(ctx, "create file", "create-file", nil,
			s.selectionForm(nil, "newFileName", name, "htmlTemplate", "false"), ExpectStatus)
		return err
	})
}

// Archive packs names from dir into a zip archive created in dir. The
// server appends the extension itself, so any extension on archiveName is
// dropped.
func (s *Session) Archive(ctx context.Context, dir, archiveName string, names []string) error {
	if err := requireNames("archive", names); err != nil {
		return err
	}
	if strings.Contains(archiveName, "/") {
		return &ValidationError{Op: "archive", Name: archiveName, Reason: "archive is always created in the selection's directory"}
	}
	base := strings.TrimSuffix(archiveName, path.Ext(archiveName))
	if base == "" {
		return &ValidationError{Op: "archive", Name: archiveName, Reason: "archive name is empty"}
	}
	return s.inDir(ctx, dir, func() error {
		_, err := s.submit(ctx, "archive", "create-archive", nil, s.selectionForm(names, "archiveName", base), ExpectStatusFail)
		return err
	})
}

// Extract unpacks the archive remotePath into its own directory,
// overwriting existing files.
func (s *Session) Extract(ctx context.Context, remotePath string) error {
	dir, name := SplitPath(remotePath)
	if name == "" {
		return &ValidationError{Op: "extract", Name: remotePath, Reason: "archive name is empty"}
	}
	return s.inDir(ctx, dir, func() error {
		_, err := s.submit(ctx, "extract", "extract-archive", url.Values{"overwrite": {"true"}},
			s.selectionForm([]string{name}), ExpectStatusMessages)
		return err
	})
}

// SizeReport is the answer of CalculateSize.
type SizeReport struct {
	Summary string            // server's human readable total
	Sizes   map[string]string // per selected name, when the server sends them
}

// CalculateSize asks the server for the total size of names in dir. Names
// must be bare: the endpoint only resolves them against the current
// directory.
func (s *Session) CalculateSize(ctx context.Context, dir string, names []string) (*SizeReport, error) {
	if err := requireNames("calculate size", names); err != nil {
		return nil, err
	}
	if err := requireFlat("calculate size", names); err != nil {
		return nil, err
	}
	var report *SizeReport
	err := s.inDir(ctx, dir, func() error {
		res, err := s.submit(ctx, "calculate size", "calculate-size", nil, s.selectionForm(names), ExpectStatusMessages)
		if err != nil {
			return err
		}
		report = &SizeReport{Summary: res.Message, Sizes: map[string]string{}}
		for name, size := range res.Envelope.FileSizes {
			report.Sizes[name] = string(size)
		}
		return nil
	})
	return report, err
}

// Edit replaces the contents of remotePath with content, stored with LF
// line endings as UTF-8.
func (s *Session) Edit(ctx context.Context, remotePath, content string) error {
	dir, name := SplitPath(remotePath)
	if name == "" {
		return &ValidationError{Op: "edit", Name: remotePath, Reason: "file name is empty"}
	}
	query := url.Values{"currentDir": {dir}, "file": {name}}
	return s.inDir(ctx, dir, func() error {
		f := s.selectionForm(nil,
			"eol", "LF",
			"saveCodepage", "UTF-8",
			"loadCodepage", "UTF-8",
			"code", content,
		)
		_, err := s.submit(ctx, "edit", "edit", query, f, ExpectHTMLError)
		return err
	})
}

func requireNames(op string, names []string) error {
	if len(names) == 0 {
		return &ValidationError{Op: op, Reason: "no files selected"}
	}
	for _, n := range names {
		if n == "" {
			return &ValidationError{Op: op, Reason: "empty file name in selection"}
		}
	}
	return nil
}

func requireFlat(op string, names []string) error {
	for _, n := range names {
		if strings.Contains(n, "/") {
			return &ValidationError{Op: op, Name: n, Reason: "names must not contain a path separator"}
		}
	}
	return nil
}

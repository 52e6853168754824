package panel

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// CleanDir normalises a remote directory: absolute, no trailing slash,
// "" and "." meaning the top-level directory.
func CleanDir(dir string) string {
	if dir == "" {
		return "/"
	}
	return path.Clean("/" + dir)
}

// SplitPath splits a remote path into its directory and bare file name.
// A path without a slash lives in the top-level directory.
func SplitPath(p string) (dir, name string) {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return "/", p
	}
	return CleanDir(p[:i]), p[i+1:]
}

// Selection is a set of bare names inside one directory.
type Selection struct {
	Dir   string
	Names []string
}

// GroupByDir turns path arguments into one Selection per directory.
// Directories appear in order of first mention; names keep caller order.
func GroupByDir(paths []string) []Selection {
	var groups []Selection
	index := map[string]int{}
	for _, p := range paths {
		dir, name := SplitPath(strings.TrimRight(p, "/"))
		i, ok := index[dir]
		if !ok {
			i = len(groups)
			index[dir] = i
			groups = append(groups, Selection{Dir: dir})
		}
		groups[i].Names = append(groups[i].Names, name)
	}
	return groups
}

// EnsureContext moves the server's current directory to dir and verifies
// that the server reports dir back. The top-level directory is only listed
// when an earlier call moved the server away from it.
func (s *Session) EnsureContext(ctx context.Context, dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}
	return s.ensureContext(ctx, dir)
}

func (s *Session) ensureContext(ctx context.Context, dir string) error {
	dir = CleanDir(dir)
	if dir == "/" && s.cwd == "/" {
		return nil
	}

	l, err := s.list(ctx, dir)
	if err != nil {
		var opErr *OperationError
		if errors.As(err, &opErr) {
			return &ContextError{Dir: dir, Message: opErr.Message}
		}
		return err
	}
	if reported := CleanDir(l.Dir); reported != dir {
		if l.Dir == "" {
			return &ContextError{Dir: dir, Message: "server did not report its current directory"}
		}
		return &ContextError{Dir: dir, Reported: l.Dir}
	}
	s.logger.Debug("directory context", "dir", dir)
	return nil
}

// inDir runs fn with the server positioned in dir, holding the session lock
// for both steps.
func (s *Session) inDir(ctx context.Context, dir string, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.ensureContext(ctx, dir); err != nil {
		return err
	}
	return fn()
}

func (s *Session) list(ctx context.Context, dir string) (*Listing, error) {
	s.cwd = ""
	raw, err := s.call(ctx, http.MethodGet, fmPath+"list-data", url.Values{"currentDir": {dir}}, nil)
	if err != nil {
		return nil, err
	}
	res := Interpret(raw, ExpectStatus)
	if err := res.Err("list " + dir); err != nil {
		return nil, err
	}
	l, err := listingFrom(res.Envelope)
	if err != nil {
		return nil, err
	}
	if l.Dir != "" {
		s.cwd = CleanDir(l.Dir)
	}
	return l, nil
}

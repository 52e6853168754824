package fakepanel

import (
	"errors"
	"path"
	"sort"
	"strings"
	"time"
)

var (
	errNotFound = errors.New("no such file or directory")
	errExists   = errors.New("file exists")
	errNotDir   = errors.New("not a directory")
	errIsDir    = errors.New("is a directory")
)

type node struct {
	dir  bool
	data []byte
	mod  time.Time
}

// tree is the in-memory filesystem behind the fake panel. Keys are clean
// absolute paths; "/" always exists.
type tree struct {
	nodes map[string]*node
	now   func() time.Time
}

func newTree(now func() time.Time) *tree {
	return &tree{
		nodes: map[string]*node{"/": {dir: true, mod: now()}},
		now:   now,
	}
}

func clean(p string) string {
	return path.Clean("/" + p)
}

func (t *tree) get(p string) (*node, bool) {
	n, ok := t.nodes[clean(p)]
	return n, ok
}

func (t *tree) isDir(p string) bool {
	n, ok := t.get(p)
	return ok && n.dir
}

func (t *tree) parentDir(p string) error {
	if !t.isDir(path.Dir(clean(p))) {
		return errNotFound
	}
	return nil
}

func (t *tree) mkdir(p string) error {
	p = clean(p)
	if _, ok := t.nodes[p]; ok {
		return errExists
	}
	if err := t.parentDir(p); err != nil {
		return err
	}
	t.nodes[p] = &node{dir: true, mod: t.now()}
	return nil
}

func (t *tree) mkdirAll(p string) error {
	p = clean(p)
	if n, ok := t.nodes[p]; ok {
		if !n.dir {
			return errNotDir
		}
		return nil
	}
	if err := t.mkdirAll(path.Dir(p)); err != nil {
		return err
	}
	t.nodes[p] = &node{dir: true, mod: t.now()}
	return nil
}

func (t *tree) writeFile(p string, data []byte) error {
	p = clean(p)
	if n, ok := t.nodes[p]; ok && n.dir {
		return errIsDir
	}
	if err := t.parentDir(p); err != nil {
		return err
	}
	t.nodes[p] = &node{data: append([]byte(nil), data...), mod: t.now()}
	return nil
}

// children returns the sorted base names directly inside dir.
func (t *tree) children(dir string) []string {
	dir = clean(dir)
	prefix := dir + "/"
	if dir == "/" {
		prefix = "/"
	}
	var names []string
	for p := range t.nodes {
		if p == "/" || !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := p[len(prefix):]
		if rest != "" && !strings.Contains(rest, "/") {
			names = append(names, rest)
		}
	}
	sort.Strings(names)
	return names
}

// subtree returns p and everything below it, parents before children.
func (t *tree) subtree(p string) []string {
	p = clean(p)
	if _, ok := t.nodes[p]; !ok {
		return nil
	}
	out := []string{p}
	if p == "/" {
		return out
	}
	for q := range t.nodes {
		if strings.HasPrefix(q, p+"/") {
			out = append(out, q)
		}
	}
	sort.Strings(out[1:])
	return out
}

func (t *tree) remove(p string) {
	for _, q := range t.subtree(p) {
		delete(t.nodes, q)
	}
}

func (t *tree) copy(src, dst string) error {
	src, dst = clean(src), clean(dst)
	if _, ok := t.nodes[src]; !ok {
		return errNotFound
	}
	if _, ok := t.nodes[dst]; ok {
		return errExists
	}
	if err := t.parentDir(dst); err != nil {
		return err
	}
	if dst == src || strings.HasPrefix(dst, src+"/") {
		return errors.New("cannot copy a directory into itself")
	}
	for _, q := range t.subtree(src) {
		n := *t.nodes[q]
		n.data = append([]byte(nil), n.data...)
		t.nodes[dst+strings.TrimPrefix(q, src)] = &n
	}
	return nil
}

func (t *tree) move(src, dst string) error {
	if err := t.copy(src, dst); err != nil {
		return err
	}
	t.remove(src)
	return nil
}

// size returns the byte total of p and everything below it.
func (t *tree) size(p string) int64 {
	var total int64
	for _, q := range t.subtree(p) {
		total += int64(len(t.nodes[q].data))
	}
	return total
}

// Package fakepanel emulates the file-manager endpoints of the web panel
// on an in-memory filesystem. It reproduces the quirks the client has to
// cope with: a per-login current directory that silently falls back to "/"
// for unknown paths, a different error convention per endpoint, and 200
// responses carrying HTML error boxes.
package fakepanel

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultToken is the anti-forgery token served when Options.Token is empty.
	DefaultToken = "fake-forgery-token"

	tokenField = "forgery_protection_token"
	cookieName = "PLESKSESSID"
	fmPrefix   = "/smb/file-manager/"
)

// Options configures a Server.
type Options struct {
	// Username and Password enable the login page. With an empty
	// Username every request is treated as logged in.
	Username string
	Password string
	Token    string
	Logger   *slog.Logger
}

// Request is one request as the fake panel saw it.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Form   url.Values
	Keys   []string // form field names in wire order

	sid string
	cwd string
}

// Server is an http.Handler; wrap it in httptest.NewServer.
type Server struct {
	opts   Options
	logger *slog.Logger
	mux    *http.ServeMux

	mu        sync.Mutex
	fs        *tree
	sessions  map[string]bool
	cwds      map[string]string // current directory per login; "" is the anonymous session
	redirects map[string]string
	requests  []Request
}

// New returns a Server with an empty filesystem.
func New(opts Options) *Server {
	if opts.Token == "" {
		opts.Token = DefaultToken
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		opts:      opts,
		logger:    logger.With("module", "fakepanel"),
		fs:        newTree(time.Now),
		sessions:  map[string]bool{},
		cwds:      map[string]string{},
		redirects: map[string]string{},
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/login_up.php3", s.handleLogin)
	s.mux.HandleFunc("/smb/", s.handleLanding)
	s.handle("list-data", http.MethodGet, s.listData)
	s.handle("download", http.MethodGet, s.download)
	s.handle("upload", http.MethodPost, s.upload)
	s.handle("delete", http.MethodPost, s.delete)
	s.handle("copy-files", http.MethodPost, s.copyFiles(false))
	s.handle("move-files", http.MethodPost, s.copyFiles(true))
	s.handle("rename", http.MethodPost, s.rename)
	s.handle("create-directory", http.MethodPost, s.createDirectory)
	s.handle("create-file", http.MethodPost, s.createFile)
	s.handle("create-archive", http.MethodPost, s.createArchive)
	s.handle("extract-archive", http.MethodPost, s.extractArchive)
	s.handle("calculate-size", http.MethodPost, s.calculateSize)
	s.handle("edit", http.MethodPost, s.edit)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("ServeHTTP", "method", r.Method, "url", r.URL.String())
	s.mux.ServeHTTP(w, r)
}

// WriteFile stores data at p, creating parent directories.
func (s *Server) WriteFile(p string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fs.mkdirAll(path.Dir(clean(p))); err != nil {
		return err
	}
	return s.fs.writeFile(p, data)
}

// Mkdir creates p and its parents.
func (s *Server) Mkdir(p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fs.mkdirAll(p)
}

// ReadFile returns the contents of the file p.
func (s *Server) ReadFile(p string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.fs.get(p)
	if !ok || n.dir {
		return nil, false
	}
	return append([]byte(nil), n.data...), true
}

// Exists reports whether p is a file or directory.
func (s *Server) Exists(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.fs.get(p)
	return ok
}

// IsDir reports whether p is a directory.
func (s *Server) IsDir(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fs.isDir(p)
}

// Redirect makes a listing of from report to as the current directory,
// the way the panel lands somewhere else than asked.
func (s *Server) Redirect(from, to string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redirects[clean(from)] = clean(to)
}

// cwdOf returns the current directory of one login; new logins start at "/".
func (s *Server) cwdOf(sid string) string {
	if d, ok := s.cwds[sid]; ok {
		return d
	}
	return "/"
}

// Requests returns the file-manager requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// LastRequest returns the most recent file-manager request with the given
// endpoint name, e.g. "copy-files".
func (s *Server) LastRequest(endpoint string) (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.requests) - 1; i >= 0; i-- {
		if s.requests[i].Path == fmPrefix+endpoint {
			return s.requests[i], true
		}
	}
	return Request{}, false
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("login_name") != s.opts.Username || r.PostForm.Get("passwd") != s.opts.Password {
		writeHTML(w, http.StatusOK, errorBox("Incorrect username or password."))
		return
	}

	sid := uuid.NewString()
	s.mu.Lock()
	s.sessions[sid] = true
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: cookieName, Value: sid, Path: "/", HttpOnly: true})
	writeHTML(w, http.StatusOK, "<p>Welcome</p>")
}

func (s *Server) authorized(r *http.Request) bool {
	if s.opts.Username == "" {
		return true
	}
	c, err := r.Cookie(cookieName)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[c.Value]
}

func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/smb/" {
		http.NotFound(w, r)
		return
	}
	if !s.authorized(r) {
		writeHTML(w, http.StatusOK, `<form method="post" action="/login_up.php3"><input name="login_name"></form>`)
		return
	}
	writeHTML(w, http.StatusOK, "<p>Home</p>", fmt.Sprintf(`<meta name="%s" content="%s">`, tokenField, html.EscapeString(s.opts.Token)))
}

type handlerFunc func(w http.ResponseWriter, req Request)

// handle registers a file-manager endpoint behind the session, method and
// token checks, and records the request.
func (s *Server) handle(endpoint, method string, fn handlerFunc) {
	s.mux.HandleFunc(fmPrefix+endpoint, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !s.authorized(r) {
			writeHTML(w, http.StatusForbidden, errorBox("Access denied. Please log in."))
			return
		}

		req := Request{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query(), Form: url.Values{}}
		var upload *uploadedFile
		if method == http.MethodPost {
			var err error
			if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
				upload, err = readMultipart(r, &req)
			} else {
				err = readOrderedForm(r.Body, &req)
			}
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if c, err := r.Cookie(cookieName); err == nil && s.sessions[c.Value] {
			req.sid = c.Value
		}
		req.cwd = s.cwdOf(req.sid)
		s.requests = append(s.requests, req)
		if method == http.MethodPost && req.Form.Get(tokenField) != s.opts.Token {
			writeHTML(w, http.StatusForbidden, errorBox("Invalid forgery protection token."))
			return
		}
		if upload != nil {
			s.storeUpload(w, req, upload)
			return
		}
		fn(w, req)
	})
}

// readOrderedForm decodes a urlencoded body and keeps the field order.
func readOrderedForm(body io.Reader, req *Request) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	for _, pair := range strings.Split(string(b), "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return err
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			return err
		}
		req.Keys = append(req.Keys, key)
		req.Form.Add(key, value)
	}
	return nil
}

type uploadedFile struct {
	name string
	data []byte
}

func readMultipart(r *http.Request, req *Request) (*uploadedFile, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	var file *uploadedFile
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		b, err := io.ReadAll(part)
		if err != nil {
			return nil, err
		}
		req.Keys = append(req.Keys, part.FormName())
		if part.FileName() != "" {
			file = &uploadedFile{name: part.FileName(), data: b}
			continue
		}
		req.Form.Add(part.FormName(), string(b))
	}
	if file == nil {
		return nil, fmt.Errorf("no file part")
	}
	return file, nil
}

// entry is the listing row as the panel sends it: numbers as strings.
type entry struct {
	Name                  string `json:"name"`
	IsDirectory           bool   `json:"isDirectory"`
	FilePerms             string `json:"filePerms"`
	Size                  string `json:"size"`
	User                  string `json:"user"`
	Group                 string `json:"group"`
	ModificationTimestamp string `json:"modificationTimestamp"`
}

type statusMessage struct {
	Status  string `json:"status"`
	Content string `json:"content"`
}

func (s *Server) owner() string {
	if s.opts.Username != "" {
		return s.opts.Username
	}
	return "admin"
}

func (s *Server) listData(w http.ResponseWriter, req Request) {
	dir := clean(req.Query.Get("currentDir"))
	cwd := dir
	switch {
	case s.redirects[dir] != "":
		cwd = s.redirects[dir]
	case !s.fs.isDir(dir):
		if _, ok := s.fs.get(dir); ok {
			writeJSON(w, map[string]any{"status": "error", "message": fmt.Sprintf("%s is not a directory", dir)})
			return
		}
		cwd = "/"
	}
	s.cwds[req.sid] = cwd
	req.cwd = cwd

	data := []entry{}
	for _, name := range s.fs.children(req.cwd) {
		n, _ := s.fs.get(path.Join(req.cwd, name))
		e := entry{
			Name:                  name,
			IsDirectory:           n.dir,
			FilePerms:             "rw-r--r--",
			Size:                  strconv.Itoa(len(n.data)),
			User:                  s.owner(),
			Group:                 "psacln",
			ModificationTimestamp: strconv.FormatInt(n.mod.Unix(), 10),
		}
		if n.dir {
			e.FilePerms = "rwxr-xr-x"
			e.Size = "4096"
		}
		data = append(data, e)
	}
	writeJSON(w, map[string]any{"data": data, "state": map[string]string{"currentDir": req.cwd}})
}

func (s *Server) download(w http.ResponseWriter, req Request) {
	p := path.Join(clean(req.Query.Get("currentDir")), req.Query.Get("file"))
	n, ok := s.fs.get(p)
	if !ok || n.dir {
		writeHTML(w, http.StatusOK, errorBox(fmt.Sprintf("Unable to download %s: file not found.", req.Query.Get("file"))))
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(p)))
	w.Header().Set("Content-Length", strconv.Itoa(len(n.data)))
	w.Write(n.data)
}

func (s *Server) upload(w http.ResponseWriter, req Request) {
	http.Error(w, "multipart body required", http.StatusBadRequest)
}

func (s *Server) storeUpload(w http.ResponseWriter, req Request, f *uploadedFile) {
	if err := s.fs.writeFile(path.Join(req.cwd, f.name), f.data); err != nil {
		writeHTML(w, http.StatusOK, errorBox(fmt.Sprintf("Unable to upload %s: %v", f.name, err)))
		return
	}
	writeJSON(w, map[string]any{"status": "success"})
}

func ids(form url.Values) []string {
	var names []string
	for i := 0; ; i++ {
		v, ok := form["ids["+strconv.Itoa(i)+"]"]
		if !ok {
			return names
		}
		names = append(names, v[0])
	}
}

func (s *Server) delete(w http.ResponseWriter, req Request) {
	for _, name := range ids(req.Form) {
		s.fs.remove(path.Join(req.cwd, name))
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
}

func (s *Server) copyFiles(move bool) handlerFunc {
	verb := "copied"
	if move {
		verb = "moved"
	}
	return func(w http.ResponseWriter, req Request) {
		dest := clean(req.Query.Get("destinationDir"))
		if !s.fs.isDir(dest) {
			writeStatusMessages(w, "error", fmt.Sprintf("destination %s not found", dest))
			return
		}
		names := ids(req.Form)
		for _, name := range names {
			src, dst := path.Join(req.cwd, name), path.Join(dest, name)
			if req.Query.Get("overwrite") != "true" {
				if _, ok := s.fs.get(dst); ok {
					writeStatusMessages(w, "error", "file exists")
					return
				}
			}
			var err error
			if move {
				err = s.fs.move(src, dst)
			} else {
				err = s.fs.copy(src, dst)
			}
			if err != nil {
				writeStatusMessages(w, "error", fmt.Sprintf("%s: %v", name, err))
				return
			}
		}
		writeStatusMessages(w, "success", fmt.Sprintf("%d item(s) %s", len(names), verb))
	}
}

func (s *Server) rename(w http.ResponseWriter, req Request) {
	names := ids(req.Form)
	if len(names) != 1 {
		writeJSON(w, map[string]any{"status": "error", "message": "select exactly one file"})
		return
	}
	newName := req.Form.Get("newFileName")
	if newName == "" || strings.Contains(newName, "/") {
		writeJSON(w, map[string]any{"status": "error", "message": "invalid file name"})
		return
	}
	if err := s.fs.move(path.Join(req.cwd, names[0]), path.Join(req.cwd, newName)); err != nil {
		writeJSON(w, map[string]any{"status": "error", "message": err.Error()})
		return
	}
	writeJSON(w, map[string]any{"status": "success"})
}

func (s *Server) createDirectory(w http.ResponseWriter, req Request) {
	if err := s.fs.mkdir(path.Join(req.cwd, req.Form.Get("newDirectoryName"))); err != nil {
		writeJSON(w, map[string]any{"status": "error", "message": err.Error()})
		return
	}
	writeJSON(w, map[string]any{"status": "success"})
}

func (s *Server) createFile(w http.ResponseWriter, req Request) {
	p := path.Join(req.cwd, req.Form.Get("newFileName"))
	if _, ok := s.fs.get(p); ok {
		writeJSON(w, map[string]any{"status": "error", "message": errExists.Error()})
		return
	}
	if err := s.fs.writeFile(p, nil); err != nil {
		writeJSON(w, map[string]any{"status": "error", "message": err.Error()})
		return
	}
	writeJSON(w, map[string]any{"status": "success"})
}

func (s *Server) createArchive(w http.ResponseWriter, req Request) {
	name := req.Form.Get("archiveName")
	if name == "" {
		writeJSON(w, map[string]any{"status": "fail", "message": "archive name is required"})
		return
	}
	target := path.Join(req.cwd, name+".zip")
	if _, ok := s.fs.get(target); ok {
		writeJSON(w, map[string]any{"status": "fail", "message": fmt.Sprintf("%s.zip already exists", name)})
		return
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, id := range ids(req.Form) {
		src := path.Join(req.cwd, id)
		members := s.fs.subtree(src)
		if members == nil {
			writeJSON(w, map[string]any{"status": "fail", "message": fmt.Sprintf("%s: %v", id, errNotFound)})
			return
		}
		for _, m := range members {
			n, _ := s.fs.get(m)
			rel := strings.TrimPrefix(m, req.cwd)
			rel = strings.TrimPrefix(rel, "/")
			if n.dir {
				rel += "/"
			}
			fw, err := zw.CreateHeader(&zip.FileHeader{Name: rel, Method: zip.Deflate, Modified: n.mod})
			if err != nil {
				writeJSON(w, map[string]any{"status": "fail", "message": err.Error()})
				return
			}
			fw.Write(n.data)
		}
	}
	if err := zw.Close(); err != nil {
		writeJSON(w, map[string]any{"status": "fail", "message": err.Error()})
		return
	}
	s.fs.writeFile(target, buf.Bytes())
	writeJSON(w, map[string]any{"status": "success"})
}

func (s *Server) extractArchive(w http.ResponseWriter, req Request) {
	names := ids(req.Form)
	if len(names) != 1 {
		writeStatusMessages(w, "error", "select exactly one archive")
		return
	}
	n, ok := s.fs.get(path.Join(req.cwd, names[0]))
	if !ok || n.dir {
		writeStatusMessages(w, "error", fmt.Sprintf("%s: %v", names[0], errNotFound))
		return
	}
	zr, err := zip.NewReader(bytes.NewReader(n.data), int64(len(n.data)))
	if err != nil {
		writeStatusMessages(w, "error", fmt.Sprintf("%s is not a valid archive", names[0]))
		return
	}
	overwrite := req.Query.Get("overwrite") == "true"
	for _, f := range zr.File {
		dst := path.Join(req.cwd, f.Name)
		if strings.HasSuffix(f.Name, "/") {
			if err := s.fs.mkdirAll(dst); err != nil {
				writeStatusMessages(w, "error", err.Error())
				return
			}
			continue
		}
		if _, exists := s.fs.get(dst); exists && !overwrite {
			writeStatusMessages(w, "error", "file exists")
			return
		}
		rc, err := f.Open()
		if err != nil {
			writeStatusMessages(w, "error", err.Error())
			return
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err == nil {
			err = s.fs.mkdirAll(path.Dir(dst))
		}
		if err == nil {
			err = s.fs.writeFile(dst, data)
		}
		if err != nil {
			writeStatusMessages(w, "error", err.Error())
			return
		}
	}
	writeStatusMessages(w, "success", fmt.Sprintf("%s extracted", names[0]))
}

func (s *Server) calculateSize(w http.ResponseWriter, req Request) {
	var total int64
	sizes := map[string]string{}
	for _, name := range ids(req.Form) {
		p := path.Join(req.cwd, name)
		if _, ok := s.fs.get(p); !ok {
			writeStatusMessages(w, "error", fmt.Sprintf("%s: %v", name, errNotFound))
			return
		}
		n := s.fs.size(p)
		sizes[name] = strconv.FormatInt(n, 10)
		total += n
	}
	writeJSON(w, map[string]any{
		"statusMessages": []statusMessage{{Status: "success", Content: fmt.Sprintf("Total size: %d bytes", total)}},
		"fileSizes":      sizes,
	})
}

func (s *Server) edit(w http.ResponseWriter, req Request) {
	p := path.Join(clean(req.Query.Get("currentDir")), req.Query.Get("file"))
	n, ok := s.fs.get(p)
	if !ok || n.dir {
		writeHTML(w, http.StatusOK, errorBox(fmt.Sprintf("Unable to edit %s: file not found.", req.Query.Get("file"))))
		return
	}
	code := req.Form.Get("code")
	if req.Form.Get("eol") == "LF" {
		code = strings.ReplaceAll(code, "\r\n", "\n")
	}
	s.fs.writeFile(p, []byte(code))
	writeHTML(w, http.StatusOK, `<div class="msg-box msg-info">File saved.</div>`)
}

func errorBox(msg string) string {
	return `<div class="msg-box msg-error"><div class="msg-content">` + html.EscapeString(msg) + `</div></div>`
}

func writeHTML(w http.ResponseWriter, status int, body string, head ...string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, "<!DOCTYPE html><html><head>%s</head><body>%s</body></html>", strings.Join(head, ""), body)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeStatusMessages(w http.ResponseWriter, status, content string) {
	writeJSON(w, map[string]any{"statusMessages": []statusMessage{{Status: status, Content: content}}})
}

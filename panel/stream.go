package panel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"

	"pleskfm/markup"
	"pleskfm/transfer"
)

// Download streams the file remotePath into w and returns the number of
// bytes written. A failure after the first chunk leaves w partially
// written; the caller decides what to do with it.
func (s *Session) Download(ctx context.Context, remotePath string, w io.Writer) (int64, error) {
	dir, name := SplitPath(remotePath)
	if name == "" {
		return 0, &ValidationError{Op: "download", Name: remotePath, Reason: "file name is empty"}
	}

	var n int64
	err := s.inDir(ctx, dir, func() error {
		resp, err := s.do(ctx, http.MethodGet, fmPath+"download", url.Values{"currentDir": {dir}, "file": {name}}, nil, "")
		if err != nil {
			return fmt.Errorf("download: %w", err)
		}
		defer resp.Body.Close()

		if resp.Header.Get("Content-Disposition") == "" {
			if err := downloadError(remotePath, resp); err != nil {
				return err
			}
		} else if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &OperationError{Op: "download " + remotePath, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
		}

		body := transfer.NewProgressReader(resp.Body, resp.ContentLength, s.cfg.OnProgress)
		n, err = transfer.Copy(w, body)
		if err != nil {
			return fmt.Errorf("download %s: %w", remotePath, err)
		}
		s.logger.Debug("downloaded", "path", remotePath, "bytes", n)
		return nil
	})
	return n, err
}

// downloadError inspects a response that arrived without an attachment
// header. Pages are scanned for an error box; non-2xx is always a failure.
func downloadError(remotePath string, resp *http.Response) error {
	op := "download " + remotePath
	if !isHTMLContentType(resp.Header.Get("Content-Type")) {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &OperationError{Op: op, Message: http.StatusText(resp.StatusCode)}
		}
		return nil
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("%s: read error page: %w", op, err)
	}
	if msg := markup.ExtractError(bytes.NewReader(b)); msg != "" {
		return &OperationError{Op: op, Message: msg}
	}
	return &OperationError{Op: op, Message: "server returned a page instead of the file: " + snippet(b)}
}

// Upload streams r to remotePath. The parent directory must already exist;
// an existing file is replaced. The body is produced on the fly so memory
// use does not depend on the file size.
func (s *Session) Upload(ctx context.Context, r io.Reader, remotePath string) (int64, error) {
	dir, name := SplitPath(remotePath)
	if name == "" {
		return 0, &ValidationError{Op: "upload", Name: remotePath, Reason: "file name is empty"}
	}

	var n int64
	err := s.inDir(ctx, dir, func() error {
		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		src := transfer.NewProgressReader(r, sizeOf(r), s.cfg.OnProgress)

		done := make(chan error, 1)
		go func() {
			written, err := writeUploadBody(mw, s.token, name, src)
			n = written
			pw.CloseWithError(err)
			done <- err
		}()

		resp, err := s.do(ctx, http.MethodPost, fmPath+"upload", nil, pr, mw.FormDataContentType())
		// Unblocks the writer when the request ended before consuming the body.
		pr.CloseWithError(io.ErrClosedPipe)
		werr := <-done
		if werr != nil && !errors.Is(werr, io.ErrClosedPipe) {
			if resp != nil {
				resp.Body.Close()
			}
			return fmt.Errorf("upload %s: %w", remotePath, werr)
		}
		if err != nil {
			return fmt.Errorf("upload: %w", err)
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return fmt.Errorf("upload %s: read response: %w", remotePath, err)
		}
		s.logger.Debug("response", "path", fmPath+"upload", "body", string(b))
		res := Interpret(Raw{StatusCode: resp.StatusCode, Header: resp.Header, Body: b}, ExpectUpload)
		if err := res.Err("upload " + remotePath); err != nil {
			return err
		}
		if werr != nil {
			return fmt.Errorf("upload %s: server answered before the file was sent: %w", remotePath, werr)
		}
		s.logger.Debug("uploaded", "path", remotePath, "bytes", n)
		return nil
	})
	return n, err
}

// writeUploadBody writes the token field and then the file part, named
// after the file itself.
func writeUploadBody(mw *multipart.Writer, token, name string, src io.Reader) (int64, error) {
	if err := mw.WriteField(TokenField, token); err != nil {
		return 0, err
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(name), escapeQuotes(name)))
	h.Set("Content-Type", "application/octet-stream")
	part, err := mw.CreatePart(h)
	if err != nil {
		return 0, err
	}
	n, err := transfer.Copy(part, src)
	if err != nil {
		return n, err
	}
	return n, mw.Close()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// sizeOf returns the remaining length of r when it is cheap to know, -1
// otherwise.
func sizeOf(r io.Reader) int64 {
	switch v := r.(type) {
	case interface{ Len() int }:
		return int64(v.Len())
	case interface{ Stat() (os.FileInfo, error) }:
		if fi, err := v.Stat(); err == nil {
			return fi.Size()
		}
	}
	return -1
}

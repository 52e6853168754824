// Package markup pulls the two values the client needs out of the panel's HTML:
// the anti-forgery token and the text of an error box.
package markup

import (
	"io"
	"log/slog"
	"strings"

	"golang.org/x/net/html"
)

// TokenMetaName is the name attribute of the meta tag carrying the token.
const TokenMetaName = "forgery_protection_token"

const errorClass = "msg-error"

// void elements never get a matching end tag, so they are not pushed.
var voidTags = map[string]bool{
	"meta":  true,
	"input": true,
	"br":    true,
	"link":  true,
	"img":   true,
	"hr":    true,
}

func logger() *slog.Logger {
	return slog.Default().With("module", "markup")
}

// ExtractToken returns the content of the first
// <meta name="forgery_protection_token"> tag.
func ExtractToken(r io.Reader) (string, bool) {
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return "", false
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "meta" {
				continue
			}
			if attr(tok, "name") == TokenMetaName {
				return attr(tok, "content"), true
			}
		}
	}
}

// ExtractError returns the text inside the first-level
// <div class="... msg-error ..."> container, text nodes joined by a single space.
// Unbalanced markup is tolerated.
func ExtractError(r io.Reader) string {
	s := &errorScanner{}
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(s.parts, " ")
		case html.StartTagToken:
			s.start(z.Token())
		case html.EndTagToken:
			s.end(z.Token().Data)
		case html.TextToken:
			s.text(string(z.Text()))
		}
	}
}

type errorScanner struct {
	stack []string
	level int // stack depth of the open error container, 0 when outside
	parts []string
}

func (s *errorScanner) start(tok html.Token) {
	if voidTags[tok.Data] {
		return
	}
	s.stack = append(s.stack, tok.Data)
	if tok.Data == "div" && strings.Contains(attr(tok, "class"), errorClass) {
		s.level = len(s.stack)
	}
}

func (s *errorScanner) end(tag string) {
	if voidTags[tag] {
		return
	}
	defer func() {
		if s.level > len(s.stack) {
			s.level = 0
		}
	}()
	if n := len(s.stack); n > 0 && s.stack[n-1] == tag {
		s.stack = s.stack[:n-1]
		return
	}
	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i] == tag {
			logger().Warn("missing end tag", "unclosed", s.stack[i+1:], "closing", tag)
			s.stack = s.stack[:i]
			return
		}
	}
	logger().Warn("could not find start tag", "tag", tag, "open", s.stack)
}

func (s *errorScanner) text(data string) {
	if s.level == 0 {
		return
	}
	if t := strings.TrimSpace(data); t != "" {
		s.parts = append(s.parts, t)
	}
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

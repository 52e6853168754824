package panel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Envelope is the JSON shape shared by the file-manager endpoints. Which
// fields are set depends on the endpoint.
type Envelope struct {
	Status         Text            `json:"status"`
	Message        Text            `json:"message"`
	StatusMessages statusMessages  `json:"statusMessages"`
	State          State           `json:"state"`
	Data           json.RawMessage `json:"data"`
	FileSizes      map[string]Text `json:"fileSizes"`
}

// State carries the server-side directory context.
type State struct {
	CurrentDir Text `json:"currentDir"`
}

// StatusMessage is one entry of statusMessages.
type StatusMessage struct {
	Status  Text `json:"status"`
	Content Text `json:"content"`
}

func decodeEnvelope(b []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// statusMessages accepts both a list and a single object.
type statusMessages []StatusMessage

func (m *statusMessages) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*m = nil
		return nil
	case bytes.HasPrefix(b, []byte("{")):
		var one StatusMessage
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		*m = statusMessages{one}
		return nil
	}
	var list []StatusMessage
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	*m = list
	return nil
}

// Text decodes any JSON scalar into its textual form; the panel is not
// consistent about quoting numbers.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	*t = Text(b)
	return nil
}

func (t Text) String() string { return string(t) }

// Entry is one row of a directory listing.
type Entry struct {
	Name                  string `json:"name"`
	IsDirectory           bool   `json:"isDirectory"`
	FilePerms             Text   `json:"filePerms"`
	Size                  Text   `json:"size"`
	User                  Text   `json:"user"`
	Group                 Text   `json:"group"`
	ModificationTimestamp Text   `json:"modificationTimestamp"`
}

// Mode renders the permission column the way ls does.
func (e Entry) Mode() string {
	kind := "-"
	if e.IsDirectory {
		kind = "d"
	}
	return kind + strings.ReplaceAll(string(e.FilePerms), " ", "")
}

// ModTime returns the modification time, zero when the server sent none.
func (e Entry) ModTime() time.Time {
	sec, err := strconv.ParseInt(strings.TrimSpace(string(e.ModificationTimestamp)), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

// Bytes returns the size as a number, ok is false when it is not numeric.
func (e Entry) Bytes() (n uint64, ok bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(string(e.Size)), 10, 64)
	return n, err == nil
}

// Format renders the entry as one ls -l style line.
func (e Entry) Format() string {
	stamp := ""
	if t := e.ModTime(); !t.IsZero() {
		stamp = t.Local().Format("2006-01-02 15:04:05")
	}
	return fmt.Sprintf("%-10s  %-12s %-12s %12s  %s  %s", e.Mode(), e.User, e.Group, e.Size, stamp, e.Name)
}

// Listing is the decoded result of one list-data call.
type Listing struct {
	Dir     string // directory the server reports as current
	Entries []Entry
}

func listingFrom(env *Envelope) (*Listing, error) {
	l := &Listing{Dir: string(env.State.CurrentDir)}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return l, nil
	}
	if err := json.Unmarshal(env.Data, &l.Entries); err != nil {
		return nil, fmt.Errorf("decode listing data: %w", err)
	}
	return l, nil
}

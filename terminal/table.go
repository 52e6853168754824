package terminal

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"pleskfm/panel"
)

// TableFormatter handles formatted table output
type TableFormatter struct {
	w     io.Writer
	table *tablewriter.Table
}

// NewTableFormatter creates a new table formatter writing to w
func NewTableFormatter(w io.Writer) *TableFormatter {
	table := tablewriter.NewWriter(w)
	table.Header("Name", "Type", "Size", "Modified", "Perms", "Owner")
	table.Options(
		tablewriter.WithRendition(tw.Rendition{Borders: tw.Border{Left: tw.Pending, Right: tw.Pending, Top: tw.Pending, Bottom: tw.Pending}}),
		tablewriter.WithPadding(tw.Padding{Left: " ", Right: " "}),
	)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.MaxWidth = 0
		cfg.Header = tw.CellConfig{
			Alignment: tw.CellAlignment{
				Global: tw.AlignLeft,
			},
		}
		cfg.Row = tw.CellConfig{
			Alignment: tw.CellAlignment{
				Global: tw.AlignLeft,
			},
		}
		cfg.Behavior = tw.Behavior{}
	})

	return &TableFormatter{w: w, table: table}
}

// FormatListing renders one directory listing
func (tf *TableFormatter) FormatListing(l *panel.Listing) error {
	if len(l.Entries) == 0 {
		_, err := fmt.Fprintln(tf.w, "Directory is empty")
		return err
	}

	tf.table.Reset()
	tf.table.Header("Name", "Type", "Size", "Modified", "Perms", "Owner")

	for _, e := range l.Entries {
		size := "-"
		if !e.IsDirectory {
			if n, ok := e.Bytes(); ok {
				size = formatSize(n)
			} else {
				size = e.Size.String()
			}
		}

		modified := ""
		if t := e.ModTime(); !t.IsZero() {
			modified = t.Local().Format("Jan 02 2006 15:04")
		}

		name := e.Name
		fileType := "file"
		if e.IsDirectory {
			name += "/"
			fileType = "dir"
		} else if ext := path.Ext(e.Name); ext != "" {
			fileType = strings.ToUpper(strings.TrimPrefix(ext, "."))
		}

		// Truncate long names by display width
		name = runewidth.Truncate(name, 50, "...")

		owner := e.User.String()
		if e.Group != "" {
			owner += ":" + e.Group.String()
		}

		if err := tf.table.Append([]string{name, fileType, size, modified, e.Mode(), owner}); err != nil {
			return err
		}
	}

	return tf.table.Render()
}

// formatSize formats a file size in human-readable format
func formatSize(size uint64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := uint64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

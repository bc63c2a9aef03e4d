package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/tonimelisma/drivebackup/internal/remote"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Statusf prints a status message to stderr unless quiet mode is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(cc.Flags.Quiet, format, args...)
}

// Size unit constants for human-readable formatting.
const (
	sizeKB = 1024
	sizeMB = 1024 * 1024
	sizeGB = 1024 * 1024 * 1024
	sizeTB = 1024 * 1024 * 1024 * 1024
)

// formatSize returns a human-readable size string (e.g. "1.2 MB").
func formatSize(bytes int64) string {
	switch {
	case bytes >= sizeTB:
		return fmt.Sprintf("%.1f TB", float64(bytes)/float64(sizeTB))
	case bytes >= sizeGB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(sizeGB))
	case bytes >= sizeMB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(sizeMB))
	case bytes >= sizeKB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(sizeKB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// formatTime returns a compact timestamp for display; "-" for the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	if t.Year() == time.Now().Year() {
		return t.Format("Jan _2 15:04")
	}

	return t.Format("Jan _2  2006")
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row. The last column is not padded.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		if i == len(cells)-1 {
			parts[i] = cell
			continue
		}

		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.Join(parts, "  "))
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

// objectJSON is the JSON schema for a remote object.
type objectJSON struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	ContentType string    `json:"content_type"`
	Parents     []string  `json:"parents,omitempty"`
	Revision    string    `json:"revision,omitempty"`
	Size        int64     `json:"size"`
	ModifiedAt  time.Time `json:"modified_at,omitzero"`
	Trashed     bool      `json:"trashed,omitempty"`
}

func toObjectJSON(o *remote.Object) objectJSON {
	return objectJSON{
		ID:          o.ID,
		Title:       o.Title,
		Description: o.Description,
		ContentType: o.ContentType,
		Parents:     o.Parents,
		Revision:    o.Revision,
		Size:        o.Size,
		ModifiedAt:  o.ModifiedAt,
		Trashed:     o.Trashed,
	}
}

// printObjects renders objects as a table or, with --json, as a JSON array.
func printObjects(w io.Writer, asJSON bool, objects []remote.Object) error {
	if asJSON {
		out := make([]objectJSON, 0, len(objects))
		for i := range objects {
			out = append(out, toObjectJSON(&objects[i]))
		}

		return printJSON(w, out)
	}

	rows := make([][]string, 0, len(objects))

	for i := range objects {
		o := &objects[i]

		name, size := o.Title, formatSize(o.Size)
		if o.IsFolder() {
			name += "/"
			size = "-"
		}

		rows = append(rows, []string{o.ID, size, formatTime(o.ModifiedAt), name})
	}

	printTable(w, []string{"ID", "SIZE", "MODIFIED", "NAME"}, rows)

	return nil
}

// printObject renders a single object as key/value lines or JSON.
func printObject(w io.Writer, asJSON bool, o *remote.Object) error {
	if asJSON {
		return printJSON(w, toObjectJSON(o))
	}

	fmt.Fprintf(w, "ID:       %s\n", o.ID)
	fmt.Fprintf(w, "Title:    %s\n", o.Title)
	fmt.Fprintf(w, "Type:     %s\n", o.ContentType)
	fmt.Fprintf(w, "Size:     %s\n", formatSize(o.Size))

	if o.Revision != "" {
		fmt.Fprintf(w, "Revision: %s\n", o.Revision)
	}

	if o.Description != "" {
		fmt.Fprintf(w, "Desc:     %s\n", o.Description)
	}

	return nil
}

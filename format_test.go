package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/drivebackup/internal/remote"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"zero", 0, "0 B"},
		{"bytes", 512, "512 B"},
		{"kilobytes", 1536, "1.5 KB"},
		{"megabytes", 5242880, "5.0 MB"},
		{"gigabytes", 1610612736, "1.5 GB"},
		{"terabytes", 1099511627776, "1.0 TB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatSize(tt.bytes))
		})
	}
}

func TestFormatTime(t *testing.T) {
	now := time.Now()
	sameYear := time.Date(now.Year(), time.March, 15, 10, 30, 0, 0, time.UTC)
	diffYear := time.Date(2020, time.December, 25, 8, 0, 0, 0, time.UTC)

	t.Run("same year", func(t *testing.T) {
		result := formatTime(sameYear)
		assert.Contains(t, result, "Mar")
		assert.Contains(t, result, "15")
		assert.Contains(t, result, "10:30")
	})

	t.Run("different year", func(t *testing.T) {
		result := formatTime(diffYear)
		assert.Contains(t, result, "Dec")
		assert.Contains(t, result, "25")
		assert.Contains(t, result, "2020")
	})

	t.Run("zero", func(t *testing.T) {
		assert.Equal(t, "-", formatTime(time.Time{}))
	})
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer

	headers := []string{"NAME", "SIZE", "MODIFIED"}
	rows := [][]string{
		{"file.txt", "1.2 MB", "Jan 15 10:30"},
		{"folder/", "0 B", "Feb  1 09:00"},
	}

	printTable(&buf, headers, rows)
	output := buf.String()

	assert.Contains(t, output, "NAME")
	assert.Contains(t, output, "SIZE")
	assert.Contains(t, output, "MODIFIED")
	assert.Contains(t, output, "file.txt")
	assert.Contains(t, output, "folder/")
}

func TestPrintObjects_Table(t *testing.T) {
	var buf bytes.Buffer

	objects := []remote.Object{
		{ID: "f1", Title: "Photos", ContentType: remote.FolderContentType},
		{ID: "o1", Title: "notes.txt", ContentType: "text/plain", Size: 2048},
	}

	require.NoError(t, printObjects(&buf, false, objects))

	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "Photos/")
	assert.Contains(t, out, "2.0 KB")
	assert.Contains(t, out, "notes.txt")
}

func TestPrintObjects_JSON(t *testing.T) {
	var buf bytes.Buffer

	objects := []remote.Object{{ID: "o1", Title: "a.txt", ContentType: "text/plain", Parents: []string{"f1"}}}

	require.NoError(t, printObjects(&buf, true, objects))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "o1", got[0]["id"])
	assert.Equal(t, []any{"f1"}, got[0]["parents"])
	assert.NotContains(t, got[0], "modified_at")
	assert.NotContains(t, got[0], "trashed")
}

func TestPrintObject_Text(t *testing.T) {
	var buf bytes.Buffer

	o := &remote.Object{ID: "o1", Title: "a.txt", ContentType: "text/plain", Size: 10, Description: "uploaded by sync"}
	require.NoError(t, printObject(&buf, false, o))

	out := buf.String()
	assert.Contains(t, out, "a.txt")
	assert.Contains(t, out, "uploaded by sync")
	assert.NotContains(t, out, "Revision:")
}

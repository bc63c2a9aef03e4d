package backup

import (
	"mime"
	"path/filepath"
	"strings"
)

// UnknownContentType is returned when a file's content type cannot be determined.
const UnknownContentType = "application/unknown"

// MimeTable maps a lower-cased extension, including its leading dot, to a
// content type.
type MimeTable interface {
	Lookup(ext string) (string, bool)
}

// MapTable is a fixed extension table. Keys are normalized on lookup, so
// ".PDF" and ".pdf" entries behave the same.
type MapTable map[string]string

// Lookup implements MimeTable.
func (m MapTable) Lookup(ext string) (string, bool) {
	for k, v := range m {
		if strings.EqualFold(k, ext) && v != "" {
			return v, true
		}
	}

	return "", false
}

// SystemTable consults the platform MIME database (/etc/mime.types and the
// Go built-ins on Unix, the registry on Windows).
type SystemTable struct{}

// Lookup implements MimeTable.
func (SystemTable) Lookup(ext string) (string, bool) {
	ct := mime.TypeByExtension(ext)
	if ct == "" {
		return "", false
	}

	return ct, true
}

// ChainTable consults each table in order and returns the first hit.
type ChainTable []MimeTable

// Lookup implements MimeTable.
func (c ChainTable) Lookup(ext string) (string, bool) {
	for _, t := range c {
		if t == nil {
			continue
		}

		if ct, ok := t.Lookup(ext); ok {
			return ct, true
		}
	}

	return "", false
}

// MimeResolver maps file names to content types through an injected table.
type MimeResolver struct {
	table MimeTable
}

// NewMimeResolver returns a resolver backed by table. A nil table makes
// every lookup resolve to UnknownContentType.
func NewMimeResolver(table MimeTable) *MimeResolver {
	return &MimeResolver{table: table}
}

// Resolve returns the content type for filename, or UnknownContentType when
// the name has no extension, the extension is unmapped, or no table is set.
func (r *MimeResolver) Resolve(filename string) string {
	if r == nil || r.table == nil {
		return UnknownContentType
	}

	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if ext == "" || ext == "." {
		return UnknownContentType
	}

	ct, ok := r.table.Lookup(ext)
	if !ok || ct == "" {
		return UnknownContentType
	}

	return ct
}

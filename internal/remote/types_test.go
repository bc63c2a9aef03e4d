package remote

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryMatches(t *testing.T) {
	folder := &Object{ID: "f1", Title: "Backup", ContentType: FolderContentType, Parents: []string{RootID}}
	file := &Object{ID: "o1", Title: "Backup", ContentType: "text/plain", Parents: []string{"f1"}}
	trashed := &Object{ID: "f2", Title: "Backup", ContentType: FolderContentType, Trashed: true}

	tests := []struct {
		name string
		q    Query
		obj  *Object
		want bool
	}{
		{"zero query matches file", Query{}, file, true},
		{"zero query skips trashed", Query{}, trashed, false},
		{"include trashed", Query{IncludeTrashed: true}, trashed, true},
		{"title match", Query{Title: "Backup"}, folder, true},
		{"title mismatch", Query{Title: "backup"}, folder, false},
		{"folders only skips file", Query{Title: "Backup", FoldersOnly: true}, file, false},
		{"folders only keeps folder", Query{FoldersOnly: true}, folder, true},
		{"parent match", Query{ParentID: "f1"}, file, true},
		{"parent mismatch", Query{ParentID: "f1"}, folder, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.q.Matches(tt.obj))
		})
	}
}

func TestObjectClone_DoesNotShareParents(t *testing.T) {
	orig := &Object{ID: "o1", Parents: []string{"a"}}
	c := orig.Clone()
	c.Parents[0] = "b"

	assert.Equal(t, "a", orig.Parents[0])
}

func TestIsLocalIO(t *testing.T) {
	assert.False(t, IsLocalIO(nil))
	assert.False(t, IsLocalIO(errors.New("quota exceeded")))
	assert.True(t, IsLocalIO(fmt.Errorf("draining body: %w", ErrLocalIO)))
	assert.True(t, IsLocalIO(fmt.Errorf("reading: %w", io.ErrUnexpectedEOF)))
	assert.True(t, IsLocalIO(&fs.PathError{Op: "open", Path: "/x", Err: fs.ErrNotExist}))
}

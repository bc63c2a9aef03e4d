package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/tonimelisma/drivebackup/internal/remote"
)

var errInjected = errors.New("injected failure")

// memStore is an in-memory Store that records every call.
type memStore struct {
	mu sync.Mutex

	objects map[string]*remote.Object
	order   []string
	nextID  int

	pageSize int // objects per List page; 0 returns everything in one page

	calls   []string
	content map[string][]byte

	failOps      map[string]error // op name -> error returned
	failListPage int              // 1-based page number that fails; 0 disables

	// listed counts List calls so failListPage can be matched.
	listed int
}

func newMemStore() *memStore {
	return &memStore{
		objects: make(map[string]*remote.Object),
		content: make(map[string][]byte),
		failOps: make(map[string]error),
	}
}

func (m *memStore) record(call string) {
	m.calls = append(m.calls, call)
}

func (m *memStore) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.calls)
}

func (m *memStore) countCalls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0

	for _, c := range m.calls {
		if c == op {
			n++
		}
	}

	return n
}

// seed adds obj directly, bypassing call recording.
func (m *memStore) seed(obj remote.Object) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if obj.ID == "" {
		m.nextID++
		obj.ID = fmt.Sprintf("seed-%d", m.nextID)
	}

	m.objects[obj.ID] = obj.Clone()
	m.order = append(m.order, obj.ID)
}

func (m *memStore) List(_ context.Context, q remote.Query, pageToken string) (remote.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(OpList)
	m.listed++

	if m.failListPage > 0 && m.listed == m.failListPage {
		return remote.Page{}, errInjected
	}

	if err := m.failOps[OpList]; err != nil {
		return remote.Page{}, err
	}

	var matched []remote.Object

	for _, id := range m.order {
		if obj := m.objects[id]; q.Matches(obj) {
			matched = append(matched, *obj.Clone())
		}
	}

	start := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return remote.Page{}, fmt.Errorf("bad page token %q", pageToken)
		}

		start = n
	}

	if m.pageSize == 0 || start+m.pageSize >= len(matched) {
		return remote.Page{Objects: matched[min(start, len(matched)):]}, nil
	}

	end := start + m.pageSize

	return remote.Page{Objects: matched[start:end], NextPageToken: strconv.Itoa(end)}, nil
}

func (m *memStore) Get(_ context.Context, id string) (*remote.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(OpGet)

	if err := m.failOps[OpGet]; err != nil {
		return nil, err
	}

	obj, ok := m.objects[id]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", id, errNotFound)
	}

	return obj.Clone(), nil
}

var errNotFound = errors.New("not found")

func (m *memStore) Insert(_ context.Context, meta remote.Metadata, content io.Reader) (*remote.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(OpInsert)

	if err := m.failOps[OpInsert]; err != nil {
		return nil, err
	}

	m.nextID++
	obj := &remote.Object{
		ID:          fmt.Sprintf("obj-%d", m.nextID),
		Title:       meta.Title,
		Description: meta.Description,
		ContentType: meta.ContentType,
		Parents:     append([]string(nil), meta.Parents...),
		Revision:    "1",
	}

	if content != nil {
		data, err := io.ReadAll(content)
		if err != nil {
			return nil, err
		}

		m.content[obj.ID] = data
		obj.Size = int64(len(data))
	}

	m.objects[obj.ID] = obj
	m.order = append(m.order, obj.ID)

	return obj.Clone(), nil
}

func (m *memStore) Update(
	_ context.Context, id string, meta remote.Metadata, content io.Reader, newRevision bool,
) (*remote.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(OpUpdate)

	if err := m.failOps[OpUpdate]; err != nil {
		return nil, err
	}

	obj, ok := m.objects[id]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", id, errNotFound)
	}

	obj.Title = meta.Title
	obj.Description = meta.Description
	obj.ContentType = meta.ContentType

	if meta.Parents != nil {
		obj.Parents = append([]string(nil), meta.Parents...)
	}

	if content != nil {
		data, err := io.ReadAll(content)
		if err != nil {
			return nil, err
		}

		m.content[id] = data
		obj.Size = int64(len(data))
	}

	if newRevision {
		rev, _ := strconv.Atoi(obj.Revision)
		obj.Revision = strconv.Itoa(rev + 1)
	}

	return obj.Clone(), nil
}

func (m *memStore) Trash(_ context.Context, id string) (*remote.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(OpTrash)

	if err := m.failOps[OpTrash]; err != nil {
		return nil, err
	}

	obj, ok := m.objects[id]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", id, errNotFound)
	}

	obj.Trashed = true

	return obj.Clone(), nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(OpDelete)

	if err := m.failOps[OpDelete]; err != nil {
		return err
	}

	if _, ok := m.objects[id]; !ok {
		return fmt.Errorf("object %s: %w", id, errNotFound)
	}

	delete(m.objects, id)

	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)

			break
		}
	}

	return nil
}

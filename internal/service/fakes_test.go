package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vizboard/dashboard/internal/model"
)

// fakeStorage is an in-memory ObjectStorage that records calls and tracks
// how many puts are in flight at once.
type fakeStorage struct {
	mu         sync.Mutex
	containers map[string]map[string][]byte

	// putHook, when set, is consulted before every put; a non-nil return
	// fails that put. putOptsHook additionally sees the put options.
	putHook     func(container, path string) error
	putOptsHook func(container, path string, opts PutOptions) error
	createHook  func(name string, publicPolicy bool) error
	listErr     error
	mergeErr    error

	putCalls    int
	deleteCalls int
	listCalls   int
	mergeCalls  int

	inFlight    int
	maxInFlight int
}

func newFakeStorage(containers ...string) *fakeStorage {
	s := &fakeStorage{containers: make(map[string]map[string][]byte)}
	for _, name := range containers {
		s.containers[name] = make(map[string][]byte)
	}
	return s
}

func (s *fakeStorage) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putCalls + s.deleteCalls + s.listCalls + s.mergeCalls
}

func (s *fakeStorage) object(container, path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	objects, ok := s.containers[container]
	if !ok {
		return nil, false
	}
	data, ok := objects[path]
	return data, ok
}

func (s *fakeStorage) objectCount(container string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.containers[container])
}

func (s *fakeStorage) ListContainers(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	names := make([]string, 0, len(s.containers))
	for name := range s.containers {
		names = append(names, name)
	}
	return names, nil
}

func (s *fakeStorage) CreateContainer(ctx context.Context, name string, publicPolicy bool) error {
	if s.createHook != nil {
		if err := s.createHook(name, publicPolicy); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.containers[name] == nil {
		s.containers[name] = make(map[string][]byte)
	}
	return nil
}

func (s *fakeStorage) DeleteContainer(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.containers, name)
	return nil
}

func (s *fakeStorage) GrantPublicPolicy(ctx context.Context, name string) error {
	return nil
}

func (s *fakeStorage) PutObject(ctx context.Context, container, path string, data []byte, opts PutOptions) (string, error) {
	s.mu.Lock()
	s.putCalls++
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	hook := s.putHook
	optsHook := s.putOptsHook
	s.mu.Unlock()

	// Give concurrent puts a chance to overlap so maxInFlight is honest.
	time.Sleep(time.Millisecond)

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if hook != nil {
		if err := hook(container, path); err != nil {
			return "", err
		}
	}
	if optsHook != nil {
		if err := optsHook(container, path, opts); err != nil {
			return "", err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.containers[container] == nil {
		s.containers[container] = make(map[string][]byte)
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	s.containers[container][path] = stored
	return "http://storage.local/" + container + "/" + path, nil
}

func (s *fakeStorage) DeleteObject(ctx context.Context, container, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls++
	if objects, ok := s.containers[container]; ok {
		delete(objects, path)
	}
	return nil
}

func (s *fakeStorage) MergeChunks(ctx context.Context, container, path string, chunkPaths []string, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeCalls++
	if s.mergeErr != nil {
		return "", s.mergeErr
	}

	objects, ok := s.containers[container]
	if !ok {
		return "", fmt.Errorf("no such container %s", container)
	}
	var merged []byte
	for _, chunkPath := range chunkPaths {
		chunk, ok := objects[chunkPath]
		if !ok {
			return "", fmt.Errorf("missing chunk %s", chunkPath)
		}
		merged = append(merged, chunk...)
	}
	objects[path] = merged
	return "http://storage.local/" + container + "/" + path, nil
}

// fakeProvision is a ProvisionClient backed by the same fakeStorage.
type fakeProvision struct {
	storage *fakeStorage
	err     error
	calls   int
}

func (p *fakeProvision) ProvisionContainers(ctx context.Context, names []string) error {
	p.calls++
	if p.err != nil {
		return p.err
	}
	for _, name := range names {
		if err := p.storage.CreateContainer(ctx, name, true); err != nil {
			return err
		}
	}
	return nil
}

// fakeRepo is an in-memory DatasetRepository. insertFailures and
// updateFailures fail that many writes before letting one through, to
// exercise the record-write tier cascade.
type fakeRepo struct {
	mu             sync.Mutex
	records        map[uint]model.DatasetRecord
	nextID         uint
	insertFailures int
	updateFailures int
	insertCalls    int
	findCalls      int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[uint]model.DatasetRecord), nextID: 1}
}

func (r *fakeRepo) seed(record model.DatasetRecord) uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	record.ID = r.nextID
	r.nextID++
	r.records[record.ID] = record
	return record.ID
}

func (r *fakeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func (r *fakeRepo) Insert(ctx context.Context, record *model.DatasetRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertCalls++
	if r.insertFailures > 0 {
		r.insertFailures--
		return fmt.Errorf("constraint violation")
	}
	record.ID = r.nextID
	r.nextID++
	r.records[record.ID] = *record
	return nil
}

func (r *fakeRepo) Update(ctx context.Context, record *model.DatasetRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateFailures > 0 {
		r.updateFailures--
		return fmt.Errorf("constraint violation")
	}
	if record.ID == 0 {
		return fmt.Errorf("update without id")
	}
	r.records[record.ID] = *record
	return nil
}

func (r *fakeRepo) FindByID(ctx context.Context, id uint) (*model.DatasetRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (r *fakeRepo) FindByOwnerAndName(ctx context.Context, ownerID uint, name string) (*model.DatasetRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findCalls++
	for _, record := range r.records {
		if record.OwnerID == ownerID && record.Name == name {
			found := record
			return &found, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) ListByOwner(ctx context.Context, ownerID uint) ([]model.DatasetRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.DatasetRecord
	for _, record := range r.records {
		if record.OwnerID == ownerID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (r *fakeRepo) Delete(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
	return nil
}

// fakeNotifier records lifecycle events.
type fakeNotifier struct {
	mu        sync.Mutex
	progress  []int
	completed int
	failed    []string
	changed   int
}

func (n *fakeNotifier) NotifyProgress(ownerID uint, handle string, percent int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.progress = append(n.progress, percent)
}

func (n *fakeNotifier) NotifyComplete(ownerID uint, handle string, record *model.DatasetRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed++
}

func (n *fakeNotifier) NotifyFailed(ownerID uint, handle string, reason string, retryable bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, reason)
}

func (n *fakeNotifier) NotifyDatasetsChanged(ownerID uint) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changed++
}

func (n *fakeNotifier) changedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.changed
}

// fakePreview is an in-memory PreviewCache.
type fakePreview struct {
	mu    sync.Mutex
	rows  map[string]*model.PreviewRows
	saves int
}

func newFakePreview() *fakePreview {
	return &fakePreview{rows: make(map[string]*model.PreviewRows)}
}

func (p *fakePreview) Save(ctx context.Context, attemptID string, rows *model.PreviewRows) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saves++
	p.rows[attemptID] = rows
	return nil
}

func (p *fakePreview) Get(ctx context.Context, attemptID string) (*model.PreviewRows, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rows[attemptID], nil
}

func (p *fakePreview) Delete(ctx context.Context, attemptID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.rows, attemptID)
	return nil
}

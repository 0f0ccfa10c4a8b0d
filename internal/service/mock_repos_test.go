package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"polylab/backend/internal/model"
	"polylab/backend/internal/repository"
)

// ── 共享内存存储 ──
// 所有 mock repository 共用一份数据，mockTransactor 负责快照与回滚

type mockStore struct {
	mu   sync.Mutex
	txMu sync.Mutex // 串行化事务，相当于计数行锁

	capabilities map[string]*model.Capability
	methods      map[string]*model.TestMethod
	ioNumbers    map[string]*model.IONumber
	requests     map[string]*model.Request // request_number → request
	assignments  []model.TestingAssignment

	// ── 故障注入 ──
	vanished       map[string]bool // 取号时视为已删除的能力组
	nextRunErr     error
	createErr      error
	failCreateCall int // 第 n 次 Request.Create 返回 createErr，0 表示每次
	createCalls    int
	batchErr       error
	listErr        error
	txCount        int
	listedIDs      []string // 最近一次 ListByIDs 收到的 ID
}

func newMockStore() *mockStore {
	return &mockStore{
		capabilities: make(map[string]*model.Capability),
		methods:      make(map[string]*model.TestMethod),
		ioNumbers:    make(map[string]*model.IONumber),
		requests:     make(map[string]*model.Request),
		vanished:     make(map[string]bool),
	}
}

func (s *mockStore) addCapability(id, shortName string, runNo int64) {
	s.capabilities[id] = &model.Capability{
		CapabilityID: id,
		ShortName:    shortName,
		Name:         shortName + " Lab",
		ReqRunNo:     runNo,
	}
}

func (s *mockStore) addMethod(id, code, capabilityID string) {
	m := &model.TestMethod{MethodID: id, MethodCode: code, Name: code, IsActive: true}
	if capabilityID != "" {
		cid := capabilityID
		m.CapabilityID = &cid
	}
	s.methods[id] = m
}

func (s *mockStore) runNo(capabilityID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capabilities[capabilityID].ReqRunNo
}

func (s *mockStore) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *mockStore) assignmentsOf(requestID string) []model.TestingAssignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.TestingAssignment
	for _, a := range s.assignments {
		if a.RequestID == requestID {
			out = append(out, a)
		}
	}
	return out
}

func (s *mockStore) requestByID(id string) *model.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if r.RequestID == id {
			return r
		}
	}
	return nil
}

type storeSnapshot struct {
	runNos      map[string]int64
	requests    map[string]*model.Request
	assignments int
}

func (s *mockStore) snapshot() storeSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := storeSnapshot{
		runNos:      make(map[string]int64, len(s.capabilities)),
		requests:    make(map[string]*model.Request, len(s.requests)),
		assignments: len(s.assignments),
	}
	for id, c := range s.capabilities {
		snap.runNos[id] = c.ReqRunNo
	}
	for k, v := range s.requests {
		snap.requests[k] = v
	}
	return snap
}

func (s *mockStore) restore(snap storeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, n := range snap.runNos {
		s.capabilities[id].ReqRunNo = n
	}
	s.requests = snap.requests
	s.assignments = s.assignments[:snap.assignments]
}

// ── Mock Transactor ──

type mockTransactor struct {
	store *mockStore
	repo  *repository.Repository
}

func (t *mockTransactor) Transaction(_ context.Context, fn func(txRepo *repository.Repository) error) error {
	t.store.txMu.Lock()
	defer t.store.txMu.Unlock()

	t.store.mu.Lock()
	t.store.txCount++
	t.store.mu.Unlock()

	snap := t.store.snapshot()
	if err := fn(t.repo); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

// ── Mock CapabilityRepository ──

type mockCapabilityRepo struct{ store *mockStore }

func (m *mockCapabilityRepo) NextRunNumber(_ context.Context, capabilityID string) (*repository.RunNumber, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	if m.store.nextRunErr != nil {
		return nil, m.store.nextRunErr
	}
	c, ok := m.store.capabilities[capabilityID]
	if !ok || m.store.vanished[capabilityID] {
		return nil, gorm.ErrRecordNotFound
	}
	c.ReqRunNo++
	return &repository.RunNumber{
		CapabilityID: c.CapabilityID,
		ShortName:    c.ShortName,
		Value:        c.ReqRunNo - 1,
	}, nil
}

// ── Mock TestMethodRepository ──

type mockTestMethodRepo struct{ store *mockStore }

func (m *mockTestMethodRepo) ListByIDs(_ context.Context, ids []string) ([]model.TestMethod, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	m.store.listedIDs = ids
	var result []model.TestMethod
	for _, id := range ids {
		tm, ok := m.store.methods[id]
		if !ok {
			continue
		}
		cp := *tm
		cp.Capability = nil
		if cp.CapabilityID != nil {
			if c, ok := m.store.capabilities[*cp.CapabilityID]; ok {
				cc := *c
				cp.Capability = &cc
			}
		}
		result = append(result, cp)
	}
	return result, nil
}

// ── Mock IONumberRepository ──

type mockIONumberRepo struct{ store *mockStore }

func (m *mockIONumberRepo) GetActiveByNumber(_ context.Context, ioNumber string) (*model.IONumber, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	if io, ok := m.store.ioNumbers[ioNumber]; ok && io.IsActive {
		return io, nil
	}
	return nil, gorm.ErrRecordNotFound
}

// ── Mock RequestRepository ──

type mockRequestRepo struct{ store *mockStore }

func (m *mockRequestRepo) Create(_ context.Context, request *model.Request) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	m.store.createCalls++
	if m.store.createErr != nil && (m.store.failCreateCall == 0 || m.store.failCreateCall == m.store.createCalls) {
		return m.store.createErr
	}
	// 与 gorm BeforeCreate 钩子一致
	if err := request.Validate(); err != nil {
		return err
	}
	if _, exists := m.store.requests[request.RequestNumber]; exists {
		return gorm.ErrDuplicatedKey
	}
	cp := *request
	m.store.requests[request.RequestNumber] = &cp
	return nil
}

func (m *mockRequestRepo) GetByNumber(_ context.Context, requestNumber string) (*model.Request, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	r, ok := m.store.requests[requestNumber]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *r
	if c, ok := m.store.capabilities[r.CapabilityID]; ok {
		cc := *c
		cp.Capability = &cc
	}
	cp.Assignments = nil
	for _, a := range m.store.assignments {
		if a.RequestID == r.RequestID {
			cp.Assignments = append(cp.Assignments, a)
		}
	}
	return &cp, nil
}

func (m *mockRequestRepo) List(_ context.Context, filter repository.RequestFilter, offset, limit int) ([]model.Request, int64, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	if m.store.listErr != nil {
		return nil, 0, m.store.listErr
	}
	var matched []model.Request
	for _, r := range m.store.requests {
		if filter.CapabilityID != "" && r.CapabilityID != filter.CapabilityID {
			continue
		}
		if filter.Status != "" && r.RequestStatus != filter.Status {
			continue
		}
		if filter.Priority != "" && r.Priority != filter.Priority {
			continue
		}
		matched = append(matched, *r)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].RequestNumber < matched[j].RequestNumber
	})

	total := int64(len(matched))
	if offset >= len(matched) {
		return []model.Request{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

// ── Mock TestingAssignmentRepository ──

type mockAssignmentRepo struct{ store *mockStore }

func (m *mockAssignmentRepo) BatchCreate(_ context.Context, assignments []model.TestingAssignment) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	if m.store.batchErr != nil {
		return m.store.batchErr
	}
	m.store.assignments = append(m.store.assignments, assignments...)
	return nil
}

// ── Mock SubmissionCache ──

type mockCache struct {
	mu         sync.Mutex
	results    map[string][]byte
	inflight   map[string]bool
	getErr     error
	acquireErr error
	saved      int
}

func newMockCache() *mockCache {
	return &mockCache{results: make(map[string][]byte), inflight: make(map[string]bool)}
}

func (c *mockCache) GetSubmissionResult(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.results[key], nil
}

func (c *mockCache) SaveSubmissionResult(_ context.Context, key string, payload []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[key] = payload
	c.saved++
	return nil
}

func (c *mockCache) AcquireInflight(_ context.Context, key string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acquireErr != nil {
		return false, c.acquireErr
	}
	if c.inflight[key] {
		return false, nil
	}
	c.inflight[key] = true
	return true, nil
}

func (c *mockCache) ReleaseInflight(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, key)
	return nil
}

// ── 组装 ──

func newMockRepository(store *mockStore) *repository.Repository {
	repo := &repository.Repository{
		Capability:        &mockCapabilityRepo{store: store},
		TestMethod:        &mockTestMethodRepo{store: store},
		IONumber:          &mockIONumberRepo{store: store},
		Request:           &mockRequestRepo{store: store},
		TestingAssignment: &mockAssignmentRepo{store: store},
	}
	repo.Tx = &mockTransactor{store: store, repo: repo}
	return repo
}

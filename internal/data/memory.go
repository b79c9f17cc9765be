package data

import (
	"context"
	"errors"
	"sync"
	"time"

	"lti-tool-provider/internal/biz/model"
)

// 内存实现, 用于测试和本地开发

type ltiUserKey struct {
	principalID int64
	varianceKey string
}

// MemoryLtiUserRepo 与 Postgres 实现遵循相同的唯一性和 user_id 冲突规则
type MemoryLtiUserRepo struct {
	mu      sync.RWMutex
	records map[ltiUserKey]*model.LtiUserRecord
	nextID  int64
	now     func() time.Time
}

func NewMemoryLtiUserRepo() *MemoryLtiUserRepo {
	return &MemoryLtiUserRepo{
		records: make(map[ltiUserKey]*model.LtiUserRecord),
		now:     time.Now,
	}
}

func (m *MemoryLtiUserRepo) GetLtiUser(_ context.Context, principalID int64, varianceKey string) (*model.LtiUserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[ltiUserKey{principalID, varianceKey}]
	if !ok {
		return nil, model.ErrRecordNotFound
	}
	return cloneRecord(record), nil
}

func (m *MemoryLtiUserRepo) UpsertLtiUser(_ context.Context, principalID int64, varianceKey string, params model.LaunchParameters) (*model.LtiUserRecord, bool, error) {
	if len(varianceKey) > model.MaxVarianceKeyLength {
		return nil, false, model.ErrVarianceKeyTooLong
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := ltiUserKey{principalID, varianceKey}
	now := m.now()
	if existing, ok := m.records[key]; ok {
		stored := existing.Parameters.Get(model.ParamUserID)
		incoming := params.Get(model.ParamUserID)
		if stored != "" && incoming != "" && stored != incoming {
			return nil, false, model.ErrWrongPrincipal
		}
		existing.Parameters = params.Clone()
		existing.UpdatedAt = now
		return cloneRecord(existing), false, nil
	}

	m.nextID++
	record := &model.LtiUserRecord{
		ID:          m.nextID,
		PrincipalID: principalID,
		VarianceKey: varianceKey,
		Parameters:  params.Clone(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.records[key] = record
	return cloneRecord(record), true, nil
}

// Count 当前记录数
func (m *MemoryLtiUserRepo) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func cloneRecord(r *model.LtiUserRecord) *model.LtiUserRecord {
	out := *r
	out.Parameters = r.Parameters.Clone()
	return &out
}

// MemorySessionStore 按会话 ID 隔离的内存会话
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]map[string][]byte
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]map[string][]byte)}
}

func (m *MemorySessionStore) Bind(sessionID string) model.Session {
	return &memorySession{store: m, id: sessionID}
}

type memorySession struct {
	store *MemorySessionStore
	id    string
}

func (s *memorySession) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	value, ok := s.store.sessions[s.id][key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (s *memorySession) Set(_ context.Context, key string, value []byte) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	values, ok := s.store.sessions[s.id]
	if !ok {
		values = make(map[string][]byte)
		s.store.sessions[s.id] = values
	}
	values[key] = append([]byte(nil), value...)
	return nil
}

func (s *memorySession) Delete(_ context.Context, key string) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	delete(s.store.sessions[s.id], key)
	return nil
}

var errChallengeNotFound = errors.New("auth challenge not found or expired")

type challenge struct {
	value   string
	expires time.Time
}

// MemoryUserRepo 本地用户及认证挑战
type MemoryUserRepo struct {
	mu         sync.Mutex
	users      map[string]*model.User
	challenges map[string]challenge
	nextID     int64
}

func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		users:      make(map[string]*model.User),
		challenges: make(map[string]challenge),
	}
}

func (m *MemoryUserRepo) GetUserByName(_ context.Context, username string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[username]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	out := *user
	return &out, nil
}

func (m *MemoryUserRepo) CreateUser(_ context.Context, user *model.User) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.Username]; ok {
		return 0, model.ErrUserAlreadyExists
	}
	m.nextID++
	stored := *user
	stored.ID = m.nextID
	stored.CreatedAt = time.Now().Format(time.RFC3339)
	m.users[user.Username] = &stored
	return stored.ID, nil
}

func (m *MemoryUserRepo) StoreAuthChallenge(_ context.Context, username, value string, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.challenges[username] = challenge{value: value, expires: time.Now().Add(timeout)}
	return nil
}

// GetAuthChallenge 读取后即删除
func (m *MemoryUserRepo) GetAuthChallenge(_ context.Context, username string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.challenges[username]
	delete(m.challenges, username)
	if !ok || time.Now().After(c.expires) {
		return "", errChallengeNotFound
	}
	return c.value, nil
}

var (
	_ LtiUserRepo        = (*MemoryLtiUserRepo)(nil)
	_ UserRepo           = (*MemoryUserRepo)(nil)
	_ model.SessionStore = (*MemorySessionStore)(nil)
)

package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kosthub/wifi-portal/internal/models"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs the test suite
// and the `database.driver: memory` development mode; it enforces the same
// invariants as the Postgres implementation (active-session uniqueness,
// monotonic counters, one-directional status transitions).
type MemoryStore struct {
	mu sync.RWMutex

	users    map[uuid.UUID]*models.User
	gateways map[uuid.UUID]*models.WifiGateway
	policies map[uuid.UUID]*models.WifiPolicy
	sessions map[uuid.UUID]*models.WifiSession
	events   []*models.EventLog
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[uuid.UUID]*models.User),
		gateways: make(map[uuid.UUID]*models.WifiGateway),
		policies: make(map[uuid.UUID]*models.WifiPolicy),
		sessions: make(map[uuid.UUID]*models.WifiSession),
	}
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error { return nil }

func copyUser(u *models.User) *models.User {
	c := *u
	c.Roles = append(c.Roles[:0:0], u.Roles...)
	return &c
}

func copySession(sess *models.WifiSession) *models.WifiSession {
	c := *sess
	return &c
}

// ========== Users ==========

func (s *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return ErrDuplicateKey
		}
	}

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	s.users[user.ID] = copyUser(user)
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(user), nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			return copyUser(user), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return ErrNotFound
	}
	user.UpdatedAt = time.Now()
	s.users[user.ID] = copyUser(user)
	return nil
}

func (s *MemoryStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *MemoryStore) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*models.User, 0, len(s.users))
	for _, user := range s.users {
		all = append(all, copyUser(user))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	return paginate(all, limit, offset), int64(len(s.users)), nil
}

// ========== Gateways ==========

func (s *MemoryStore) CreateGateway(ctx context.Context, gw *models.WifiGateway) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.gateways {
		if existing.GwID == gw.GwID {
			return ErrDuplicateKey
		}
	}

	if gw.ID == uuid.Nil {
		gw.ID = uuid.New()
	}
	now := time.Now()
	gw.CreatedAt = now
	gw.UpdatedAt = now

	c := *gw
	s.gateways[gw.ID] = &c
	return nil
}

func (s *MemoryStore) GetGateway(ctx context.Context, id uuid.UUID) (*models.WifiGateway, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	gw, ok := s.gateways[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *gw
	return &c, nil
}

func (s *MemoryStore) GetGatewayByGwID(ctx context.Context, gwID string) (*models.WifiGateway, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, gw := range s.gateways {
		if gw.GwID == gwID {
			c := *gw
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateGateway(ctx context.Context, gw *models.WifiGateway) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.gateways[gw.ID]; !ok {
		return ErrNotFound
	}
	gw.UpdatedAt = time.Now()
	c := *gw
	s.gateways[gw.ID] = &c
	return nil
}

func (s *MemoryStore) DeleteGateway(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.gateways[id]; !ok {
		return ErrNotFound
	}
	delete(s.gateways, id)
	return nil
}

func (s *MemoryStore) ListGateways(ctx context.Context, limit, offset int) ([]*models.WifiGateway, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*models.WifiGateway, 0, len(s.gateways))
	for _, gw := range s.gateways {
		c := *gw
		all = append(all, &c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	return paginate(all, limit, offset), int64(len(s.gateways)), nil
}

func (s *MemoryStore) TouchGateway(ctx context.Context, id uuid.UUID, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	gw, ok := s.gateways[id]
	if !ok {
		return nil
	}
	gw.LastSeenAt = &seenAt
	return nil
}

// ========== Policies ==========

func (s *MemoryStore) CreatePolicy(ctx context.Context, policy *models.WifiPolicy) error {
	if err := policy.Quota.Validate(); err != nil {
		return ErrInvalidData
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.policies {
		if existing.Role == policy.Role {
			return ErrDuplicateKey
		}
	}

	if policy.ID == uuid.Nil {
		policy.ID = uuid.New()
	}
	now := time.Now()
	policy.CreatedAt = now
	policy.UpdatedAt = now

	c := *policy
	s.policies[policy.ID] = &c
	return nil
}

func (s *MemoryStore) GetPolicy(ctx context.Context, id uuid.UUID) (*models.WifiPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	policy, ok := s.policies[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *policy
	return &c, nil
}

func (s *MemoryStore) UpdatePolicy(ctx context.Context, policy *models.WifiPolicy) error {
	if err := policy.Quota.Validate(); err != nil {
		return ErrInvalidData
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.policies[policy.ID]; !ok {
		return ErrNotFound
	}
	policy.UpdatedAt = time.Now()
	c := *policy
	s.policies[policy.ID] = &c
	return nil
}

func (s *MemoryStore) DeletePolicy(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.policies[id]; !ok {
		return ErrNotFound
	}
	delete(s.policies, id)
	return nil
}

func (s *MemoryStore) ListPolicies(ctx context.Context, limit, offset int) ([]*models.WifiPolicy, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*models.WifiPolicy, 0, len(s.policies))
	for _, policy := range s.policies {
		c := *policy
		all = append(all, &c)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Priority != all[j].Priority {
			return all[i].Priority > all[j].Priority
		}
		return all[i].Role < all[j].Role
	})

	return paginate(all, limit, offset), int64(len(s.policies)), nil
}

func (s *MemoryStore) ResolvePolicyForRoles(ctx context.Context, roles []string) (*models.WifiPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *models.WifiPolicy
	for _, policy := range s.policies {
		matched := false
		for _, role := range roles {
			if policy.Role == role {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if best == nil || policy.Priority > best.Priority ||
			(policy.Priority == best.Priority && policy.Role < best.Role) {
			best = policy
		}
	}

	if best == nil {
		return nil, ErrNotFound
	}
	c := *best
	return &c, nil
}

// ========== Sessions ==========

func (s *MemoryStore) CreateSession(ctx context.Context, session *models.WifiSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	// Supersede: expire any active session for the same attachment.
	for _, existing := range s.sessions {
		if existing.Status == models.SessionActive &&
			existing.UserID == session.UserID &&
			existing.GatewayID == session.GatewayID &&
			existing.IP == session.IP {
			existing.Status = models.SessionExpired
			t := now
			existing.TerminatedAt = &t
		}
	}

	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	session.CreatedAt = now
	if session.LastSeenAt.IsZero() {
		session.LastSeenAt = now
	}
	session.Status = models.SessionActive

	s.sessions[session.ID] = copySession(session)
	return nil
}

func (s *MemoryStore) GetSession(ctx context.Context, id uuid.UUID) (*models.WifiSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copySession(session), nil
}

// mostRecentActive returns the active session with the latest last_seen_at
// among those matching the predicate. The explicit tie-break keeps lookups
// deterministic when duplicates exist.
func (s *MemoryStore) mostRecentActive(match func(*models.WifiSession) bool) *models.WifiSession {
	var best *models.WifiSession
	for _, session := range s.sessions {
		if session.Status != models.SessionActive || !match(session) {
			continue
		}
		if best == nil || session.LastSeenAt.After(best.LastSeenAt) {
			best = session
		}
	}
	return best
}

func (s *MemoryStore) FindActiveSessionByToken(ctx context.Context, token, ip string) (*models.WifiSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	best := s.mostRecentActive(func(sess *models.WifiSession) bool {
		return sess.Token == token && sess.IP == ip
	})
	if best == nil {
		return nil, ErrNotFound
	}
	return copySession(best), nil
}

func (s *MemoryStore) FindActiveSessionForUser(ctx context.Context, userID uuid.UUID, ip string) (*models.WifiSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	best := s.mostRecentActive(func(sess *models.WifiSession) bool {
		return sess.UserID == userID && sess.IP == ip
	})
	if best == nil {
		return nil, ErrNotFound
	}
	return copySession(best), nil
}

func (s *MemoryStore) TouchSession(ctx context.Context, id uuid.UUID, inDelta, outDelta, uptime int64, seenAt time.Time) error {
	if inDelta < 0 || outDelta < 0 {
		return ErrCounterRegression
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if session.Status != models.SessionActive {
		return ErrSessionNotActive
	}

	session.BytesIn += inDelta
	session.BytesOut += outDelta
	session.Uptime = uptime
	session.LastSeenAt = seenAt
	return nil
}

func (s *MemoryStore) TerminateSession(ctx context.Context, id uuid.UUID, status models.SessionStatus) error {
	if !status.Terminal() {
		return ErrInvalidData
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if session.Status != models.SessionActive {
		return nil
	}

	now := time.Now()
	session.Status = status
	session.TerminatedAt = &now
	return nil
}

func (s *MemoryStore) ListSessions(ctx context.Context, filters SessionFilters, limit, offset int) ([]*models.WifiSession, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*models.WifiSession
	for _, session := range s.sessions {
		if filters.UserID != nil && session.UserID != *filters.UserID {
			continue
		}
		if filters.GatewayID != nil && session.GatewayID != *filters.GatewayID {
			continue
		}
		if filters.Status != nil && session.Status != *filters.Status {
			continue
		}
		all = append(all, copySession(session))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].LastSeenAt.After(all[j].LastSeenAt) })

	total := int64(len(all))
	return paginate(all, limit, offset), total, nil
}

func (s *MemoryStore) SumUserUsage(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, session := range s.sessions {
		if session.UserID != userID {
			continue
		}
		if session.LastSeenAt.Before(since) {
			continue
		}
		total += session.BytesIn + session.BytesOut
	}
	return total, nil
}

func (s *MemoryStore) PurgeSessions(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for id, session := range s.sessions {
		if session.Status != models.SessionActive && session.LastSeenAt.Before(olderThan) {
			delete(s.sessions, id)
			purged++
		}
	}
	return purged, nil
}

// ========== Event Logs ==========

func (s *MemoryStore) CreateEventLog(ctx context.Context, event *models.EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	c := *event
	s.events = append(s.events, &c)
	return nil
}

func (s *MemoryStore) ListEventLogs(ctx context.Context, filters EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*models.EventLog
	for _, event := range s.events {
		if filters.UserID != nil && (event.UserID == nil || *event.UserID != *filters.UserID) {
			continue
		}
		if filters.GatewayID != nil && (event.GatewayID == nil || *event.GatewayID != *filters.GatewayID) {
			continue
		}
		if filters.Type != nil && event.Type != *filters.Type {
			continue
		}
		if filters.Level != nil && event.Level != *filters.Level {
			continue
		}
		if filters.StartTime != nil && event.CreatedAt.Before(*filters.StartTime) {
			continue
		}
		if filters.EndTime != nil && event.CreatedAt.After(*filters.EndTime) {
			continue
		}
		c := *event
		all = append(all, &c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := int64(len(all))
	return paginate(all, limit, offset), total, nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

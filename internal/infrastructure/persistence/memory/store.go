// Package memory implements store.Store in process memory.
// Writes are staged per transaction and applied on commit, so a failed
// transaction leaves no trace.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/youlearn/youlearn-progress/internal/domain/achievement"
	"github.com/youlearn/youlearn-progress/internal/domain/activity"
	"github.com/youlearn/youlearn-progress/internal/domain/progression"
	"github.com/youlearn/youlearn-progress/internal/domain/shared"
	"github.com/youlearn/youlearn-progress/internal/domain/store"
	"github.com/youlearn/youlearn-progress/internal/domain/user"
)

type grantKey struct {
	userID        string
	achievementID string
}

// Store is an in-memory store.Store.
type Store struct {
	mu sync.RWMutex

	users       map[string]*user.User
	usernames   map[string]string
	states      map[string]*progression.State
	events      map[string]activity.History
	grants      map[grantKey]achievement.Grant
	definitions map[string]achievement.Definition
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:       make(map[string]*user.User),
		usernames:   make(map[string]string),
		states:      make(map[string]*progression.State),
		events:      make(map[string]activity.History),
		grants:      make(map[grantKey]achievement.Grant),
		definitions: make(map[string]achievement.Definition),
	}
}

var _ store.Store = (*Store)(nil)

// Atomic implements store.Store.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx := newTx(s, false)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(tx)
}

// View implements store.Store.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return fn(ctx, newTx(s, true))
}

// Catalog implements store.Store.
func (s *Store) Catalog() achievement.CatalogRepository {
	return catalogRepo{s: s}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

func (s *Store) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check uniqueness against writes committed since the tx read.
	for _, u := range tx.users {
		if _, ok := s.users[u.ID()]; ok {
			return shared.ErrUserAlreadyExists
		}
		if _, ok := s.usernames[u.Username()]; ok {
			return shared.ErrUserAlreadyExists
		}
	}
	for id := range tx.updated {
		if _, ok := s.users[id]; !ok {
			return shared.ErrUserNotFound
		}
	}
	for id := range tx.created {
		if _, ok := s.states[id]; ok {
			return shared.ErrUserAlreadyExists
		}
	}
	for k := range tx.grants {
		if _, ok := s.grants[k]; ok {
			return shared.NewDomainError("achievement", "Grant", shared.ErrConflict, "grant committed concurrently")
		}
	}

	for _, u := range tx.users {
		s.users[u.ID()] = u
		s.usernames[u.Username()] = u.ID()
	}
	for id, u := range tx.updated {
		s.users[id] = u
	}
	for id, st := range tx.states {
		s.states[id] = st.Clone()
	}
	for id, evs := range tx.events {
		s.events[id] = append(s.events[id], evs...)
	}
	for k, g := range tx.grants {
		s.grants[k] = g
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTION
// ══════════════════════════════════════════════════════════════════════════════

type memTx struct {
	s        *Store
	readOnly bool

	users   map[string]*user.User
	updated map[string]*user.User
	states  map[string]*progression.State
	created map[string]bool
	events  map[string]activity.History
	grants  map[grantKey]achievement.Grant
}

func newTx(s *Store, readOnly bool) *memTx {
	return &memTx{
		s:        s,
		readOnly: readOnly,
		users:    make(map[string]*user.User),
		updated:  make(map[string]*user.User),
		states:   make(map[string]*progression.State),
		created:  make(map[string]bool),
		events:   make(map[string]activity.History),
		grants:   make(map[grantKey]achievement.Grant),
	}
}

func (t *memTx) Users() user.Repository              { return userRepo{t} }
func (t *memTx) Progress() progression.Repository    { return progressRepo{t} }
func (t *memTx) Activities() activity.Repository     { return activityRepo{t} }
func (t *memTx) Grants() achievement.GrantRepository { return grantRepo{t} }

var errReadOnly = shared.NewDomainError("store", "Write", shared.ErrConflict, "write in read-only transaction")

// ── users ────────────────────────────────────────────────────────────────────

type userRepo struct{ t *memTx }

func (r userRepo) Create(_ context.Context, u *user.User) error {
	if r.t.readOnly {
		return errReadOnly
	}
	r.t.s.mu.RLock()
	_, idTaken := r.t.s.users[u.ID()]
	_, nameTaken := r.t.s.usernames[u.Username()]
	r.t.s.mu.RUnlock()
	if idTaken || nameTaken {
		return shared.ErrUserAlreadyExists
	}
	for _, staged := range r.t.users {
		if staged.Username() == u.Username() {
			return shared.ErrUserAlreadyExists
		}
	}
	r.t.users[u.ID()] = cloneUser(u)
	return nil
}

func (r userRepo) GetByID(_ context.Context, id string) (*user.User, error) {
	if u, ok := r.t.updated[id]; ok {
		return cloneUser(u), nil
	}
	if u, ok := r.t.users[id]; ok {
		return cloneUser(u), nil
	}
	r.t.s.mu.RLock()
	defer r.t.s.mu.RUnlock()
	if u, ok := r.t.s.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, shared.ErrUserNotFound
}

func (r userRepo) Update(ctx context.Context, u *user.User) error {
	if r.t.readOnly {
		return errReadOnly
	}
	if _, ok := r.t.users[u.ID()]; ok {
		r.t.users[u.ID()] = cloneUser(u)
		return nil
	}
	if _, err := r.GetByID(ctx, u.ID()); err != nil {
		return err
	}
	r.t.updated[u.ID()] = cloneUser(u)
	return nil
}

func cloneUser(u *user.User) *user.User {
	c := *u
	return &c
}

// ── progression ──────────────────────────────────────────────────────────────

type progressRepo struct{ t *memTx }

func (r progressRepo) Create(_ context.Context, st *progression.State) error {
	if r.t.readOnly {
		return errReadOnly
	}
	r.t.s.mu.RLock()
	_, exists := r.t.s.states[st.UserID()]
	r.t.s.mu.RUnlock()
	if exists || r.t.created[st.UserID()] {
		return shared.ErrUserAlreadyExists
	}
	r.t.created[st.UserID()] = true
	r.t.states[st.UserID()] = st.Clone()
	return nil
}

func (r progressRepo) GetForUpdate(ctx context.Context, userID string) (*progression.State, error) {
	return r.Get(ctx, userID)
}

func (r progressRepo) Get(_ context.Context, userID string) (*progression.State, error) {
	if st, ok := r.t.states[userID]; ok {
		return st.Clone(), nil
	}
	r.t.s.mu.RLock()
	defer r.t.s.mu.RUnlock()
	if st, ok := r.t.s.states[userID]; ok {
		return st.Clone(), nil
	}
	return nil, shared.ErrUserNotFound
}

func (r progressRepo) Save(ctx context.Context, st *progression.State) error {
	if r.t.readOnly {
		return errReadOnly
	}
	if _, err := r.Get(ctx, st.UserID()); err != nil {
		return err
	}
	r.t.states[st.UserID()] = st.Clone()
	return nil
}

// ── activities ───────────────────────────────────────────────────────────────

type activityRepo struct{ t *memTx }

func (r activityRepo) Append(_ context.Context, e *activity.Event) error {
	if r.t.readOnly {
		return errReadOnly
	}
	c := *e
	r.t.events[e.UserID] = append(r.t.events[e.UserID], &c)
	return nil
}

func (r activityRepo) ListByUser(_ context.Context, userID string) (activity.History, error) {
	r.t.s.mu.RLock()
	committed := r.t.s.events[userID]
	out := make(activity.History, 0, len(committed)+len(r.t.events[userID]))
	for _, e := range committed {
		c := *e
		out = append(out, &c)
	}
	r.t.s.mu.RUnlock()
	for _, e := range r.t.events[userID] {
		c := *e
		out = append(out, &c)
	}
	return out.Sorted(), nil
}

// ── grants ───────────────────────────────────────────────────────────────────

type grantRepo struct{ t *memTx }

func (r grantRepo) Insert(_ context.Context, g achievement.Grant) (bool, error) {
	if r.t.readOnly {
		return false, errReadOnly
	}
	k := grantKey{g.UserID, g.AchievementID}
	if _, ok := r.t.grants[k]; ok {
		return false, nil
	}
	r.t.s.mu.RLock()
	_, ok := r.t.s.grants[k]
	r.t.s.mu.RUnlock()
	if ok {
		return false, nil
	}
	r.t.grants[k] = g
	return true, nil
}

func (r grantRepo) ListByUser(_ context.Context, userID string) ([]achievement.Grant, error) {
	var out []achievement.Grant
	r.t.s.mu.RLock()
	for k, g := range r.t.s.grants {
		if k.userID == userID {
			out = append(out, g)
		}
	}
	r.t.s.mu.RUnlock()
	for k, g := range r.t.grants {
		if k.userID == userID {
			out = append(out, g)
		}
	}
	sortGrantsNewestFirst(out)
	return out, nil
}

func sortGrantsNewestFirst(gs []achievement.Grant) {
	sort.Slice(gs, func(i, j int) bool {
		if gs[i].EarnedAt.Equal(gs[j].EarnedAt) {
			return gs[i].AchievementID < gs[j].AchievementID
		}
		return gs[i].EarnedAt.After(gs[j].EarnedAt)
	})
}

// ── catalog ──────────────────────────────────────────────────────────────────

type catalogRepo struct{ s *Store }

func (r catalogRepo) Seed(_ context.Context, defs []achievement.Definition) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inserted := 0
	for _, d := range defs {
		if _, ok := r.s.definitions[d.ID]; ok {
			continue
		}
		r.s.definitions[d.ID] = d
		inserted++
	}
	return inserted, nil
}

func (r catalogRepo) List(_ context.Context) ([]achievement.Definition, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]achievement.Definition, 0, len(r.s.definitions))
	for _, d := range r.s.definitions {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

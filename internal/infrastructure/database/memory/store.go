// Package memory is an in-process implementation of the repositories, used
// for development and tests. Transactions are serialized: Begin takes the
// store lock and works on a copy that Commit swaps in.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/devilmonastery/ara/internal/domain/entities"
	"github.com/devilmonastery/ara/internal/domain/repositories"
)

type identityKey struct{ provider, login string }

type roleKey struct {
	userID string
	role   entities.Role
	source entities.GrantSource
}

type scopeKey struct{ ownerID, project string }

type groupKey struct{ name, provider string }

type memberKey struct {
	groupID string
	userID  string
	source  entities.GrantSource
}

type state struct {
	users       map[string]entities.User
	identities  map[identityKey]string
	roles       map[roleKey]time.Time
	scopes      map[scopeKey]entities.UserProjectScope
	groups      map[string]entities.UserGroup
	groupNames  map[groupKey]string
	members     map[memberKey]time.Time
	groupScopes map[scopeKey]entities.UserGroupProjectScope
}

func newState() *state {
	return &state{
		users:       make(map[string]entities.User),
		identities:  make(map[identityKey]string),
		roles:       make(map[roleKey]time.Time),
		scopes:      make(map[scopeKey]entities.UserProjectScope),
		groups:      make(map[string]entities.UserGroup),
		groupNames:  make(map[groupKey]string),
		members:     make(map[memberKey]time.Time),
		groupScopes: make(map[scopeKey]entities.UserGroupProjectScope),
	}
}

// clone copies every map. Entities are stored by value; their pointer fields
// are never mutated in place, so sharing them is safe.
func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.identities {
		c.identities[k] = v
	}
	for k, v := range s.roles {
		c.roles[k] = v
	}
	for k, v := range s.scopes {
		c.scopes[k] = v
	}
	for k, v := range s.groups {
		c.groups[k] = v
	}
	for k, v := range s.groupNames {
		c.groupNames[k] = v
	}
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.groupScopes {
		c.groupScopes[k] = v
	}
	return c
}

// Store holds all data in memory
type Store struct {
	sem   chan struct{}
	data  *state
	repos *repositories.Repositories
}

// NewStore creates an empty store
func NewStore() *Store {
	s := &Store{
		sem:  make(chan struct{}, 1),
		data: newState(),
	}
	s.repos = newRepositories(s)
	return s
}

// Repositories returns repositories that apply each call as its own transaction
func (s *Store) Repositories() *repositories.Repositories {
	return s.repos
}

// HealthCheck always succeeds
func (s *Store) HealthCheck(ctx context.Context) error {
	return nil
}

func (s *Store) lock(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) unlock() {
	<-s.sem
}

// view runs fn against the committed state under the store lock
func (s *Store) view(ctx context.Context, fn func(*state) error) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()
	return fn(s.data)
}

// Begin waits for any running transaction to finish and starts a new one
func (s *Store) Begin(ctx context.Context) (repositories.Transaction, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	tx := &transaction{store: s, data: s.data.clone()}
	tx.repos = newRepositories(tx)
	return tx, nil
}

type transaction struct {
	store *Store
	repos *repositories.Repositories

	mu   sync.Mutex
	data *state
	done bool
}

func (t *transaction) view(_ context.Context, fn func(*state) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return repositories.ErrTxDone
	}
	return fn(t.data)
}

func (t *transaction) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return repositories.ErrTxDone
	}
	t.done = true
	t.store.data = t.data
	t.store.unlock()
	return nil
}

func (t *transaction) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil
	}
	t.done = true
	t.data = nil
	t.store.unlock()
	return nil
}

func (t *transaction) GetRepositories() *repositories.Repositories {
	return t.repos
}

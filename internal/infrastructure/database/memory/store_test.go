package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devilmonastery/ara/internal/domain/entities"
	"github.com/devilmonastery/ara/internal/domain/repositories"
)

func strPtr(s string) *string { return &s }

func TestUpsertKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	repos := NewStore().Repositories()

	first := &entities.User{ProviderName: "google", Login: "123", FirstName: strPtr("Ann")}
	inserted, err := repos.Users.Upsert(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)
	require.NotEmpty(t, first.ID)

	second := &entities.User{ProviderName: "google", Login: "123", FirstName: strPtr("Anne"), Email: strPtr("ann@x.com")}
	inserted, err = repos.Users.Upsert(ctx, second)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	got, err := repos.Users.GetByIdentity(ctx, "google", "123")
	require.NoError(t, err)
	assert.Equal(t, "Anne", *got.FirstName)
	assert.Equal(t, "ann@x.com", *got.Email)

	_, err = repos.Users.GetByIdentity(ctx, "github", "123")
	assert.ErrorIs(t, err, repositories.ErrUserNotFound)
}

func TestListUsers(t *testing.T) {
	ctx := context.Background()
	repos := NewStore().Repositories()
	for _, u := range []entities.User{
		{ProviderName: "google", Login: "b"},
		{ProviderName: "github", Login: "z"},
		{ProviderName: "google", Login: "a"},
	} {
		u := u
		_, err := repos.Users.Upsert(ctx, &u)
		require.NoError(t, err)
	}

	all, err := repos.Users.List(ctx, repositories.ListUsersOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "github", all[0].ProviderName)
	assert.Equal(t, "a", all[1].Login)

	google, err := repos.Users.List(ctx, repositories.ListUsersOptions{ProviderName: "google", Offset: 1, Limit: 5})
	require.NoError(t, err)
	require.Len(t, google, 1)
	assert.Equal(t, "b", google[0].Login)

	negative, err := repos.Users.List(ctx, repositories.ListUsersOptions{Offset: -1})
	require.NoError(t, err)
	assert.Len(t, negative, 3)
}

func TestReplaceLoginRolesKeepsAdminGrants(t *testing.T) {
	ctx := context.Background()
	roles := NewStore().Repositories().Roles

	require.NoError(t, roles.Grant(ctx, "u1", entities.RoleAdmin, entities.SourceAdmin))
	require.NoError(t, roles.ReplaceLoginRoles(ctx, "u1", []entities.Role{entities.RoleAdmin, entities.RoleAuditing}))

	rows, err := roles.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.NoError(t, roles.ReplaceLoginRoles(ctx, "u1", nil))
	rows, err = roles.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, entities.RoleAdmin, rows[0].Role)
	assert.Equal(t, entities.SourceAdmin, rows[0].Source)

	assert.ErrorIs(t, roles.Revoke(ctx, "u1", entities.RoleAuditing, entities.SourceLogin), repositories.ErrGrantNotFound)
}

func TestGroups(t *testing.T) {
	ctx := context.Background()
	groups := NewStore().Repositories().Groups

	g := &entities.UserGroup{Name: "qa", ProviderName: "keycloak"}
	require.NoError(t, groups.Ensure(ctx, g))
	again := &entities.UserGroup{Name: "qa", ProviderName: "keycloak"}
	require.NoError(t, groups.Ensure(ctx, again))
	assert.Equal(t, g.ID, again.ID)

	require.NoError(t, groups.ReplaceLoginMemberships(ctx, "u1", []string{g.ID}))
	assert.ErrorIs(t, groups.ReplaceLoginMemberships(ctx, "u1", []string{"missing"}), repositories.ErrGroupNotFound)

	ms, err := groups.ListMemberships(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, ms, 1, "failed replacement leaves memberships untouched")
	assert.Equal(t, "qa", ms[0].Group.Name)

	require.NoError(t, groups.SetProjectScope(ctx, &entities.UserGroupProjectScope{GroupID: g.ID, ProjectCode: "ARA", Scope: entities.ScopeMember}))
	scopes, err := groups.ListProjectScopes(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, scopes, 1)
	assert.Equal(t, entities.ScopeMember, scopes[0].Scope)
}

func TestTransactionRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.GetRepositories().Users.Upsert(ctx, &entities.User{ProviderName: "github", Login: "annl"})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	require.NoError(t, tx.Rollback())

	_, err = store.Repositories().Users.GetByIdentity(ctx, "github", "annl")
	assert.ErrorIs(t, err, repositories.ErrUserNotFound)

	_, err = tx.GetRepositories().Users.GetByIdentity(ctx, "github", "annl")
	assert.ErrorIs(t, err, repositories.ErrTxDone)
}

func TestTransactionCommit(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.GetRepositories().Users.Upsert(ctx, &entities.User{ProviderName: "github", Login: "annl"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.ErrorIs(t, tx.Commit(), repositories.ErrTxDone)
	assert.NoError(t, tx.Rollback())

	_, err = store.Repositories().Users.GetByIdentity(ctx, "github", "annl")
	assert.NoError(t, err)
}

func TestBeginWaitsForRunningTransaction(t *testing.T) {
	store := NewStore()

	tx, err := store.Begin(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = store.Begin(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, tx.Commit())
	tx2, err := store.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx2.Rollback())
}

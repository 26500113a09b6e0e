package memory

import (
	"context"
	"sort"
	"time"

	"github.com/devilmonastery/ara/internal/domain/entities"
	"github.com/devilmonastery/ara/internal/domain/repositories"
	"github.com/devilmonastery/ara/internal/pkg/idgen"
)

type viewer interface {
	view(ctx context.Context, fn func(*state) error) error
}

func newRepositories(v viewer) *repositories.Repositories {
	return &repositories.Repositories{
		Users:  &userRepo{v: v},
		Roles:  &roleRepo{v: v},
		Scopes: &scopeRepo{v: v},
		Groups: &groupRepo{v: v},
	}
}

func now() time.Time {
	return time.Now().UTC()
}

type userRepo struct{ v viewer }

func (r *userRepo) Upsert(ctx context.Context, user *entities.User) (bool, error) {
	var inserted bool
	err := r.v.view(ctx, func(s *state) error {
		ts := user.LastLogin
		if ts.IsZero() {
			ts = now()
			user.LastLogin = ts
		}
		key := identityKey{user.ProviderName, user.Login}
		if id, ok := s.identities[key]; ok {
			stored := s.users[id]
			stored.FirstName = user.FirstName
			stored.LastName = user.LastName
			stored.Email = user.Email
			stored.PictureURL = user.PictureURL
			stored.UpdatedAt = ts
			stored.LastLogin = ts
			s.users[id] = stored

			user.ID = stored.ID
			user.CreatedAt = stored.CreatedAt
			user.UpdatedAt = ts
			return nil
		}

		if user.ID == "" {
			user.ID = idgen.GenerateID()
		}
		user.CreatedAt = ts
		user.UpdatedAt = ts
		stored := *user
		stored.Roles = nil
		s.users[user.ID] = stored
		s.identities[key] = user.ID
		inserted = true
		return nil
	})
	return inserted, err
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*entities.User, error) {
	var out *entities.User
	err := r.v.view(ctx, func(s *state) error {
		u, ok := s.users[id]
		if !ok {
			return repositories.ErrUserNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

func (r *userRepo) GetByIdentity(ctx context.Context, providerName, login string) (*entities.User, error) {
	var out *entities.User
	err := r.v.view(ctx, func(s *state) error {
		id, ok := s.identities[identityKey{providerName, login}]
		if !ok {
			return repositories.ErrUserNotFound
		}
		u := s.users[id]
		out = &u
		return nil
	})
	return out, err
}

func (r *userRepo) List(ctx context.Context, opts repositories.ListUsersOptions) ([]*entities.User, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	var out []*entities.User
	err := r.v.view(ctx, func(s *state) error {
		all := make([]entities.User, 0, len(s.users))
		for _, u := range s.users {
			if opts.ProviderName != "" && u.ProviderName != opts.ProviderName {
				continue
			}
			all = append(all, u)
		}
		sort.Slice(all, func(i, j int) bool {
			if all[i].ProviderName != all[j].ProviderName {
				return all[i].ProviderName < all[j].ProviderName
			}
			return all[i].Login < all[j].Login
		})
		for i := offset; i < len(all) && len(out) < limit; i++ {
			u := all[i]
			out = append(out, &u)
		}
		return nil
	})
	return out, err
}

type roleRepo struct{ v viewer }

func (r *roleRepo) ListByUser(ctx context.Context, userID string) ([]*entities.UserRole, error) {
	var out []*entities.UserRole
	err := r.v.view(ctx, func(s *state) error {
		for k, created := range s.roles {
			if k.userID == userID {
				out = append(out, &entities.UserRole{UserID: k.userID, Role: k.role, Source: k.source, CreatedAt: created})
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role < out[j].Role
		}
		return out[i].Source < out[j].Source
	})
	return out, err
}

func (r *roleRepo) ReplaceLoginRoles(ctx context.Context, userID string, roles []entities.Role) error {
	keep := make(map[entities.Role]bool, len(roles))
	for _, role := range roles {
		keep[role] = true
	}
	return r.v.view(ctx, func(s *state) error {
		for k := range s.roles {
			if k.userID == userID && k.source == entities.SourceLogin && !keep[k.role] {
				delete(s.roles, k)
			}
		}
		ts := now()
		for role := range keep {
			k := roleKey{userID, role, entities.SourceLogin}
			if _, ok := s.roles[k]; !ok {
				s.roles[k] = ts
			}
		}
		return nil
	})
}

func (r *roleRepo) Grant(ctx context.Context, userID string, role entities.Role, source entities.GrantSource) error {
	return r.v.view(ctx, func(s *state) error {
		k := roleKey{userID, role, source}
		if _, ok := s.roles[k]; !ok {
			s.roles[k] = now()
		}
		return nil
	})
}

func (r *roleRepo) Revoke(ctx context.Context, userID string, role entities.Role, source entities.GrantSource) error {
	return r.v.view(ctx, func(s *state) error {
		k := roleKey{userID, role, source}
		if _, ok := s.roles[k]; !ok {
			return repositories.ErrGrantNotFound
		}
		delete(s.roles, k)
		return nil
	})
}

type scopeRepo struct{ v viewer }

func (r *scopeRepo) ListByUser(ctx context.Context, userID string) ([]*entities.UserProjectScope, error) {
	var out []*entities.UserProjectScope
	err := r.v.view(ctx, func(s *state) error {
		for k, sc := range s.scopes {
			if k.ownerID == userID {
				sc := sc
				out = append(out, &sc)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectCode < out[j].ProjectCode })
	return out, err
}

func (r *scopeRepo) Set(ctx context.Context, scope *entities.UserProjectScope) error {
	return r.v.view(ctx, func(s *state) error {
		k := scopeKey{scope.UserID, scope.ProjectCode}
		ts := now()
		scope.UpdatedAt = ts
		if existing, ok := s.scopes[k]; ok {
			scope.CreatedAt = existing.CreatedAt
		} else {
			scope.CreatedAt = ts
		}
		s.scopes[k] = *scope
		return nil
	})
}

func (r *scopeRepo) Revoke(ctx context.Context, userID, projectCode string) error {
	return r.v.view(ctx, func(s *state) error {
		k := scopeKey{userID, projectCode}
		if _, ok := s.scopes[k]; !ok {
			return repositories.ErrGrantNotFound
		}
		delete(s.scopes, k)
		return nil
	})
}

type groupRepo struct{ v viewer }

func (r *groupRepo) Ensure(ctx context.Context, group *entities.UserGroup) error {
	return r.v.view(ctx, func(s *state) error {
		k := groupKey{group.Name, group.ProviderName}
		if id, ok := s.groupNames[k]; ok {
			stored := s.groups[id]
			group.ID = stored.ID
			group.CreatedAt = stored.CreatedAt
			return nil
		}
		if group.ID == "" {
			group.ID = idgen.GenerateID()
		}
		group.CreatedAt = now()
		s.groups[group.ID] = *group
		s.groupNames[k] = group.ID
		return nil
	})
}

func (r *groupRepo) GetByName(ctx context.Context, name, providerName string) (*entities.UserGroup, error) {
	var out *entities.UserGroup
	err := r.v.view(ctx, func(s *state) error {
		id, ok := s.groupNames[groupKey{name, providerName}]
		if !ok {
			return repositories.ErrGroupNotFound
		}
		g := s.groups[id]
		out = &g
		return nil
	})
	return out, err
}

func (r *groupRepo) ListMemberships(ctx context.Context, userID string) ([]*entities.UserGroupMembership, error) {
	var out []*entities.UserGroupMembership
	err := r.v.view(ctx, func(s *state) error {
		for k, joined := range s.members {
			if k.userID != userID {
				continue
			}
			out = append(out, &entities.UserGroupMembership{
				Group:     s.groups[k.groupID],
				Source:    k.source,
				CreatedAt: joined,
			})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group.Name != out[j].Group.Name {
			return out[i].Group.Name < out[j].Group.Name
		}
		return out[i].Source < out[j].Source
	})
	return out, err
}

func (r *groupRepo) ReplaceLoginMemberships(ctx context.Context, userID string, groupIDs []string) error {
	keep := make(map[string]bool, len(groupIDs))
	for _, id := range groupIDs {
		keep[id] = true
	}
	return r.v.view(ctx, func(s *state) error {
		for id := range keep {
			if _, ok := s.groups[id]; !ok {
				return repositories.ErrGroupNotFound
			}
		}
		for k := range s.members {
			if k.userID == userID && k.source == entities.SourceLogin && !keep[k.groupID] {
				delete(s.members, k)
			}
		}
		ts := now()
		for id := range keep {
			k := memberKey{id, userID, entities.SourceLogin}
			if _, ok := s.members[k]; !ok {
				s.members[k] = ts
			}
		}
		return nil
	})
}

func (r *groupRepo) AddMember(ctx context.Context, groupID, userID string, source entities.GrantSource) error {
	return r.v.view(ctx, func(s *state) error {
		if _, ok := s.groups[groupID]; !ok {
			return repositories.ErrGroupNotFound
		}
		k := memberKey{groupID, userID, source}
		if _, ok := s.members[k]; !ok {
			s.members[k] = now()
		}
		return nil
	})
}

func (r *groupRepo) SetProjectScope(ctx context.Context, scope *entities.UserGroupProjectScope) error {
	return r.v.view(ctx, func(s *state) error {
		if _, ok := s.groups[scope.GroupID]; !ok {
			return repositories.ErrGroupNotFound
		}
		k := scopeKey{scope.GroupID, scope.ProjectCode}
		ts := now()
		scope.UpdatedAt = ts
		if existing, ok := s.groupScopes[k]; ok {
			scope.CreatedAt = existing.CreatedAt
		} else {
			scope.CreatedAt = ts
		}
		s.groupScopes[k] = *scope
		return nil
	})
}

func (r *groupRepo) ListProjectScopes(ctx context.Context, groupID string) ([]*entities.UserGroupProjectScope, error) {
	var out []*entities.UserGroupProjectScope
	err := r.v.view(ctx, func(s *state) error {
		for k, sc := range s.groupScopes {
			if k.ownerID == groupID {
				sc := sc
				out = append(out, &sc)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectCode < out[j].ProjectCode })
	return out, err
}

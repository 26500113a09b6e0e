package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/devilmonastery/ara/internal/config"
	"github.com/devilmonastery/ara/internal/domain/entities"
	"github.com/devilmonastery/ara/internal/domain/services"
	"github.com/devilmonastery/ara/internal/pkg/idgen"
)

func newUserCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User management commands",
		Long:  "Commands for inspecting users and managing admin grants in the ARA database",
	}

	// withUsers runs fn against a user service on the configured database
	withUsers := func(fn func(ctx context.Context, svc *services.UserService) error) error {
		return runUserCommand(*configPath, fn)
	}

	cmd.AddCommand(
		newUserListCommand(withUsers),
		newUserShowCommand(withUsers),
		newUserGrantRoleCommand(withUsers),
		newUserRevokeRoleCommand(withUsers),
		newUserGrantScopeCommand(withUsers),
		newUserRevokeScopeCommand(withUsers),
		newUserAddGroupCommand(withUsers),
		newUserGroupScopeCommand(withUsers),
	)

	return cmd
}

type userRunner func(fn func(ctx context.Context, svc *services.UserService) error) error

func runUserCommand(configPath string, fn func(ctx context.Context, svc *services.UserService) error) error {
	if err := idgen.Initialize(1); err != nil {
		return fmt.Errorf("failed to initialize ID generator: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Database.Driver != config.DriverPostgres {
		return fmt.Errorf("user commands require the postgres driver")
	}

	store, err := openStore(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(context.Background(), services.NewUserService(store.uow, store.repos))
}

func newUserListCommand(run userRunner) *cobra.Command {
	var (
		providerName string
		limit        int
		offset       int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, svc *services.UserService) error {
				users, err := svc.ListUsers(ctx, providerName, limit, offset)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tPROVIDER\tLOGIN\tNAME\tLAST LOGIN")
				for _, u := range users {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						u.ID, u.ProviderName, u.Login, u.DisplayName(), u.LastLogin.Format("2006-01-02 15:04"))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&providerName, "provider", "", "Only list users of this provider")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of users")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of users to skip")

	return cmd
}

func newUserShowCommand(run userRunner) *cobra.Command {
	return &cobra.Command{
		Use:     "show <provider> <login>",
		Short:   "Show a user with roles, scopes and groups",
		Args:    cobra.ExactArgs(2),
		Example: `  server user show github annl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, svc *services.UserService) error {
				d, err := svc.GetUser(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				u := d.User
				fmt.Printf("ID:         %s\n", u.ID)
				fmt.Printf("Identity:   %s/%s\n", u.ProviderName, u.Login)
				fmt.Printf("Name:       %s\n", u.DisplayName())
				if u.Email != nil {
					fmt.Printf("Email:      %s\n", *u.Email)
				}
				fmt.Printf("Created:    %s\n", u.CreatedAt.Format("2006-01-02 15:04"))
				fmt.Printf("Last login: %s\n", u.LastLogin.Format("2006-01-02 15:04"))

				fmt.Println("Roles:")
				for _, r := range d.Roles {
					fmt.Printf("  %-12s (%s)\n", r.Role, r.Source)
				}
				fmt.Println("Project scopes:")
				for _, s := range d.Scopes {
					fmt.Printf("  %-12s %s\n", s.ProjectCode, s.Scope)
				}
				fmt.Println("Groups:")
				for _, m := range d.Groups {
					fmt.Printf("  %-12s (%s)\n", m.Group.Name, m.Source)
				}
				return nil
			})
		},
	}
}

func newUserGrantRoleCommand(run userRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "grant-role <provider> <login> <role>",
		Short: "Grant a role that survives later logins",
		Long:  "Grant one of " + roleList() + " to a user",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, svc *services.UserService) error {
				return svc.GrantRole(ctx, args[0], args[1], args[2])
			})
		},
	}
}

func newUserRevokeRoleCommand(run userRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke-role <provider> <login> <role>",
		Short: "Revoke an admin-granted role",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, svc *services.UserService) error {
				return svc.RevokeRole(ctx, args[0], args[1], args[2])
			})
		},
	}
}

func newUserGrantScopeCommand(run userRunner) *cobra.Command {
	return &cobra.Command{
		Use:     "grant-scope <provider> <login> <project> <scope>",
		Short:   "Set a user's scope on a project (ADMIN, MEMBER, OBSERVER)",
		Args:    cobra.ExactArgs(4),
		Example: `  server user grant-scope google 1234567890 ARA MEMBER`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, svc *services.UserService) error {
				return svc.GrantProjectScope(ctx, args[0], args[1], args[2], args[3])
			})
		},
	}
}

func newUserRevokeScopeCommand(run userRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke-scope <provider> <login> <project>",
		Short: "Remove a user's scope on a project",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, svc *services.UserService) error {
				return svc.RevokeProjectScope(ctx, args[0], args[1], args[2])
			})
		},
	}
}

func newUserAddGroupCommand(run userRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "add-group <provider> <login> <group>",
		Short: "Add a user to a group that survives later logins",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, svc *services.UserService) error {
				return svc.AddGroupMember(ctx, args[0], args[1], args[2])
			})
		},
	}
}

func newUserGroupScopeCommand(run userRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "group-scope <provider> <group> <project> <scope>",
		Short: "Set the scope every member of a group has on a project",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, svc *services.UserService) error {
				return svc.SetGroupProjectScope(ctx, args[0], args[1], args[2], args[3])
			})
		},
	}
}

func roleList() string {
	return strings.Join(entities.RoleCodes(entities.AllRoles()), ", ")
}

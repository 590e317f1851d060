package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/khanghh/tenantauth/internal/accounts"
	"github.com/khanghh/tenantauth/internal/common"
	"github.com/khanghh/tenantauth/internal/rbac"
	"github.com/khanghh/tenantauth/internal/tenants"
	"github.com/khanghh/tenantauth/model"
	"github.com/urfave/cli/v2"
)

var (
	tenantFlag = &cli.StringFlag{
		Name:     "tenant",
		Usage:    "Tenant (company) code",
		Required: true,
	}
	emailFlag = &cli.StringFlag{
		Name:     "email",
		Usage:    "Account email",
		Required: true,
	}
	nameFlag = &cli.StringFlag{
		Name:  "name",
		Usage: "Display name",
	}
	roleFlag = &cli.StringFlag{
		Name:     "role",
		Usage:    "Role code",
		Required: true,
	}
	operatorFlag = &cli.StringFlag{
		Name:  "by",
		Usage: "Operator recorded on the grant or revocation",
		Value: "admin-cli",
	}
)

var tenantCommand = &cli.Command{
	Name:  "tenant",
	Usage: "Manage tenants",
	Subcommands: []*cli.Command{
		{
			Name:      "create",
			Usage:     "Create a tenant",
			ArgsUsage: "<code>",
			Flags:     []cli.Flag{nameFlag},
			Action:    adminAction(createTenant),
		},
		{
			Name:      "deactivate",
			Usage:     "Deactivate a tenant and revoke all its refresh tokens",
			ArgsUsage: "<code>",
			Action:    adminAction(deactivateTenant),
		},
	},
}

var accountCommand = &cli.Command{
	Name:  "account",
	Usage: "Manage accounts",
	Subcommands: []*cli.Command{
		{
			Name:  "create",
			Usage: "Create an account with a generated temporary password",
			Flags: []cli.Flag{
				tenantFlag,
				emailFlag,
				nameFlag,
				&cli.BoolFlag{
					Name:  "no-password",
					Usage: "Create an account that only signs in through identity providers",
				},
			},
			Action: adminAction(createAccount),
		},
		{
			Name:   "deactivate",
			Usage:  "Deactivate an account and revoke its refresh tokens",
			Flags:  []cli.Flag{tenantFlag, emailFlag},
			Action: adminAction(deactivateAccount),
		},
	},
}

var roleCommand = &cli.Command{
	Name:  "role",
	Usage: "Manage roles and role grants",
	Subcommands: []*cli.Command{
		{
			Name:      "create",
			Usage:     "Create a tenant role",
			ArgsUsage: "<code>",
			Flags: []cli.Flag{
				tenantFlag,
				nameFlag,
				&cli.StringFlag{Name: "description"},
				&cli.BoolFlag{Name: "system", Usage: "Mark the role as built-in; system roles cannot be deleted"},
			},
			Action: adminAction(createRole),
		},
		{
			Name:      "delete",
			Usage:     "Delete a non-system role",
			ArgsUsage: "<code>",
			Flags:     []cli.Flag{tenantFlag},
			Action:    adminAction(deleteRole),
		},
		{
			Name:   "grant",
			Usage:  "Grant a role to an account",
			Flags:  []cli.Flag{tenantFlag, emailFlag, roleFlag, operatorFlag},
			Action: adminAction(grantRole),
		},
		{
			Name:   "revoke",
			Usage:  "Revoke a role from an account",
			Flags:  []cli.Flag{tenantFlag, emailFlag, roleFlag, operatorFlag},
			Action: adminAction(revokeRole),
		},
	},
}

var permissionCommand = &cli.Command{
	Name:  "permission",
	Usage: "Manage the permission catalog",
	Subcommands: []*cli.Command{
		{
			Name:      "create",
			Usage:     "Create a permission",
			ArgsUsage: "<resource> <action>",
			Flags: []cli.Flag{
				nameFlag,
				&cli.StringFlag{Name: "description"},
			},
			Action: adminAction(createPermission),
		},
		{
			Name:      "attach",
			Usage:     "Attach a permission to a role",
			ArgsUsage: "<permission code>",
			Flags:     []cli.Flag{tenantFlag, roleFlag},
			Action:    adminAction(attachPermission),
		},
	},
}

var auditCommand = &cli.Command{
	Name:  "audit",
	Usage: "Inspect the login audit log",
	Subcommands: []*cli.Command{
		{
			Name:  "show",
			Usage: "Show the latest login attempts for an email",
			Flags: []cli.Flag{
				tenantFlag,
				emailFlag,
				&cli.IntFlag{Name: "limit", Value: 20},
			},
			Action: adminAction(showAudit),
		},
	},
}

// adminAction loads config and the database, then runs fn with the domain
// services.
func adminAction(fn func(ctx *cli.Context, svc *services) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		cfg := mustLoadConfig(ctx)
		db := mustInitDatabase(cfg.MySQL)
		redisStorage := mustInitRedisStorage(cfg.Redis)
		if redisStorage != nil {
			defer redisStorage.Close()
		}
		return fn(ctx, newServices(cfg, db, mustInitPermissionCache(cfg.RBAC, redisStorage)))
	}
}

func requireArgs(ctx *cli.Context, n int) error {
	if ctx.NArg() < n {
		return cli.Exit(fmt.Sprintf("expected %d argument(s), usage: %s %s", n, ctx.Command.FullName(), ctx.Command.ArgsUsage), 2)
	}
	return nil
}

func findAccount(ctx *cli.Context, svc *services) (*model.Account, error) {
	tenantCode := tenants.NormalizeCode(ctx.String(tenantFlag.Name))
	account, err := svc.accounts.FindActiveByEmail(ctx.Context, tenantCode, ctx.String(emailFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("find account %s in %s: %w", ctx.String(emailFlag.Name), tenantCode, err)
	}
	return account, nil
}

func createTenant(ctx *cli.Context, svc *services) error {
	if err := requireArgs(ctx, 1); err != nil {
		return err
	}
	tenant, err := svc.tenants.CreateTenant(ctx.Context, ctx.Args().First(), ctx.String(nameFlag.Name))
	if err != nil {
		return err
	}
	fmt.Printf("Created tenant %s (%s)\n", tenant.Code, tenant.Name)
	return nil
}

func deactivateTenant(ctx *cli.Context, svc *services) error {
	if err := requireArgs(ctx, 1); err != nil {
		return err
	}
	revoked, err := svc.tenants.DeactivateTenant(ctx.Context, ctx.Args().First())
	if err != nil {
		return err
	}
	fmt.Printf("Deactivated tenant %s, revoked %d refresh token(s)\n", tenants.NormalizeCode(ctx.Args().First()), revoked)
	return nil
}

func createAccount(ctx *cli.Context, svc *services) error {
	tenant, err := svc.tenants.GetActiveTenant(ctx.Context, tenants.NormalizeCode(ctx.String(tenantFlag.Name)))
	if err != nil {
		return err
	}
	var password string
	if !ctx.Bool("no-password") {
		password, err = common.GenerateSecret(16)
		if err != nil {
			return err
		}
	}
	account, err := svc.accounts.CreateAccount(ctx.Context, accounts.CreateAccountOptions{
		TenantCode: tenant.Code,
		Email:      ctx.String(emailFlag.Name),
		Name:       ctx.String(nameFlag.Name),
		Password:   password,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Created account %d %s in %s\n", account.ID, account.Email, account.TenantCode)
	if password != "" {
		fmt.Printf("Temporary password: %s\n", password)
	}
	return nil
}

func deactivateAccount(ctx *cli.Context, svc *services) error {
	account, err := findAccount(ctx, svc)
	if err != nil {
		return err
	}
	revoked, err := svc.accounts.Deactivate(ctx.Context, account.ID)
	if err != nil {
		return err
	}
	fmt.Printf("Deactivated account %s, revoked %d refresh token(s)\n", account.Email, revoked)
	return nil
}

func createRole(ctx *cli.Context, svc *services) error {
	if err := requireArgs(ctx, 1); err != nil {
		return err
	}
	role, err := svc.roles.CreateRole(ctx.Context, rbac.CreateRoleOptions{
		TenantCode:  tenants.NormalizeCode(ctx.String(tenantFlag.Name)),
		Code:        ctx.Args().First(),
		Name:        ctx.String(nameFlag.Name),
		Description: ctx.String("description"),
		IsSystem:    ctx.Bool("system"),
	})
	if err != nil {
		return err
	}
	fmt.Printf("Created role %s in %s\n", role.Code, role.TenantCode)
	return nil
}

func deleteRole(ctx *cli.Context, svc *services) error {
	if err := requireArgs(ctx, 1); err != nil {
		return err
	}
	tenantCode := tenants.NormalizeCode(ctx.String(tenantFlag.Name))
	if err := svc.roles.DeleteRole(ctx.Context, tenantCode, ctx.Args().First()); err != nil {
		return err
	}
	fmt.Printf("Deleted role %s in %s\n", ctx.Args().First(), tenantCode)
	return nil
}

func grantRole(ctx *cli.Context, svc *services) error {
	account, err := findAccount(ctx, svc)
	if err != nil {
		return err
	}
	if err := svc.roles.GrantRole(ctx.Context, account, ctx.String(roleFlag.Name), ctx.String(operatorFlag.Name)); err != nil {
		return err
	}
	fmt.Printf("Granted %s to %s\n", ctx.String(roleFlag.Name), account.Email)
	return nil
}

func revokeRole(ctx *cli.Context, svc *services) error {
	account, err := findAccount(ctx, svc)
	if err != nil {
		return err
	}
	revoked, err := svc.roles.RevokeRole(ctx.Context, account, ctx.String(roleFlag.Name), ctx.String(operatorFlag.Name))
	if err != nil {
		return err
	}
	if !revoked {
		fmt.Printf("%s does not hold %s\n", account.Email, ctx.String(roleFlag.Name))
		return nil
	}
	fmt.Printf("Revoked %s from %s\n", ctx.String(roleFlag.Name), account.Email)
	return nil
}

func createPermission(ctx *cli.Context, svc *services) error {
	if err := requireArgs(ctx, 2); err != nil {
		return err
	}
	permission, err := svc.roles.CreatePermission(ctx.Context, rbac.CreatePermissionOptions{
		Resource:    ctx.Args().Get(0),
		Action:      ctx.Args().Get(1),
		Name:        ctx.String(nameFlag.Name),
		Description: ctx.String("description"),
	})
	if err != nil {
		return err
	}
	fmt.Printf("Created permission %s\n", permission.Code)
	return nil
}

func attachPermission(ctx *cli.Context, svc *services) error {
	if err := requireArgs(ctx, 1); err != nil {
		return err
	}
	tenantCode := tenants.NormalizeCode(ctx.String(tenantFlag.Name))
	err := svc.roles.AttachPermission(ctx.Context, tenantCode, ctx.String(roleFlag.Name), ctx.Args().First())
	if err != nil {
		return err
	}
	fmt.Printf("Attached %s to role %s in %s\n", ctx.Args().First(), ctx.String(roleFlag.Name), tenantCode)
	return nil
}

func showAudit(ctx *cli.Context, svc *services) error {
	tenantCode := tenants.NormalizeCode(ctx.String(tenantFlag.Name))
	email := accounts.NormalizeEmail(ctx.String(emailFlag.Name))
	entries, err := svc.auditRepo.FindByEmail(ctx.Context, tenantCode, email, ctx.Int("limit"))
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tMETHOD\tRESULT\tIP\tDEVICE")
	for _, entry := range entries {
		result := "OK"
		if !entry.Success {
			result = entry.FailureReason
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", entry.CreatedAt.Format("2006-01-02 15:04:05"), entry.Method, result, entry.IP, entry.DeviceInfo)
	}
	return w.Flush()
}

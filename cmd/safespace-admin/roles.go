// ABOUTME: Platform role commands: list, get, set, search and stats
// ABOUTME: Operates on user_roles, separate from admin approval roles

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/safespace/safespace-admin/internal/schema"
)

func (a *app) cmdRoles(ctx context.Context, args []string) error {
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	if _, err := a.requireAdmin(ctx); err != nil {
		return err
	}

	switch subcmd {
	case "list", "ls":
		return a.cmdRolesList(ctx, args)
	case "get":
		return a.cmdRolesGet(ctx, args)
	case "set":
		return a.cmdRolesSet(ctx, args)
	case "search":
		return a.cmdRolesSearch(ctx, args)
	case "stats":
		return a.cmdRolesStats(ctx)
	default:
		return fmt.Errorf("unknown roles subcommand: %s (use list, get, set, search, stats)", subcmd)
	}
}

func (a *app) cmdRolesList(ctx context.Context, args []string) error {
	flags, _ := parseFlags(args)
	page, limit := 1, 10
	if v, ok := flags["page"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid --page %q", v)
		}
		page = n
	}
	if v, ok := flags["limit"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid --limit %q", v)
		}
		limit = n
	}

	p, err := a.roles.ListPage(ctx, page, limit)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Platform Roles")
	cyan.Println("  --------------")
	printRoles(p.Roles)
	fmt.Printf("  Page %d of %d (%d total)\n\n", p.CurrentPage, max(p.TotalPages, 1), p.Total)
	return nil
}

func printRoles(list []schema.UserRole) {
	if len(list) == 0 {
		fmt.Println("  (none)")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  USER\tROLE\tUPDATED")
	fmt.Fprintln(w, "  ----\t----\t-------")
	for _, r := range list {
		fmt.Fprintf(w, "  %s\t%s\t%s\n", r.UserID, r.Role, r.UpdatedAt.Local().Format("Jan 02 15:04"))
	}
	w.Flush()
}

func (a *app) cmdRolesGet(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: roles get <user-id>")
	}
	r, err := a.roles.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if r == nil {
		fmt.Printf("  %s has no platform role\n", args[0])
		return nil
	}
	fmt.Printf("  %s: ", r.UserID)
	color.Green("%s\n", r.Role)
	return nil
}

func (a *app) cmdRolesSet(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: roles set <user-id> <patient|doctor|admin|superadmin>")
	}
	r, err := a.roles.Upsert(ctx, args[0], schema.PlatformRole(args[1]))
	if err != nil {
		return err
	}
	color.Green("✓ %s is now %s\n", r.UserID, r.Role)
	return nil
}

func (a *app) cmdRolesSearch(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: roles search <query>")
	}
	list, err := a.roles.Search(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Println()
	printRoles(list)
	fmt.Println()
	return nil
}

func (a *app) cmdRolesStats(ctx context.Context) error {
	st, err := a.roles.Stats(ctx)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Role Statistics")
	cyan.Println("  ---------------")
	fmt.Printf("  Total:        %d\n", st.Total)
	fmt.Printf("  Patients:     %d\n", st.Patients)
	fmt.Printf("  Doctors:      %d\n", st.Doctors)
	fmt.Printf("  Admins:       %d\n", st.Admins)
	fmt.Printf("  Superadmins:  %d\n", st.Superadmins)
	fmt.Println()
	return nil
}

// ABOUTME: Platform user commands: list, search, status and stats
// ABOUTME: Reads and updates the users table as the signed-in admin

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/safespace/safespace-admin/internal/schema"
	"github.com/safespace/safespace-admin/internal/users"
)

func (a *app) cmdUsers(ctx context.Context, args []string) error {
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
		list, err := a.users.List(ctx)
		if err != nil {
			return err
		}
		printUsers("Users", list)
		return nil
	case "search":
		if len(args) < 1 {
			return fmt.Errorf("usage: users search <query>")
		}
		list, err := a.users.Search(ctx, args[0])
		if err != nil {
			return err
		}
		printUsers("Matching Users", list)
		return nil
	case "status":
		return a.cmdUsersStatus(ctx, args)
	case "stats":
		return a.cmdUsersStats(ctx)
	default:
		return fmt.Errorf("unknown users subcommand: %s (use list, search, status, stats)", subcmd)
	}
}

func printUsers(title string, list []schema.User) {
	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Printf("  %s\n", title)
	cyan.Printf("  %s\n", strings.Repeat("-", len(title)))

	if len(list) == 0 {
		fmt.Println("  (none)")
		fmt.Println()
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tEMAIL\tNAME\tSTATUS\tJOINED")
	fmt.Fprintln(w, "  --\t-----\t----\t------\t------")
	for _, u := range list {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
			u.ID,
			truncate(u.Email, 32),
			truncate(deref(u.FullName), 24),
			u.Status,
			u.CreatedAt.Local().Format("Jan 02 2006"),
		)
	}
	w.Flush()
	fmt.Println()
}

func (a *app) cmdUsersStatus(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: users status <user-id> <active|inactive|suspended>")
	}
	u, err := a.users.UpdateStatus(ctx, args[0], schema.UserStatus(args[1]))
	if err != nil {
		return err
	}
	color.Green("✓ %s is now %s\n", u.Email, u.Status)
	return nil
}

func (a *app) cmdUsersStats(ctx context.Context) error {
	st, err := a.users.Stats(ctx, time.Now())
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  User Statistics")
	cyan.Println("  ---------------")
	fmt.Printf("  Total:       %d\n", st.Total)
	fmt.Printf("  Active:      %d\n", st.Active)
	fmt.Printf("  Inactive:    %d\n", st.Inactive)
	fmt.Printf("  Suspended:   %d\n", st.Suspended)
	fmt.Printf("  New (%dd):   %d\n", int(users.RecentWindow.Hours()/24), st.RecentRegistrations)
	fmt.Println()
	return nil
}

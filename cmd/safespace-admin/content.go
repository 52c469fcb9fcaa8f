// ABOUTME: Entertainment content commands: list, show, create, toggle, delete, upload, stats
// ABOUTME: Media and cover files go to the entertainment_media bucket

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/safespace/safespace-admin/internal/catalog"
	"github.com/safespace/safespace-admin/internal/schema"
)

func (a *app) cmdContent(ctx context.Context, args []string) error {
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
		return a.cmdContentList(ctx)
	case "show":
		return a.cmdContentShow(ctx, args)
	case "create", "add":
		return a.cmdContentCreate(ctx, args)
	case "toggle":
		return a.cmdContentToggle(ctx, args)
	case "delete", "rm", "remove":
		return a.cmdContentDelete(ctx, args)
	case "upload":
		return a.cmdContentUpload(ctx, args)
	case "stats":
		return a.cmdContentStats(ctx)
	default:
		return fmt.Errorf("unknown content subcommand: %s (use list, show, create, toggle, delete, upload, stats)", subcmd)
	}
}

func parseContentID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid content id %q", s)
	}
	return id, nil
}

func (a *app) cmdContentList(ctx context.Context) error {
	list, err := a.catalog.List(ctx)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Entertainment Content")
	cyan.Println("  ---------------------")

	if len(list) == 0 {
		fmt.Println("  (no content)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tTITLE\tTYPE\tCATEGORY\tSTATUS\tUPDATED")
	fmt.Fprintln(w, "  --\t-----\t----\t--------\t------\t-------")
	for _, it := range list {
		fmt.Fprintf(w, "  %d\t%s\t%s\t%s\t%s\t%s\n",
			it.ID,
			truncate(it.Title, 32),
			it.Type,
			truncate(it.Category, 16),
			it.Status,
			it.UpdatedAt.Local().Format("Jan 02 15:04"),
		)
	}
	w.Flush()
	fmt.Println()
	return nil
}

func (a *app) cmdContentShow(ctx context.Context, args []string) error {
	flags, positional := parseFlags(args, "html")
	if len(positional) < 1 {
		return fmt.Errorf("usage: content show <id> [--html]")
	}
	id, err := parseContentID(positional[0])
	if err != nil {
		return err
	}

	it, err := a.catalog.Get(ctx, id)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Printf("  %s\n", it.Title)
	cyan.Printf("  %s\n", strings.Repeat("-", len(it.Title)))
	fmt.Printf("  ID:          %d\n", it.ID)
	fmt.Printf("  Type:        %s\n", it.Type)
	fmt.Printf("  Category:    %s\n", it.Category)
	fmt.Printf("  Status:      %s\n", it.Status)
	if len(it.MoodStates) > 0 {
		fmt.Printf("  Moods:       %s\n", strings.Join(it.MoodStates, ", "))
	}
	if it.DominantState != nil {
		fmt.Printf("  Dominant:    %s\n", *it.DominantState)
	}
	if it.MediaFileURL != nil {
		fmt.Printf("  Media:       %s\n", *it.MediaFileURL)
	}
	if it.CoverImgURL != nil {
		fmt.Printf("  Cover:       %s\n", *it.CoverImgURL)
	}
	fmt.Printf("  Updated:     %s\n", it.UpdatedAt.Local().Format("Jan 02 2006 15:04"))

	if it.Description != nil {
		fmt.Println()
		if flags["html"] == "true" {
			html, err := catalog.DescriptionHTML(it)
			if err != nil {
				return err
			}
			fmt.Print(html)
		} else {
			fmt.Println(*it.Description)
		}
	}
	fmt.Println()
	return nil
}

func (a *app) cmdContentCreate(ctx context.Context, args []string) error {
	flags, _ := parseFlags(args)

	in := schema.EntertainmentInsert{
		Title:    flags["title"],
		Type:     flags["type"],
		Category: flags["category"],
		Status:   flags["status"],
	}
	if in.Title == "" || in.Type == "" || in.Category == "" {
		return fmt.Errorf("usage: content create --title <t> --type <video|audio> --category <c> " +
			"[--description <md>] [--moods a,b] [--status active|inactive] [--media <file>] [--cover <file>]")
	}
	if d, ok := flags["description"]; ok {
		in.Description = &d
	}
	if m := flags["moods"]; m != "" {
		for _, s := range strings.Split(m, ",") {
			if s = strings.TrimSpace(s); s != "" {
				in.MoodStates = append(in.MoodStates, s)
			}
		}
	}

	if path := flags["media"]; path != "" {
		url, err := a.uploadPath(ctx, catalog.FolderMedia, path)
		if err != nil {
			return err
		}
		in.MediaFileURL = &url
	}
	if path := flags["cover"]; path != "" {
		url, err := a.uploadPath(ctx, catalog.FolderCovers, path)
		if err != nil {
			return err
		}
		in.CoverImgURL = &url
	}

	it, err := a.catalog.Create(ctx, in)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Created content: %d\n", it.ID)
	fmt.Printf("  Title:     %s\n", it.Title)
	fmt.Printf("  Type:      %s\n", it.Type)
	fmt.Printf("  Status:    %s\n", it.Status)
	return nil
}

func (a *app) uploadPath(ctx context.Context, folder, path string) (string, error) {
	f, contentType, err := openUpload(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return a.catalog.UploadFile(ctx, folder, filepath.Base(path), f, contentType)
}

func (a *app) cmdContentToggle(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: content toggle <id>")
	}
	id, err := parseContentID(args[0])
	if err != nil {
		return err
	}
	it, err := a.catalog.ToggleStatus(ctx, id)
	if err != nil {
		return err
	}
	color.Green("✓ %s is now %s\n", it.Title, it.Status)
	return nil
}

func (a *app) cmdContentDelete(ctx context.Context, args []string) error {
	flags, positional := parseFlags(args, "yes")
	if len(positional) < 1 {
		return fmt.Errorf("usage: content delete <id> [--yes]")
	}
	id, err := parseContentID(positional[0])
	if err != nil {
		return err
	}
	if flags["yes"] != "true" && !confirm(fmt.Sprintf("Delete content %d and its files?", id)) {
		return fmt.Errorf("aborted (pass --yes to delete non-interactively)")
	}
	if err := a.catalog.Delete(ctx, id); err != nil {
		return err
	}
	color.Green("✓ Deleted content: %d\n", id)
	return nil
}

func (a *app) cmdContentUpload(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: content upload <%s|%s> <file>", catalog.FolderMedia, catalog.FolderCovers)
	}
	url, err := a.uploadPath(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	color.Green("✓ Uploaded %s\n", filepath.Base(args[1]))
	fmt.Println(url)
	return nil
}

func (a *app) cmdContentStats(ctx context.Context) error {
	st, err := a.catalog.Stats(ctx)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Content Statistics")
	cyan.Println("  ------------------")
	fmt.Printf("  Total:      %d\n", st.TotalContent)
	fmt.Printf("  Videos:     %d\n", st.TotalVideos)
	fmt.Printf("  Audio:      %d\n", st.TotalAudio)
	fmt.Printf("  Active:     %d\n", st.ActiveCount)
	fmt.Printf("  Inactive:   %d\n", st.InactiveCount)
	fmt.Printf("  Storage:    %.2f GB of %.0f GB\n", st.StorageUsedGB, st.TotalStorageGB)
	fmt.Printf("  Updated:    %s\n", st.LastUpdated.Local().Format("Jan 02 2006 15:04"))
	fmt.Println()
	return nil
}

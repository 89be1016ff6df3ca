package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloo-solutions/knowtext/internal/domain"
	"github.com/spf13/cobra"
)

func TreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree <tenantId>",
		Short: "Print a tenant's knowledge text tree",
		Args:  cobra.ExactArgs(1),
		RunE:  runTree,
	}
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	return cmd
}

func runTree(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	if output != "text" && output != "json" {
		return fmt.Errorf("unknown output format %q", output)
	}

	ctx := cmd.Context()
	rt, err := loadRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	svc, err := rt.newService(ctx)
	if err != nil {
		return err
	}

	forest, err := svc.Tree(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to load tree: %w", err)
	}

	if output == "json" {
		if forest == nil {
			forest = []*domain.KnowledgeText{}
		}
		return writeJSON(cmd.OutOrStdout(), forest)
	}
	if len(forest) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No knowledge texts for tenant %s\n", args[0])
		return nil
	}
	renderTree(cmd.OutOrStdout(), forest)
	return nil
}

// renderTree writes one line per record, indented by depth.
func renderTree(w io.Writer, forest []*domain.KnowledgeText) {
	var walk func(nodes []*domain.KnowledgeText, depth int)
	walk = func(nodes []*domain.KnowledgeText, depth int) {
		for _, k := range nodes {
			line := fmt.Sprintf("%s- %s (%s)", strings.Repeat("  ", depth), k.Title, k.ID)
			if k.Hidden {
				line += " [hidden]"
			}
			fmt.Fprintln(w, line)
			walk(k.Children, depth+1)
		}
	}
	walk(forest, 0)
}

func PurgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Hard delete expired soft-deleted knowledge texts",
		Long:  "Permanently remove knowledge texts that were soft-deleted longer ago than the retention period",
		Args:  cobra.NoArgs,
		RunE:  runPurge,
	}
	cmd.Flags().Duration("retention", 0, "Retention period (defaults to KNOWTEXT_PURGE_RETENTION)")
	return cmd
}

func runPurge(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := loadRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	retention := rt.cfg.PurgeRetention
	if cmd.Flags().Changed("retention") {
		retention, _ = cmd.Flags().GetDuration("retention")
	}

	svc, err := rt.newService(ctx)
	if err != nil {
		return err
	}

	n, err := svc.Purge(ctx, retention)
	if err != nil {
		return fmt.Errorf("failed to purge: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Purged %d knowledge texts deleted before %s\n",
		n, time.Now().UTC().Add(-retention).Format(time.RFC3339))
	return nil
}

func ExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <tenantId>",
		Short: "Upload a snapshot of a tenant's tree to object storage",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := loadRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if !rt.cfg.HasS3() {
		return domain.ErrStorageNotConfigured
	}

	svc, err := rt.newService(ctx)
	if err != nil {
		return err
	}

	result, err := svc.Export(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to export: %w", err)
	}

	if output, _ := cmd.Flags().GetString("output"); output == "json" {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d knowledge texts to %s\n%s\n", result.Count, result.Key, result.DownloadURL)
	return nil
}

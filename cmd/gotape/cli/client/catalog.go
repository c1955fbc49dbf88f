package client

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mwantia/gotape/pkg/db/store"
	"github.com/spf13/cobra"
)

func NewCatalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Search and manage the tape catalog",
		Long:  "Search files across all tapes, show statistics, analyze library usage and move the catalog between installations.",
	}

	cmd.AddCommand(NewCatalogSearchCommand())
	cmd.AddCommand(NewCatalogStatsCommand())
	cmd.AddCommand(NewCatalogAnalyzeCommand())
	cmd.AddCommand(NewCatalogExportCommand())
	cmd.AddCommand(NewCatalogImportCommand())
	cmd.AddCommand(NewCatalogBackupCommand())
	cmd.AddCommand(NewCatalogDuplicatesCommand())

	return cmd
}

func NewCatalogDuplicatesCommand() *cobra.Command {
	var by string

	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "Find files cataloged more than once",
		Long:  "Groups cataloged files by name, size or both and lists every group that appears more than once.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runtime, _, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer runtime.Close(ctx)

			groups, err := runtime.Catalog.FindDuplicateFiles(ctx, store.DuplicateCriteria(by))
			if err != nil {
				return err
			}
			if len(groups) == 0 {
				fmt.Println("No duplicate files found")
				return nil
			}
			for _, g := range groups {
				switch {
				case g.Path != "" && g.SizeBytes > 0:
					fmt.Printf("%dx %s (%s)\n", g.Count, g.Path, humanize.Bytes(uint64(g.SizeBytes)))
				case g.Path != "":
					fmt.Printf("%dx %s\n", g.Count, g.Path)
				default:
					fmt.Printf("%dx files of %s\n", g.Count, humanize.Bytes(uint64(g.SizeBytes)))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&by, "by", string(store.DuplicatesByNameAndSize), "grouping key: name, size or name_and_size")

	return cmd
}

func NewCatalogBackupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backup <path>",
		Short: "Copy the catalog database file",
		Long:  "Writes a plain copy of the SQLite catalog database to the given path.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runtime, _, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer runtime.Close(ctx)

			if err := runtime.Catalog.BackupTo(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Catalog backed up to %s\n", args[0])
			return nil
		},
	}
}

func NewCatalogSearchCommand() *cobra.Command {
	var fileType string
	var tapeID uint
	var minSize string
	var maxSize string
	var regex bool
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search files across all tapes",
		Long:  "Searches cataloged files by substring or regular expression, optionally filtered by type, size and tape.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runtime, _, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer runtime.Close(ctx)

			filter := store.SearchFilter{
				Query:    args[0],
				FileType: fileType,
				TapeID:   tapeID,
				Limit:    limit,
			}
			if minSize != "" {
				n, err := humanize.ParseBytes(minSize)
				if err != nil {
					return fmt.Errorf("invalid min size %q: %w", minSize, err)
				}
				filter.MinSize = int64(n)
			}
			if maxSize != "" {
				n, err := humanize.ParseBytes(maxSize)
				if err != nil {
					return fmt.Errorf("invalid max size %q: %w", maxSize, err)
				}
				filter.MaxSize = int64(n)
			}

			var hits []store.FileHit
			if regex {
				hits, err = runtime.Catalog.RegexSearchFiles(ctx, args[0], filter)
			} else {
				hits, err = runtime.Catalog.SearchFiles(ctx, filter)
			}
			if err != nil {
				return err
			}

			for _, hit := range hits {
				fmt.Printf("%-60s %10s  tape=%s archive=%s\n",
					hit.Path, humanize.Bytes(uint64(hit.SizeBytes)), hit.TapeLabel, hit.ArchiveName)
			}
			fmt.Printf("%d matches\n", len(hits))
			return nil
		},
	}

	cmd.Flags().StringVar(&fileType, "type", "", "filter by file extension")
	cmd.Flags().UintVar(&tapeID, "tape-id", 0, "filter by tape id")
	cmd.Flags().StringVar(&minSize, "min-size", "", "minimum file size (e.g. 10MB)")
	cmd.Flags().StringVar(&maxSize, "max-size", "", "maximum file size")
	cmd.Flags().BoolVarP(&regex, "regex", "r", false, "treat the query as a regular expression")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum results")

	return cmd
}

func NewCatalogStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show catalog statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runtime, _, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer runtime.Close(ctx)

			stats, err := runtime.Catalog.Stats(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Tapes:     %d (%s)\n", stats.TotalTapes, humanize.Bytes(uint64(stats.TotalTapeBytes)))
			fmt.Printf("Archives:  %d (%s)\n", stats.TotalArchives, humanize.Bytes(uint64(stats.TotalArchiveBytes)))
			fmt.Printf("Files:     %d (%s, avg %.0f per archive)\n",
				stats.TotalFiles, humanize.Bytes(uint64(stats.TotalFileBytes)), stats.AvgFilesPerArch)
			fmt.Printf("Recent:    %d archives in the last 30 days\n", stats.RecentArchives)

			if len(stats.FileTypes) > 0 {
				fmt.Println("File types:")
				for fileType, count := range stats.FileTypes {
					fmt.Printf("  %-10s %d\n", fileType, count)
				}
			}
			if len(stats.LargestFiles) > 0 {
				fmt.Println("Largest files:")
				for _, hit := range stats.LargestFiles {
					fmt.Printf("  %-60s %10s\n", hit.Path, humanize.Bytes(uint64(hit.SizeBytes)))
				}
			}
			return nil
		},
	}

	return cmd
}

func NewCatalogAnalyzeCommand() *cobra.Command {
	var jsonOut string
	var csvOut string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze library usage and health",
		Long:  "Runs utilization, duplicate, health and maintenance analyses across the whole library. All results are advisory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runtime, _, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer runtime.Close(ctx)

			report := runtime.Optimizer.BuildReport(ctx)

			fmt.Printf("Library report for %d tapes (%s)\n", report.TapeCount, report.GeneratedAt.Format(time.RFC3339))
			fmt.Printf("Under-utilized: %d, full: %d, fragmented: %d\n",
				len(report.Usage.UnderUtilized), len(report.Usage.Full), len(report.Usage.Fragmented))
			for _, pair := range report.Usage.Consolidations {
				fmt.Printf("  %s\n", pair.Describe())
			}
			if len(report.Duplicates) > 0 {
				fmt.Printf("Likely duplicate pairs: %d\n", len(report.Duplicates))
				for _, dup := range report.Duplicates {
					fmt.Printf("  %s: %s and %s, %d days apart (delta %s)\n",
						dup.SourceFolder, dup.FirstName, dup.SecondName, dup.DaysApart, dup.SizeDeltaStr)
				}
			}
			fmt.Printf("Maintenance tasks: %d\n", report.Maintenance.Count())
			for _, task := range report.Maintenance.Immediate {
				fmt.Printf("  [immediate] %s (%s)\n", task.Action, task.Reason)
			}

			if jsonOut != "" {
				if err := report.WriteJSON(jsonOut); err != nil {
					return err
				}
				fmt.Printf("Report written to %s\n", jsonOut)
			}
			if csvOut != "" {
				if err := report.WriteCSV(csvOut); err != nil {
					return err
				}
				fmt.Printf("Health table written to %s\n", csvOut)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&jsonOut, "json", "", "write the full report to this JSON file")
	cmd.Flags().StringVar(&csvOut, "csv", "", "write the health table to this CSV file")

	return cmd
}

func NewCatalogExportCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export <path>",
		Short: "Export the catalog",
		Long:  "Exports the catalog as a portable JSON snapshot or a directory of CSV tables. Per-archive file lists are truncated at 1000 entries and flagged when incomplete.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runtime, _, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer runtime.Close(ctx)

			switch format {
			case "json":
				snapshot, err := runtime.Catalog.Snapshot(ctx)
				if err != nil {
					return err
				}
				if err := store.WriteSnapshotFile(snapshot, args[0]); err != nil {
					return err
				}
			case "csv":
				if err := runtime.Catalog.ExportCSV(ctx, args[0]); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown export format %q", format)
			}

			fmt.Printf("Catalog exported to %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "export format (json or csv)")

	return cmd
}

func NewCatalogImportCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "import <path>",
		Short: "Import a catalog export",
		Long:  "Imports a catalog snapshot or CSV directory. Tapes and archives whose labels or names already exist are skipped, so repeating an import adds nothing.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runtime, _, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer runtime.Close(ctx)

			var summary *store.ImportSummary
			switch format {
			case "json":
				snapshot, err := store.ReadSnapshotFile(args[0])
				if err != nil {
					return err
				}
				summary, err = runtime.Catalog.ImportSnapshot(ctx, snapshot)
				if err != nil {
					return err
				}
			case "csv":
				summary, err = runtime.Catalog.ImportCSV(ctx, args[0])
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown import format %q", format)
			}

			fmt.Printf("Imported %d tapes, %d archives, %d files (%d skipped)\n",
				summary.TapesImported, summary.ArchivesImported, summary.FilesImported, summary.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "import format (json or csv)")

	return cmd
}

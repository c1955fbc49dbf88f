package client

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mwantia/gotape/pkg/recovery"
	"github.com/spf13/cobra"
)

func NewRecoverCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Recover archives from tape",
		Long:  "List, extract and verify archives on tape, including damage diagnosis and tolerant recovery from damaged media.",
	}

	cmd.AddCommand(NewRecoverListCommand())
	cmd.AddCommand(NewRecoverExtractCommand())
	cmd.AddCommand(NewRecoverVerifyCommand())
	cmd.AddCommand(NewRecoverDamageCommand())
	cmd.AddCommand(NewRecoverPartialCommand())
	cmd.AddCommand(NewRecoverRetryCommand())
	cmd.AddCommand(NewRecoverLocateCommand())

	return cmd
}

func NewRecoverListCommand() *cobra.Command {
	var device string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tape contents",
		Long:  "Lists the archives on a tape from the catalog, falling back to a direct tape read for uncataloged media.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runtime, cfg, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer runtime.Close(ctx)

			listing := runtime.Recovery.ListContents(ctx, resolveDevice(device, cfg))
			for _, warning := range listing.Warnings {
				fmt.Printf("warning: %s\n", warning)
			}

			if listing.Source == recovery.SourceDirectRead {
				for _, file := range listing.Files {
					fmt.Println(file)
				}
				return nil
			}

			fmt.Printf("Tape %s (%d archives)\n", listing.TapeLabel, len(listing.Archives))
			for _, entry := range listing.Archives {
				fmt.Printf("  %3d  %-40s %10s  %6d files  %s\n",
					entry.Position, entry.Name, humanize.Bytes(uint64(entry.SizeBytes)), entry.FileCount, entry.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&device, "device", "d", "", "tape device path")

	return cmd
}

func NewRecoverExtractCommand() *cobra.Command {
	var device string
	var outDir string
	var files []string

	cmd := &cobra.Command{
		Use:   "extract <archive>",
		Short: "Extract an archive from tape",
		Long:  "Seeks to the archive's recorded position and extracts it, fully or limited to the named files.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runtime, cfg, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer runtime.Close(ctx)

			progress := func(p recovery.Progress) {
				if p.Entry != "" {
					fmt.Printf("[%s] %s\n", p.Stage, p.Entry)
				}
			}

			dev := resolveDevice(device, cfg)
			var result *recovery.ExtractResult
			if len(files) > 0 {
				result, err = runtime.Recovery.ExtractFiles(ctx, dev, args[0], files, outDir, progress)
			} else {
				result, err = runtime.Recovery.ExtractArchive(ctx, dev, args[0], outDir, progress)
			}
			if err != nil {
				return err
			}

			fmt.Printf("Extracted %d entries from %s (position %d) into %s\n",
				result.FileCount, result.ArchiveName, result.Position, result.OutputDir)
			return nil
		},
	}

	cmd.Flags().StringVarP(&device, "device", "d", "", "tape device path")
	cmd.Flags().StringVarP(&outDir, "output", "o", ".", "output directory")
	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "extract only these entries (repeatable)")

	return cmd
}

func NewRecoverVerifyCommand() *cobra.Command {
	var device string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify tape integrity",
		Long:  "Probes device accessibility and content readability, then compares against the catalog.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runtime, cfg, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer runtime.Close(ctx)

			report := runtime.Recovery.VerifyIntegrity(ctx, resolveDevice(device, cfg))
			fmt.Printf("Device:    %s\n", report.Device)
			fmt.Printf("State:     %s\n", report.DriveState)
			fmt.Printf("Readable:  %v\n", report.Readable)
			fmt.Printf("Has data:  %v\n", report.HasData)
			fmt.Printf("Archives:  %d (%d files)\n", report.ArchiveCount, report.FileCount)
			for _, warning := range report.Warnings {
				fmt.Printf("warning: %s\n", warning)
			}
			for _, e := range report.Errors {
				fmt.Printf("error: %s\n", e)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&device, "device", "d", "", "tape device path")

	return cmd
}

func NewRecoverDamageCommand() *cobra.Command {
	var device string

	cmd := &cobra.Command{
		Use:   "damage",
		Short: "Probe a tape for damage",
		Long:  "Runs a bounded raw-block read probe and classifies any failure, with remediation suggestions. The classification is heuristic.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runtime, cfg, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer runtime.Close(ctx)

			report, err := runtime.Recovery.DetectDamage(ctx, resolveDevice(device, cfg))
			if err != nil {
				return err
			}
			if !report.IsDamaged {
				fmt.Println("No damage detected")
				return nil
			}

			fmt.Printf("Damage detected: %s (recoverable data: %v)\n", report.DamageType, report.RecoverableData)
			if report.Detail != "" {
				fmt.Printf("Detail: %s\n", report.Detail)
			}
			for _, step := range report.Remediation {
				fmt.Printf("  - %s\n", step)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&device, "device", "d", "", "tape device path")

	return cmd
}

func NewRecoverPartialCommand() *cobra.Command {
	var device string
	var outDir string

	cmd := &cobra.Command{
		Use:   "partial <archive>",
		Short: "Attempt partial recovery from damaged media",
		Long:  "Dumps readable blocks while tolerating errors, then extracts what survives, falling back to per-entry extraction.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runtime, cfg, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer runtime.Close(ctx)

			progress := func(p recovery.Progress) {
				if p.Entry != "" {
					fmt.Printf("[%s] %s\n", p.Stage, p.Entry)
				}
			}
			result, err := runtime.Recovery.AttemptPartialRecovery(ctx, resolveDevice(device, cfg), args[0], outDir, progress)
			if err != nil {
				return err
			}

			fmt.Printf("Recovered %d files, %d failed (%.1f%%) via %s\n",
				len(result.RecoveredFiles), len(result.FailedFiles), result.RecoveryPercent, result.Method)
			for _, failed := range result.FailedFiles {
				fmt.Printf("failed: %s\n", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&device, "device", "d", "", "tape device path")
	cmd.Flags().StringVarP(&outDir, "output", "o", ".", "output directory")

	return cmd
}

func NewRecoverRetryCommand() *cobra.Command {
	var device string
	var outDir string
	var maxRetries int

	cmd := &cobra.Command{
		Use:   "retry <archive>",
		Short: "Retry a failed extraction with recovery strategies",
		Long:  "Cycles through positioning and blocking strategies until the extraction succeeds or the retry budget runs out.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runtime, cfg, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer runtime.Close(ctx)

			result, err := runtime.Recovery.RetryWithStrategies(ctx, resolveDevice(device, cfg), args[0], outDir, maxRetries, nil)
			if err != nil {
				return err
			}

			for _, attempt := range result.Attempts {
				status := "ok"
				if attempt.Error != "" {
					status = attempt.Error
				}
				fmt.Printf("attempt %d (%s): %s\n", attempt.Attempt, attempt.Strategy, status)
			}
			if !result.Success {
				return fmt.Errorf("all %d attempts failed", len(result.Attempts))
			}
			fmt.Printf("Recovered %d entries on attempt %d\n", len(result.ExtractedFiles), result.WinningAttempt)
			return nil
		},
	}

	cmd.Flags().StringVarP(&device, "device", "d", "", "tape device path")
	cmd.Flags().StringVarP(&outDir, "output", "o", ".", "output directory")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 3, "maximum recovery attempts")

	return cmd
}

func NewRecoverLocateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locate <file>",
		Short: "Find which tapes hold a file",
		Long:  "Searches the catalog for every tape and archive containing a file whose path matches the query.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runtime, _, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer runtime.Close(ctx)

			locations := runtime.Recovery.FindFileLocations(ctx, args[0])
			if len(locations) == 0 {
				fmt.Println("No matches found")
				return nil
			}
			for _, loc := range locations {
				fmt.Printf("%s  tape=%s archive=%s size=%s\n",
					loc.Path, loc.TapeLabel, loc.ArchiveName, humanize.Bytes(uint64(loc.SizeBytes)))
			}
			fmt.Printf("%d matches across %d tapes\n", len(locations), countTapes(locations))
			return nil
		},
	}

	return cmd
}

func countTapes(locations []recovery.FileLocation) int {
	seen := make(map[string]bool)
	for _, loc := range locations {
		seen[strings.ToLower(loc.TapeLabel)] = true
	}
	return len(seen)
}

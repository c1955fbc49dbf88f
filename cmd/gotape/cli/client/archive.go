package client

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mwantia/gotape/internal/agent"
	"github.com/mwantia/gotape/pkg/archive"
	"github.com/spf13/cobra"
)

func NewArchiveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Create tape archives",
		Long:  "Build tar archives from source folders and write them to tape, cached through a staging file or streamed directly.",
	}

	cmd.AddCommand(NewArchiveCreateCommand())

	return cmd
}

func NewArchiveCreateCommand() *cobra.Command {
	var device string
	var tapeLabel string
	var name string
	var secondTape string
	var compress bool
	var stream bool
	var index bool

	cmd := &cobra.Command{
		Use:   "create <source>",
		Short: "Archive a folder to tape",
		Long:  "Archives the source folder to tape. Cached mode stages and checksums the archive locally first; streaming mode pipes it straight to the device without verification.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runtime, cfg, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer runtime.Close(ctx)

			req := archive.Request{
				SourcePath:  args[0],
				Device:      resolveDevice(device, cfg),
				TapeLabel:   tapeLabel,
				Name:        name,
				Compression: compress,
				IndexFiles:  index,
				KeepStaging: secondTape != "",
			}

			job := runtime.Jobs.Submit(ctx, "archive", func(ctx context.Context, emit func(stage, message string)) (any, error) {
				progress := func(p archive.Progress) {
					emit(p.Stage, p.Message)
				}
				if stream {
					return runtime.Pipeline.CreateStreaming(ctx, req, progress)
				}
				return runtime.Pipeline.CreateCached(ctx, req, progress)
			})

			for event := range job.Events() {
				if event.Message != "" {
					fmt.Printf("[%s] %s\n", event.Stage, event.Message)
				} else {
					fmt.Printf("[%s]\n", event.Stage)
				}
			}
			if job.Error != "" {
				return fmt.Errorf("archive failed: %s", job.Error)
			}

			switch result := job.Result.(type) {
			case *archive.CachedResult:
				fmt.Printf("Archived %s as %s (%s, %d files, checksum %s)\n",
					args[0], result.Name, humanize.Bytes(uint64(result.SizeBytes)), result.FileCount, result.Checksum)
				if secondTape != "" {
					return writeSecondCopy(cmd, runtime, result, req.Device, secondTape)
				}
			case *archive.StreamResult:
				fmt.Printf("Streamed %s as %s (%s, %d files, unverified)\n",
					args[0], result.Name, humanize.Bytes(uint64(result.BytesWritten)), result.FilesProcessed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&device, "device", "d", "", "tape device path (defaults to configured device)")
	cmd.Flags().StringVarP(&tapeLabel, "tape", "t", "", "label of the target tape")
	cmd.Flags().StringVarP(&name, "name", "n", "", "archive name (generated when empty)")
	cmd.Flags().StringVar(&secondTape, "second-tape", "", "write a second copy to this tape label")
	cmd.Flags().BoolVarP(&compress, "compress", "z", false, "gzip-compress the archive")
	cmd.Flags().BoolVar(&stream, "stream", false, "stream directly to tape without staging")
	cmd.Flags().BoolVar(&index, "index", true, "record per-file catalog entries")
	cmd.MarkFlagRequired("tape")

	return cmd
}

// writeSecondCopy duplicates a cached archive onto another tape in the
// same drive. The operator has to swap tapes first, so the copy waits
// for confirmation; the kept staging file is removed either way.
func writeSecondCopy(cmd *cobra.Command, runtime *agent.Runtime, result *archive.CachedResult, device, tapeLabel string) error {
	defer func() {
		if result.StagingPath != "" {
			os.Remove(result.StagingPath)
		}
	}()

	fmt.Printf("Load tape %s into %s, then press Enter to write the second copy (or type 'n' to skip): ", tapeLabel, device)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("second copy aborted: %w", err)
	}
	if answer := strings.ToLower(strings.TrimSpace(line)); answer == "n" || answer == "no" {
		fmt.Println("Second copy skipped")
		return nil
	}

	duplicate, err := runtime.Pipeline.DuplicateToTape(cmd.Context(), result, device, tapeLabel, func(p archive.Progress) {
		if p.Message != "" {
			fmt.Printf("[%s] %s\n", p.Stage, p.Message)
		} else {
			fmt.Printf("[%s]\n", p.Stage)
		}
	})
	if err != nil {
		return fmt.Errorf("second copy failed: %w", err)
	}
	fmt.Printf("Second copy %s written to tape %s\n", duplicate.Name, tapeLabel)
	return nil
}

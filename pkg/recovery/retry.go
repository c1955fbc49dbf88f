package recovery

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const retryDelay = 5 * time.Second

// retryStrategy is one named positioning variant tried between failed
// extraction attempts.
type retryStrategy struct {
	Name  string
	Apply func(ctx context.Context, e *Engine, device string, position int, outDir string) ([]string, error)
}

// The ordered strategy set. Attempts cycle through these one per retry.
var retryStrategies = []retryStrategy{
	{
		Name: "smaller_block_size",
		Apply: func(ctx context.Context, e *Engine, device string, position int, outDir string) ([]string, error) {
			if err := e.tapes.SeekToArchive(ctx, device, position); err != nil {
				return nil, err
			}
			return e.extractWithBlocking(ctx, device, outDir, "-b", "1")
		},
	},
	{
		Name: "skip_leading_blocks",
		Apply: func(ctx context.Context, e *Engine, device string, position int, outDir string) ([]string, error) {
			if err := e.tapes.SeekToArchive(ctx, device, position); err != nil {
				return nil, err
			}
			return e.extractWithBlocking(ctx, device, outDir, "--ignore-zeros")
		},
	},
	{
		Name: "rewind_and_retry",
		Apply: func(ctx context.Context, e *Engine, device string, position int, outDir string) ([]string, error) {
			if err := e.tapes.Rewind(ctx, device); err != nil {
				return nil, err
			}
			if err := e.tapes.SeekToArchive(ctx, device, position); err != nil {
				return nil, err
			}
			return e.extractWithBlocking(ctx, device, outDir)
		},
	},
}

// AttemptRecord documents one retry attempt.
type AttemptRecord struct {
	Attempt  int    `json:"attempt"`
	Strategy string `json:"strategy"`
	Error    string `json:"error,omitempty"`
}

// RetryResult reports a strategy-cycling recovery run.
type RetryResult struct {
	ArchiveName    string          `json:"archive_name"`
	Success        bool            `json:"success"`
	WinningAttempt int             `json:"winning_attempt,omitempty"`
	ExtractedFiles []string        `json:"extracted_files,omitempty"`
	Attempts       []AttemptRecord `json:"attempts"`
}

// RetryWithStrategies retries a failed extraction, cycling through the
// strategy set with a fixed delay between attempts, stopping at first
// success or after maxRetries attempts.
func (e *Engine) RetryWithStrategies(ctx context.Context, device, name, outDir string, maxRetries int, progress ProgressFunc) (*RetryResult, error) {
	row, err := e.lookupArchive(ctx, name)
	if err != nil {
		return nil, err
	}
	if maxRetries < 1 {
		maxRetries = len(retryStrategies)
	}

	release, err := e.tapes.Locks().Acquire(device, "retry-recovery:"+name)
	if err != nil {
		return nil, err
	}
	defer release()

	result := &RetryResult{ArchiveName: name}
	for attempt := 1; attempt <= maxRetries; attempt++ {
		strategy := retryStrategies[(attempt-1)%len(retryStrategies)]
		progress.emit(Progress{Stage: "retrying", Entry: strategy.Name, Done: int64(attempt), Total: int64(maxRetries)})
		e.log.Info("Recovery attempt %d/%d for %q using strategy %s", attempt, maxRetries, name, strategy.Name)

		extracted, err := strategy.Apply(ctx, e, device, row.Position, outDir)
		record := AttemptRecord{Attempt: attempt, Strategy: strategy.Name}
		if err == nil {
			result.Attempts = append(result.Attempts, record)
			result.Success = true
			result.WinningAttempt = attempt
			result.ExtractedFiles = extracted
			return result, nil
		}
		record.Error = err.Error()
		result.Attempts = append(result.Attempts, record)

		if attempt < maxRetries {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
	}
	return result, nil
}

// extractWithBlocking runs tar extraction with extra reader flags.
func (e *Engine) extractWithBlocking(ctx context.Context, device, outDir string, extra ...string) ([]string, error) {
	args := []string{"-xvf", device, "-C", outDir}
	args = append(args, extra...)
	cmd := exec.CommandContext(ctx, e.tapes.Tools().Tar, args...)

	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	var extracted []string
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		if entry := strings.TrimSpace(scanner.Text()); entry != "" {
			extracted = append(extracted, entry)
		}
	}
	if err := cmd.Wait(); err != nil {
		return extracted, fmt.Errorf("extraction failed: %w", err)
	}
	return extracted, nil
}

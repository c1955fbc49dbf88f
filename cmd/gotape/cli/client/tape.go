package client

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/mwantia/gotape/pkg/db/models"
	"github.com/spf13/cobra"
)

func NewTapeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tape",
		Short: "Manage tapes and drives",
		Long:  "List cataloged tapes, control the drive and manage tape lifecycle status.",
	}

	cmd.AddCommand(NewTapeListCommand())
	cmd.AddCommand(NewTapeStatusCommand())
	cmd.AddCommand(NewTapeDevicesCommand())
	cmd.AddCommand(NewTapeRewindCommand())
	cmd.AddCommand(NewTapeEjectCommand())
	cmd.AddCommand(NewTapeMarkCommand())
	cmd.AddCommand(NewTapeSuggestCommand())

	return cmd
}

func NewTapeListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cataloged tapes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runtime, cfg, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer runtime.Close(ctx)

			tapes, err := runtime.Catalog.ListTapes(ctx)
			if err != nil {
				return err
			}
			for _, t := range tapes {
				fmt.Printf("%3d  %-20s %-10s %10s (%.0f%%)  %s\n",
					t.ID, t.Label, t.Status,
					humanize.Bytes(uint64(t.TotalSizeBytes)),
					t.Utilization(cfg.Tape.CapacityBytes)*100,
					t.Device)
			}
			return nil
		},
	}

	return cmd
}

func NewTapeStatusCommand() *cobra.Command {
	var device string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report drive status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runtime, cfg, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer runtime.Close(ctx)

			status := runtime.Tapes.Status(ctx, resolveDevice(device, cfg))
			fmt.Printf("%s: %s (%s)\n", status.Device, status.State, status.Detail)
			return nil
		},
	}

	cmd.Flags().StringVarP(&device, "device", "d", "", "tape device path")

	return cmd
}

func NewTapeDevicesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List candidate tape devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runtime, _, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer runtime.Close(ctx)

			for _, device := range runtime.Tapes.DetectDevices() {
				fmt.Println(device)
			}
			return nil
		},
	}

	return cmd
}

func NewTapeRewindCommand() *cobra.Command {
	var device string

	cmd := &cobra.Command{
		Use:   "rewind",
		Short: "Rewind the tape to its beginning",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runtime, cfg, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer runtime.Close(ctx)

			dev := resolveDevice(device, cfg)
			if err := runtime.Tapes.Rewind(ctx, dev); err != nil {
				return err
			}
			fmt.Printf("Rewound %s\n", dev)
			return nil
		},
	}

	cmd.Flags().StringVarP(&device, "device", "d", "", "tape device path")

	return cmd
}

func NewTapeEjectCommand() *cobra.Command {
	var device string

	cmd := &cobra.Command{
		Use:   "eject",
		Short: "Eject the tape",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runtime, cfg, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer runtime.Close(ctx)

			dev := resolveDevice(device, cfg)
			if err := runtime.Tapes.Eject(ctx, dev); err != nil {
				return err
			}
			fmt.Printf("Ejected %s\n", dev)
			return nil
		},
	}

	cmd.Flags().StringVarP(&device, "device", "d", "", "tape device path")

	return cmd
}

func NewTapeMarkCommand() *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   "mark <label> <active|full|damaged|retired>",
		Short: "Change a tape's lifecycle status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runtime, _, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer runtime.Close(ctx)

			status := models.TapeStatus(args[1])
			switch status {
			case models.TapeStatusActive, models.TapeStatusFull, models.TapeStatusDamaged, models.TapeStatusRetired:
			default:
				return fmt.Errorf("unknown tape status %q", args[1])
			}

			tapeRow, err := runtime.Catalog.FindTapeByLabel(ctx, args[0])
			if err != nil {
				return err
			}
			if err := runtime.Catalog.UpdateTapeStatus(ctx, tapeRow.ID, status, notes); err != nil {
				return err
			}
			fmt.Printf("Tape %s marked %s\n", args[0], status)
			return nil
		},
	}

	cmd.Flags().StringVar(&notes, "notes", "", "free-text note recorded with the change")

	return cmd
}

func NewTapeSuggestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggest <size>",
		Short: "Suggest the best tape for an archive of the given size",
		Long:  "Scores active tapes by projected utilization and prints the best fit. Accepts sizes like 500GB or 1.5TB.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := humanize.ParseBytes(args[0])
			if err != nil {
				return fmt.Errorf("invalid size %q: %w", args[0], err)
			}

			ctx := cmd.Context()
			runtime, _, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer runtime.Close(ctx)

			suggestion := runtime.Optimizer.SuggestBestTape(ctx, int64(size))
			if suggestion == nil {
				fmt.Println("No tape has enough remaining capacity")
				return nil
			}
			fmt.Printf("Use tape %s (id %d): %s remaining, %.0f%% after write\n",
				suggestion.Label, suggestion.TapeID,
				humanize.Bytes(uint64(suggestion.RemainingBytes)),
				suggestion.ProjectedUtilization*100)
			return nil
		},
	}

	return cmd
}

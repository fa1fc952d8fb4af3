package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"time"
)

func (c *Cli) runSync(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	settle := fs.Duration("settle", 2*time.Second, "how long to wait for acknowledgments and remote changes")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if *settle <= 0 {
		return errors.New("sync: -settle must be positive")
	}

	c.io.Println("=== Synchronization ===")

	res, err := c.node.Sync(ctx, *settle)
	if err != nil {
		return fmt.Errorf("synchronization failed: %w", err)
	}

	c.io.Println()
	c.io.Printf("Pushed:        %d\n", res.Stats.Pushed)
	if res.Stats.Resent > 0 {
		c.io.Printf("Resent:        %d\n", res.Stats.Resent)
	}
	c.io.Printf("Acknowledged:  %d\n", res.Stats.Acked)
	c.io.Printf("Applied:       %d\n", res.Stats.Applied)
	if res.Stats.Conflicts > 0 {
		c.io.Printf("Conflicts:     %d\n", res.Stats.Conflicts)
	}
	if res.Stats.Rejected > 0 {
		c.io.Printf("Rejected:      %d\n", res.Stats.Rejected)
	}
	if res.Pending > 0 {
		c.io.Printf("Still pending: %d (will be resent on next sync)\n", res.Pending)
	}
	return nil
}

func (c *Cli) runDaemon(ctx context.Context) error {
	c.io.Println("Replicating, press Ctrl+C to stop")
	return c.node.Run(ctx)
}

func (c *Cli) runStatus(ctx context.Context) error {
	st, err := c.node.Status(ctx)
	if err != nil {
		return err
	}

	c.io.Printf("Node:                %s\n", st.NodeID)
	c.io.Printf("Collection:          %s\n", st.Collection)
	c.io.Printf("Documents:           %d\n", st.Documents)
	c.io.Printf("Tombstones:          %d\n", st.Tombstones)
	c.io.Printf("Pending deliveries:  %d\n", st.PendingDeliveries)
	c.io.Printf("Outbound checkpoint: %d\n", st.OutboundCheckpoint)
	c.io.Printf("Remote sequence:     %d\n", st.RemoteSequence)
	c.io.Printf("Clock:               %d\n", st.Clock)
	return nil
}

func (c *Cli) runGC(args []string) error {
	fs := flag.NewFlagSet("gc", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	horizon := fs.String("horizon", "", "drop tombstones with delete timestamp below this value")
	yes := fs.Bool("y", false, "do not ask for confirmation")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("gc: %w", err)
	}

	h, err := strconv.ParseInt(*horizon, 10, 64)
	if err != nil || h <= 0 {
		return errors.New("gc: -horizon must be a positive timestamp")
	}

	// Удаленный маркер больше не защищает от старых версий с пиров
	if !*yes {
		answer, err := c.io.ReadInput(fmt.Sprintf("Remove tombstones older than %d? [y/N]: ", h))
		if err != nil {
			return fmt.Errorf("gc: failed to read confirmation: %w", err)
		}
		if answer != "y" && answer != "yes" {
			c.io.Println("Aborted")
			return nil
		}
	}

	removed := c.node.CollectGarbage(h)
	c.io.Printf("Removed %d tombstone(s)\n", removed)
	return nil
}

// cmd/indexctl/cleanup.go
package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"maven-indexer/internal/cleanup"
	"maven-indexer/internal/pipeline"
)

var (
	cleanupRoot          string
	cleanupRetentionDays int
)

func init() {
	cleanupCmd.Flags().StringVar(&cleanupRoot, "work-dir", pipeline.DefaultWorkRoot, "shared root of the per-repository work directories")
	cleanupCmd.Flags().IntVar(&cleanupRetentionDays, "retention-days", 7, "remove work directories older than this many days")
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired work directories",
	Args:  cobra.NoArgs,
	RunE:  runCleanup,
}

func runCleanup(cmd *cobra.Command, args []string) error {
	if cleanupRetentionDays <= 0 {
		return fmt.Errorf("--retention-days must be positive, got %d", cleanupRetentionDays)
	}
	c := cleanup.NewCleaner(cleanupRoot, time.Duration(cleanupRetentionDays)*24*time.Hour, newLogger())

	removed, err := c.Sweep(cmd.Context())
	if err != nil {
		return err
	}
	for _, dir := range removed {
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", dir)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d directories removed\n", len(removed))
	return nil
}

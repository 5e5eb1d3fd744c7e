package main

import (
	"fmt"
	"path/filepath"

	"github.com/spboyer/loadeval/internal/cache"
	"github.com/spboyer/loadeval/internal/projectconfig"
	"github.com/spf13/cobra"
)

var cacheDir string

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the scoring result cache",
		Long: `Manage the scoring result cache.

Cached records are keyed by the metric, the item name and the contents of the
reference and candidate files, so editing either file invalidates its entry.`,
	}

	cmd.AddCommand(newCacheClearCommand())

	return cmd
}

func newCacheClearCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the scoring result cache",
		Args:  cobra.NoArgs,
		RunE:  cacheClearE,
	}

	cmd.Flags().StringVar(&cacheDir, "cache-dir", projectconfig.DefaultCacheDir, "Cache directory to clear")

	return cmd
}

func cacheClearE(cmd *cobra.Command, args []string) error {
	absDir, err := filepath.Abs(cacheDir)
	if err != nil {
		return fmt.Errorf("resolving cache directory: %w", err)
	}

	c := cache.New(absDir)
	if err := c.Clear(); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}

	fmt.Printf("Cache cleared: %s\n", c.Dir())
	return nil
}

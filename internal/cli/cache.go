package cli

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/financial_qa/pkg/logger"
)

// CacheCommand returns a command for cache administration
func CacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Cache operations",
		Subcommands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "Show memory tier statistics",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Print statistics as JSON"},
				},
				Action: cacheStatsAction,
			},
			{
				Name:   "sweep",
				Usage:  "Remove expired and corrupt persistent entries",
				Action: cacheSweepAction,
			},
			{
				Name:   "clear",
				Usage:  "Remove every cache entry",
				Action: cacheClearAction,
			},
			{
				Name:  "invalidate",
				Usage: "Remove one key or every key under a prefix",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "key", Usage: "Exact cache key"},
					&cli.StringFlag{Name: "prefix", Usage: "Key prefix"},
				},
				Action: cacheInvalidateAction,
			},
		},
	}
}

func cacheStatsAction(ctx *cli.Context) error {
	c, err := loadComponents(ctx)
	if err != nil {
		return err
	}
	stats := c.cache.Stats()
	w := ctx.App.Writer

	if ctx.Bool("json") {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	fmt.Fprintf(w, "Memory entries:  %s / %s\n", humanize.Comma(int64(stats.MemoryEntries)), humanize.Comma(int64(stats.MemcacheSize)))
	fmt.Fprintf(w, "Memory hits:     %s\n", humanize.Comma(stats.MemoryHits))
	fmt.Fprintf(w, "Persistent hits: %s\n", humanize.Comma(stats.PersistentHits))
	fmt.Fprintf(w, "Misses:          %s\n", humanize.Comma(stats.Misses))
	fmt.Fprintf(w, "Evictions:       %s\n", humanize.Comma(stats.Evictions))
	fmt.Fprintf(w, "Max age:         %s\n", stats.MaxAge)
	return nil
}

func cacheSweepAction(ctx *cli.Context) error {
	c, err := loadComponents(ctx)
	if err != nil {
		return err
	}
	n, err := c.cache.SweepExpired(ctx.Context)
	fmt.Fprintf(ctx.App.Writer, "Removed %s expired %s\n", humanize.Comma(int64(n)), plural(n, "entry", "entries"))
	if err != nil {
		c.log.Error("Sweep incomplete", logger.ErrorField(err))
		return fmt.Errorf("sweep incomplete: %w", err)
	}
	return nil
}

func cacheClearAction(ctx *cli.Context) error {
	c, err := loadComponents(ctx)
	if err != nil {
		return err
	}
	n, err := c.cache.ClearAll(ctx.Context)
	fmt.Fprintf(ctx.App.Writer, "Removed %s %s\n", humanize.Comma(int64(n)), plural(n, "entry", "entries"))
	if err != nil {
		return fmt.Errorf("clear incomplete: %w", err)
	}
	return nil
}

func cacheInvalidateAction(ctx *cli.Context) error {
	key, prefix := ctx.String("key"), ctx.String("prefix")
	if (key == "") == (prefix == "") {
		return fmt.Errorf("exactly one of --key or --prefix is required")
	}
	c, err := loadComponents(ctx)
	if err != nil {
		return err
	}

	if key != "" {
		found, err := c.cache.Invalidate(ctx.Context, key)
		if err != nil {
			return fmt.Errorf("invalidate %q: %w", key, err)
		}
		if found {
			fmt.Fprintf(ctx.App.Writer, "Removed %s\n", key)
		} else {
			fmt.Fprintf(ctx.App.Writer, "No entry for %s\n", key)
		}
		return nil
	}

	n, err := c.cache.InvalidateByPrefix(ctx.Context, prefix)
	fmt.Fprintf(ctx.App.Writer, "Removed %s %s under %q\n", humanize.Comma(int64(n)), plural(n, "entry", "entries"), prefix)
	if err != nil {
		return fmt.Errorf("invalidate prefix %q: %w", prefix, err)
	}
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

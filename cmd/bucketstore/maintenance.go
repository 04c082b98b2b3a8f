package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove expired entries",
	Long: `Remove expired entries from every bucket that is not in use.
With --list, every purged key is printed.`,
	Args: cobra.NoArgs,
	RunE: runPurge,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every entry",
	Args:  cobra.NoArgs,
	RunE:  runClear,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show how entries are spread over buckets",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var listPurged bool

func init() {
	purgeCmd.Flags().BoolVar(&listPurged, "list", false, "print purged keys")
	rootCmd.AddCommand(purgeCmd, clearCmd, statsCmd)
}

func runPurge(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	var (
		mu sync.Mutex
		n  int
	)
	start := time.Now()
	err = s.Purge(cmd.Context(), func(key []byte) {
		mu.Lock()
		defer mu.Unlock()
		n++
		if listPurged {
			fmt.Fprintln(cmd.OutOrStdout(), string(key))
		}
	})
	if err != nil {
		return fmt.Errorf("purging: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Purged %d entries in %v\n", n, time.Since(start).Round(time.Millisecond))
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	return s.Clear(cmd.Context())
}

func runStats(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	st, err := s.BucketStats(cmd.Context())
	if err != nil {
		return fmt.Errorf("collecting stats: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Backend:         %s\n", viper.GetString("backend"))
	if viper.GetString("backend") == "bolt" {
		fmt.Fprintf(w, "Database:        %s\n", dbPath())
		if info, err := os.Stat(dbPath()); err == nil {
			fmt.Fprintf(w, "Size on disk:    %s\n", formatBytes(info.Size()))
		}
	}
	fmt.Fprintf(w, "Rows:            %d\n", st.Rows)
	fmt.Fprintf(w, "Live entries:    %d\n", st.Entries)
	fmt.Fprintf(w, "Expired entries: %d\n", st.Expired)
	fmt.Fprintf(w, "Entries/row:     mean %.2f, stddev %.2f, p95 %.0f, max %d\n", st.Mean, st.StdDev, st.P95, st.Max)
	if st.CorruptRows > 0 {
		fmt.Fprintf(w, "Corrupt rows:    %d\n", st.CorruptRows)
	}
	return nil
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

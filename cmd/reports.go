package main

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/hellocl/internal/store"
)

var (
	reportsDataDir string
	keepLast       int
	olderThanDays  int
	forceClean     bool
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Manage saved run reports",
	Long:  `List, inspect and clean the run reports written by 'hellocl run --report-dir'.`,
}

var listReportsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all saved run reports",
	RunE:  runListReports,
}

var showReportCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run report with its stage trace",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowReport,
}

var cleanReportsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old run reports",
	Long: `Delete old run reports based on retention policy.
Keep only the newest N reports, delete reports older than N days, or both.`,
	RunE: runCleanReports,
}

func init() {
	rootCmd.AddCommand(reportsCmd)
	reportsCmd.AddCommand(listReportsCmd)
	reportsCmd.AddCommand(showReportCmd)
	reportsCmd.AddCommand(cleanReportsCmd)

	reportsCmd.PersistentFlags().StringVar(&reportsDataDir, "report-dir", "./reports", "Base directory for run reports")

	cleanReportsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N reports (0 = keep all)")
	cleanReportsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete reports older than N days (0 = no age limit)")
	cleanReportsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func runListReports(cmd *cobra.Command, args []string) error {
	runStore, err := store.NewFSStore(reportsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create report store: %w", err)
	}

	infos, err := runStore.ListRecords()
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No reports found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tTIMESTAMP\tBACKEND\tDEVICE\tSTATUS\tGPU\tCPU\tSIZE")
	fmt.Fprintln(w, "------\t---------\t-------\t------\t------\t---\t---\t----")

	for _, info := range infos {
		sizeStr := "unknown"
		if size, err := getDirSize(runStore.RunDir(info.RunID)); err == nil {
			sizeStr = formatBytes(size)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d ms\t%d ms\t%s\n",
			shortID(info.RunID),
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Backend,
			info.Device,
			info.Status,
			info.GPUMs,
			info.CPUMs,
			sizeStr,
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal reports: %d\n", len(infos))
	return nil
}

func runShowReport(cmd *cobra.Command, args []string) error {
	runStore, err := store.NewFSStore(reportsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create report store: %w", err)
	}

	runID := args[0]
	record, err := runStore.LoadRecord(runID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:      %s\n", record.RunID)
	fmt.Fprintf(out, "Time:     %s\n", record.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(out, "Status:   %s\n", record.Status())
	fmt.Fprintf(out, "Backend:  %s\n", record.Config.Backend)
	fmt.Fprintf(out, "Device:   %s (%s)\n", record.Device, record.Platform)
	fmt.Fprintf(out, "Kernel:   %s in %s\n", record.Config.KernelName, record.Config.KernelPath)
	fmt.Fprintf(out, "Workload: %d bytes, local size %d, seed %d\n", record.Config.GlobalSize, record.Config.LocalSize, record.Config.Seed)
	fmt.Fprintf(out, "Timings:  build %d ms, kernel %d ms, gpu %d ms, cpu %d ms\n", record.BuildMs, record.KernelMs, record.GPUMs, record.CPUMs)
	if record.InputDigest != "" {
		fmt.Fprintf(out, "Input:    %s\n", record.InputDigest)
		fmt.Fprintf(out, "Output:   %s\n", record.OutputDigest)
	}
	for _, soft := range record.SoftErrors {
		fmt.Fprintf(out, "Warning:  %s\n", soft)
	}
	if record.Error != "" {
		fmt.Fprintf(out, "Error:    %s\n", record.Error)
	}
	if record.BuildLog != "" {
		fmt.Fprintf(out, "\nBuild log:\n%s\n", record.BuildLog)
	}

	entries, err := runStore.LoadTrace(runID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to read stage trace: %w", err)
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tELAPSED\tRESULT")
	for _, entry := range entries {
		result := "ok"
		switch {
		case entry.Fatal:
			result = "fatal: " + entry.Error
		case entry.Error != "":
			result = "error: " + entry.Error
		}
		fmt.Fprintf(w, "%s\t%.3f ms\t%s\n", entry.Stage, entry.ElapsedMs, firstLine(result))
	}
	return w.Flush()
}

func runCleanReports(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	runStore, err := store.NewFSStore(reportsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create report store: %w", err)
	}

	infos, err := runStore.ListRecords()
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No reports to clean.")
		return nil
	}

	toDelete := selectRecordsForDeletion(infos, keepLast, olderThanDays)
	if len(toDelete) == 0 {
		fmt.Fprintln(out, "No reports match deletion criteria.")
		return nil
	}

	fmt.Fprintf(out, "Found %d report(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  - %s (%s, %s)\n",
			shortID(info.RunID),
			info.Status,
			info.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}

	if !forceClean {
		fmt.Fprint(out, "\nProceed with deletion? [y/N]: ")
		response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		response = strings.TrimSpace(response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := runStore.DeleteRecord(info.RunID); err != nil {
			slog.Error("Failed to delete report", "run_id", info.RunID, "error", err)
			failed++
			continue
		}
		slog.Info("Deleted report", "run_id", info.RunID)
		deleted++
	}

	fmt.Fprintf(out, "\nDeleted %d report(s), %d failed.\n", deleted, failed)
	return nil
}

// selectRecordsForDeletion applies the age and count retention rules. A record
// matching both rules is returned once.
func selectRecordsForDeletion(infos []store.RecordInfo, keepLast int, olderThanDays int) []store.RecordInfo {
	var toDelete []store.RecordInfo
	selected := make(map[string]bool)

	if olderThanDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.Timestamp.Before(cutoff) {
				toDelete = append(toDelete, info)
				selected[info.RunID] = true
			}
		}
	}

	if keepLast > 0 && len(infos) > keepLast {
		sorted := make([]store.RecordInfo, len(infos))
		copy(sorted, infos)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})

		for _, info := range sorted[:len(sorted)-keepLast] {
			if !selected[info.RunID] {
				toDelete = append(toDelete, info)
				selected[info.RunID] = true
			}
		}
	}

	return toDelete
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
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

// Command gitvan is the CLI surface named in spec §6, "treated as an
// external collaborator; the core merely exposes the operations it
// invokes". This file holds only cobra.Command wiring and flag decoding
// — every operation body lives in internal/cliops. Grounded on the
// teacher's cmd/gh-aw/main.go split (a flat list of package-level
// *cobra.Command vars, wired into rootCmd in init/main).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/seanchatmangpt/gitvan/internal/cliops"
	"github.com/seanchatmangpt/gitvan/internal/resolve"
	"github.com/seanchatmangpt/gitvan/pkg/console"
	"github.com/seanchatmangpt/gitvan/pkg/stringutil"
	"github.com/spf13/cobra"
)

var targetDir string

var rootCmd = &cobra.Command{
	Use:   "gitvan",
	Short: "Git-native pack resolver, applier, and automation daemon",
}

func envOrExit(cmd *cobra.Command) *cliops.Env {
	dir := targetDir
	if dir == "" {
		dir, _ = os.Getwd()
	}
	env, err := cliops.NewEnv(dir)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		os.Exit(int(cliops.ExitError))
	}
	return env
}

// planTree renders a resolve.Plan's apply order as a TreeNode so
// packPreviewCmd can hand it to console.RenderTree.
func planTree(plan resolve.Plan) console.TreeNode {
	root := console.TreeNode{Value: "apply order"}
	for _, ref := range plan.Plan {
		root.Children = append(root.Children, console.TreeNode{
			Value: fmt.Sprintf("%d. %s@%s", ref.Order, ref.ID, ref.Version),
		})
	}
	return root
}

func parseInputs(raw []string) map[string]map[string]any {
	inputs := map[string]map[string]any{"*": {}}
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		inputs["*"][k] = v
	}
	return inputs
}

var packApplyCmd = &cobra.Command{
	Use:   "apply <ids...>",
	Short: "Resolve and apply one or more packs to the target directory",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawInputs, _ := cmd.Flags().GetStringArray("input")
		continueOnError, _ := cmd.Flags().GetBool("continue-on-error")
		ignoreConflicts, _ := cmd.Flags().GetBool("ignore-conflicts")

		env := envOrExit(cmd)
		report, code, err := cliops.Apply(cmd.Context(), env, cliops.ApplyOptions{
			IDs: args, TargetDir: targetDir, Inputs: parseInputs(rawInputs),
			ContinueOnError: continueOnError, IgnoreConflicts: ignoreConflicts,
		})
		rows := make([][]string, 0, len(report.PerPack))
		for _, pr := range report.PerPack {
			rows = append(rows, []string{pr.PackID, string(pr.Status), pr.Error})
		}
		fmt.Fprint(cmd.OutOrStdout(), console.RenderTable(console.TableConfig{
			Title: "pack apply", Headers: []string{"Pack", "Status", "Error"}, Rows: rows,
		}))
		if code == cliops.ExitOK {
			fmt.Fprintln(cmd.OutOrStdout(), console.FormatSuccessMessage("all packs applied"))
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), console.FormatErrorMessage("one or more packs failed to apply"))
		}
		os.Exit(int(code))
		return err
	},
}

var packPreviewCmd = &cobra.Command{
	Use:   "preview <ids...>",
	Short: "Show the application plan for one or more packs without applying",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env := envOrExit(cmd)
		plan, code, err := cliops.Preview(cmd.Context(), env, args)
		fmt.Fprint(cmd.OutOrStdout(), console.RenderTree(planTree(plan)))
		if len(plan.Conflicts) > 0 {
			for _, c := range plan.Conflicts {
				fmt.Fprintln(cmd.OutOrStdout(), console.FormatErrorMessage(fmt.Sprintf("%s <-> %s: %s", c.A, c.B, c.Reason)))
			}
		}
		os.Exit(int(code))
		return err
	},
}

var packValidateCmd = &cobra.Command{
	Use:   "validate <ids...>",
	Short: "Validate one or more pack manifests and their resolved plan",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env := envOrExit(cmd)
		valid, code, err := cliops.Validate(cmd.Context(), env, args)
		if valid {
			fmt.Fprintln(cmd.OutOrStdout(), console.FormatSuccessMessage("ok"))
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), console.FormatErrorMessage("invalid"))
		}
		os.Exit(int(code))
		return err
	},
}

var packCmd = &cobra.Command{Use: "pack", Short: "Pack resolution and application"}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the automation daemon in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		workers, _ := cmd.Flags().GetInt("workers")
		poll, _ := cmd.Flags().GetDuration("poll-interval")

		dir := targetDir
		if dir == "" {
			dir, _ = os.Getwd()
		}
		env := envOrExit(cmd)

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		code, err := cliops.DaemonStart(ctx, env, cliops.DaemonConfig{
			RepoDir: dir, JobsDir: dir + "/jobs", EventsDir: dir + "/events",
			Workers: workers, PollInterval: poll,
		})
		os.Exit(int(code))
		return err
	},
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running daemon (not supported for a foreground daemon process)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("gitvan daemon runs in the foreground; send SIGTERM/SIGINT to the process instead")
	},
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether a daemon process appears reachable (not supported for a foreground daemon process)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("gitvan daemon runs in the foreground; there is no out-of-process status to query")
	},
}

var daemonCmd = &cobra.Command{Use: "daemon", Short: "Automation daemon lifecycle"}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := targetDir
		if dir == "" {
			dir, _ = os.Getwd()
		}
		jobs, code, err := cliops.JobList(dir + "/jobs")
		rows := make([][]string, 0, len(jobs))
		for _, j := range jobs {
			rows = append(rows, []string{j.ID, j.Cron, fmt.Sprintf("%v", j.Hooks)})
		}
		fmt.Fprint(cmd.OutOrStdout(), console.RenderTable(console.TableConfig{
			Title: "jobs", Headers: []string{"ID", "Cron", "Hooks"}, Rows: rows,
		}))
		os.Exit(int(code))
		return err
	},
}

var jobRunCmd = &cobra.Command{
	Use:   "run <id>",
	Short: "Run one job immediately, outside the daemon's signal loop",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := targetDir
		if dir == "" {
			dir, _ = os.Getwd()
		}
		env := envOrExit(cmd)
		result, code, err := cliops.JobRun(cmd.Context(), env, dir+"/jobs", args[0])
		msg := fmt.Sprintf("exit=%d artifact=%s", result.ExitCode, result.Artifact)
		if result.ExitCode == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), console.FormatSuccessMessage(msg))
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), console.FormatErrorMessage(msg))
			if result.Stderr != "" {
				fmt.Fprintln(cmd.OutOrStdout(), console.FormatListItem(stringutil.Truncate(result.Stderr, 500)))
			}
		}
		os.Exit(int(code))
		return err
	},
}

var jobCmd = &cobra.Command{Use: "job", Short: "Job discovery and manual invocation"}

var eventListCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered event bindings",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := targetDir
		if dir == "" {
			dir, _ = os.Getwd()
		}
		bindings, code, err := cliops.EventList(dir + "/events")
		rows := make([][]string, 0, len(bindings))
		for _, b := range bindings {
			rows = append(rows, []string{b.Kind, b.Pattern, b.JobID})
		}
		fmt.Fprint(cmd.OutOrStdout(), console.RenderTable(console.TableConfig{
			Title: "event bindings", Headers: []string{"Kind", "Pattern", "Job"}, Rows: rows,
		}))
		os.Exit(int(code))
		return err
	},
}

var eventSimulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Not available from the command line: defines no flags and always exits with an error",
	RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("event simulate is not available from the command line: it defines no --message or --path flags")
	},
}

var eventCmd = &cobra.Command{Use: "event", Short: "Event binding discovery and simulation"}

var cronListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs with a declared cron schedule and their next run time",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := targetDir
		if dir == "" {
			dir, _ = os.Getwd()
		}
		entries, code, err := cliops.CronList(dir+"/jobs", time.Now().UTC())
		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []string{e.JobID, e.Spec, e.Next.Format(time.RFC3339)})
		}
		fmt.Fprint(cmd.OutOrStdout(), console.RenderTable(console.TableConfig{
			Title: "cron schedule", Headers: []string{"Job", "Spec", "Next"}, Rows: rows,
		}))
		os.Exit(int(code))
		return err
	},
}

var cronDryRunCmd = &cobra.Command{
	Use:   "dry-run",
	Short: "Report which cron jobs would fire right now, without running them",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := targetDir
		if dir == "" {
			dir, _ = os.Getwd()
		}
		fired, code, err := cliops.CronDryRun(dir+"/jobs", time.Now().UTC())
		if len(fired) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), console.FormatInfoMessage("no cron jobs due"))
		}
		for _, id := range fired {
			fmt.Fprintln(cmd.OutOrStdout(), console.FormatListItem(id))
		}
		os.Exit(int(code))
		return err
	},
}

var cronCmd = &cobra.Command{Use: "cron", Short: "Cron schedule discovery"}

var auditListCmd = &cobra.Command{
	Use:   "list <commit>",
	Short: "List receipts recorded under a commit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env := envOrExit(cmd)
		records, code, err := cliops.AuditList(env, args[0])
		rows := make([][]string, 0, len(records))
		for _, r := range records {
			rows = append(rows, []string{r.ID, r.Status, r.Fingerprint})
		}
		fmt.Fprint(cmd.OutOrStdout(), console.RenderTable(console.TableConfig{
			Title: "receipts @ " + args[0], Headers: []string{"ID", "Status", "Fingerprint"}, Rows: rows,
		}))
		os.Exit(int(code))
		return err
	},
}

var auditShowCmd = &cobra.Command{
	Use:   "show <commit>",
	Short: "Show receipt detail recorded under a commit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env := envOrExit(cmd)
		records, code, err := cliops.AuditShow(env, args[0])
		rows := make([][]string, 0, len(records))
		for _, r := range records {
			errMsg := ""
			if r.Error != nil {
				errMsg = r.Error.Message
			}
			rows = append(rows, []string{r.ID, r.Status, r.Action, r.Commit, r.Fingerprint, errMsg})
		}
		fmt.Fprint(cmd.OutOrStdout(), console.RenderTable(console.TableConfig{
			Title:   "receipt detail @ " + args[0],
			Headers: []string{"ID", "Status", "Action", "Commit", "Fingerprint", "Error"},
			Rows:    rows,
		}))
		os.Exit(int(code))
		return err
	},
}

var auditCmd = &cobra.Command{Use: "audit", Short: "Receipt history for a commit"}

func init() {
	rootCmd.PersistentFlags().StringVar(&targetDir, "target", "", "target repository directory (default: cwd)")
	rootCmd.SilenceUsage = true

	packApplyCmd.Flags().StringArray("input", nil, "pack input as key=value, repeatable")
	packApplyCmd.Flags().Bool("continue-on-error", false, "keep applying remaining packs after one fails")
	packApplyCmd.Flags().Bool("ignore-conflicts", false, "apply overlapping packs anyway")
	packCmd.AddCommand(packApplyCmd, packPreviewCmd, packValidateCmd)

	daemonStartCmd.Flags().Int("workers", 4, "worker pool size")
	daemonStartCmd.Flags().Duration("poll-interval", time.Second, "git HEAD poll cadence")
	daemonCmd.AddCommand(daemonStartCmd, daemonStopCmd, daemonStatusCmd)

	jobCmd.AddCommand(jobListCmd, jobRunCmd)
	eventCmd.AddCommand(eventListCmd, eventSimulateCmd)
	cronCmd.AddCommand(cronListCmd, cronDryRunCmd)
	auditCmd.AddCommand(auditListCmd, auditShowCmd)

	rootCmd.AddCommand(packCmd, daemonCmd, jobCmd, eventCmd, cronCmd, auditCmd)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(int(cliops.ExitError))
	}
}

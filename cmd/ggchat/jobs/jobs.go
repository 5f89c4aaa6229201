// Package jobscmder provides the jobs command for following model download
// jobs.
package jobscmder

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ggchat/pkg/app"
	"github.com/papercomputeco/ggchat/pkg/chat"
	"github.com/papercomputeco/ggchat/pkg/cliui"
	"github.com/papercomputeco/ggchat/pkg/config"
	"github.com/papercomputeco/ggchat/pkg/jobs"
)

const jobsLongDesc string = `Show model download jobs.

Without flags, prints the current job list once. With --watch, polls the
service (every jobs.active_interval while a download is pending or running,
every jobs.idle_interval otherwise) and prints each status change until
interrupted. Status changes are published to the configured event backend.

Examples:
  ggchat jobs
  ggchat jobs --latest
  ggchat jobs --watch --until-idle`

const jobsShortDesc string = "Show model download jobs"

var flagKeys = []string{
	config.FlagServer,
	config.FlagEventsProvider,
	config.FlagEventsBrokers,
	config.FlagEventsTopic,
}

type jobsCommander struct {
	watch     bool
	untilIdle bool
	latest    bool
}

func NewJobsCmd() *cobra.Command {
	cmder := &jobsCommander{}

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: jobsShortDesc,
		Long:  jobsLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.FromCommand(cmd, flagKeys)
			if err != nil {
				return err
			}
			defer a.Close()

			poller, err := jobs.New(jobs.Config{
				Lister:         a.Client,
				ActiveInterval: a.ActiveInterval,
				IdleInterval:   a.IdleInterval,
				Publisher:      a.Publisher,
				Logger:         a.Logger,
			})
			if err != nil {
				return err
			}

			if cmder.watch {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return cmder.runWatch(ctx, cmd.OutOrStdout(), poller)
			}
			return cmder.runOnce(cmd.Context(), cmd.OutOrStdout(), poller)
		},
	}

	var server, provider, brokers, topic string
	config.AddStringFlag(cmd, config.Flags, config.FlagServer, &server)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventsProvider, &provider)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventsBrokers, &brokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventsTopic, &topic)
	cmd.Flags().BoolVarP(&cmder.watch, "watch", "w", false, "Poll and print status changes until interrupted")
	cmd.Flags().BoolVar(&cmder.untilIdle, "until-idle", false, "With --watch, exit once no job is pending or running")
	cmd.Flags().BoolVar(&cmder.latest, "latest", false, "Show only the most recent job per model")

	return cmd
}

func (c *jobsCommander) runOnce(ctx context.Context, w io.Writer, poller *jobs.Poller) error {
	if err := poller.Refresh(ctx); err != nil {
		return err
	}

	list := poller.Jobs()
	if c.latest {
		list = latestList(poller.LatestByModel())
	}

	if len(list) == 0 {
		fmt.Fprintf(w, "\n  %s No download jobs.\n\n", cliui.DimStyle.Render("●"))
		return nil
	}
	return writeTable(w, list)
}

func (c *jobsCommander) runWatch(ctx context.Context, w io.Writer, poller *jobs.Poller) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsubscribe := poller.Subscribe(func(snapshot []chat.DownloadJob, transitions []jobs.Transition) {
		for _, t := range transitions {
			fmt.Fprintln(w, FormatTransition(t))
		}
		if c.untilIdle && !jobs.HasActive(snapshot) {
			cancel()
		}
	})
	defer unsubscribe()

	err := poller.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// FormatTransition renders one status change, e.g.
// "job 4 (model 7): pending → running 1.5 MB".
func FormatTransition(t jobs.Transition) string {
	status := string(t.Job.Status)
	if t.From != "" {
		status = string(t.From) + " → " + status
	}

	line := fmt.Sprintf("  %s job %d (model %d): %s",
		statusMark(t.Job.Status), t.Job.ID, t.Job.ModelID, status)

	if t.Job.ProgressBytes > 0 {
		line += " " + cliui.DimStyle.Render(FormatBytes(t.Job.ProgressBytes))
	}
	if t.Job.Error != nil && *t.Job.Error != "" {
		line += " " + cliui.WarnStyle.Render(*t.Job.Error)
	}
	return line
}

func writeTable(w io.Writer, list []chat.DownloadJob) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMODEL\tSTATUS\tPROGRESS\tERROR")
	for _, j := range list {
		errText := ""
		if j.Error != nil {
			errText = cliui.Truncate(*j.Error, 60)
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", j.ID, j.ModelID, j.Status, FormatBytes(j.ProgressBytes), errText)
	}
	return tw.Flush()
}

func latestList(byModel map[int64]chat.DownloadJob) []chat.DownloadJob {
	list := make([]chat.DownloadJob, 0, len(byModel))
	for _, j := range byModel {
		list = append(list, j)
	}
	slices.SortFunc(list, func(a, b chat.DownloadJob) int {
		return cmp.Compare(a.ModelID, b.ModelID)
	})
	return list
}

func statusMark(s chat.JobStatus) string {
	switch s {
	case chat.JobDone:
		return cliui.Mark(nil)
	case chat.JobFailed:
		return cliui.Mark(errors.New(string(s)))
	default:
		return cliui.DimStyle.Render("●")
	}
}

// FormatBytes renders n with a decimal unit, e.g. "1.5 MB".
func FormatBytes(n int64) string {
	const unit = 1000
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "kMGTPE"[exp])
}

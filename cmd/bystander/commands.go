package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xraph/bystander/engine"
	"github.com/xraph/bystander/gateway"
	"github.com/xraph/bystander/job"
	"github.com/xraph/bystander/request"
	"github.com/xraph/bystander/rotation"
	"github.com/xraph/bystander/stream"
)

func withRuntime(cmd *cobra.Command, v *viper.Viper, fn func(*runtime) error) error {
	return withRuntimeSetup(cmd, v, nil, fn)
}

// withRuntimeSetup lets a command add engine options once the logger
// exists. Logs go to the command's stderr.
func withRuntimeSetup(cmd *cobra.Command, v *viper.Viper, setup func(*slog.Logger) []engine.Option, fn func(*runtime) error) error {
	rt, err := newRuntime(cmd.Context(), v, cmd.ErrOrStderr(), setup)
	if err != nil {
		return err
	}
	defer rt.close()
	return fn(rt)
}

func workerCmd(v *viper.Viper) *cobra.Command {
	var events bool
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process response timeouts until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var broker *stream.Broker
			setup := func(logger *slog.Logger) []engine.Option {
				if !events {
					return nil
				}
				broker = stream.NewBroker(logger)
				return []engine.Option{engine.WithExtension(broker)}
			}

			return withRuntimeSetup(cmd, v, setup, func(rt *runtime) error {
				done := make(chan struct{})
				if broker != nil {
					sub, err := broker.Subscribe("cli", stream.TopicFirehose)
					if err != nil {
						return err
					}
					go func() {
						defer close(done)
						enc := json.NewEncoder(cmd.OutOrStdout())
						for evt := range sub.C() {
							_ = enc.Encode(evt)
						}
					}()
				} else {
					close(done)
				}

				if err := rt.engine.Start(ctx); err != nil {
					return err
				}
				cfg := rt.engine.Bystander().Config()
				rt.logger.Info("worker started",
					slog.Int("concurrency", cfg.Concurrency),
					slog.Bool("events", broker != nil),
				)
				<-ctx.Done()

				shutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
				defer cancel()
				rt.logger.Info("worker stopping")
				err := rt.engine.Stop(shutdown)
				<-done
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&events, "events", false, "print rotation events to stdout as JSON lines")
	return cmd
}

func createCmd(v *viper.Viper) *cobra.Command {
	var requester, channel string
	cmd := &cobra.Command{
		Use:   "create <text>",
		Short: "Start a rotation, as if the requester had typed the command",
		Example: `  bystander create --requester U1 --channel C1 '<!subteam^S1> water the plants'
  bystander create --requester U1 --channel C1 '<@U2> <@U3|carol> fix the build'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, v, func(rt *runtime) error {
				if rt.cfg.Directory == "" {
					return errNoDirectory
				}
				res, err := rt.engine.Create(cmd.Context(), engine.CreateCommand{
					RawText:     strings.Join(args, " "),
					RequesterID: requester,
					ChannelID:   channel,
				})
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), rt.cfg.JSON, res)
			})
		},
	}
	cmd.Flags().StringVar(&requester, "requester", "", "user who asked")
	cmd.Flags().StringVar(&channel, "channel", "", "channel the request was made in")
	_ = cmd.MarkFlagRequired("requester")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}

func respondCmd(v *viper.Viper) *cobra.Command {
	var user, channel string
	cmd := &cobra.Command{
		Use:   "respond <request-id> <accept|reject>",
		Short: "Answer a prompt, as if the user had pressed a button",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, v, func(rt *runtime) error {
				res, err := rt.engine.Respond(cmd.Context(), engine.ResponseCommand{
					RequestID: args[0],
					UserID:    user,
					ChannelID: channel,
					Action:    gateway.Action(args[1]),
				})
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), rt.cfg.JSON, res)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user who pressed the button")
	cmd.Flags().StringVar(&channel, "channel", "", "channel the prompt was shown in")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func showCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "show <request-id>",
		Short: "Print an in-flight request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, v, func(rt *runtime) error {
				r, err := rt.engine.Request(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				view := newRequestView(r)
				if rt.cfg.JSON {
					return printJSON(cmd.OutOrStdout(), view)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(cmd.OutOrStdout())
				tw.AppendRows([]table.Row{
					{"ID", view.ID},
					{"Requester", view.RequesterID},
					{"Channel", view.ChannelID},
					{"Text", view.Text},
					{"Holder", view.Current},
					{"Candidates", strings.Join(view.Candidates, ", ")},
					{"Rejected", strings.Join(view.Rejected, ", ")},
					{"Created", humanize.Time(view.CreatedAt)},
					{"Updated", humanize.Time(view.UpdatedAt)},
				})
				tw.Render()
				return nil
			})
		},
	}
}

func jobsCmd(v *viper.Viper) *cobra.Command {
	var (
		state string
		queue string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List response timeout jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st := job.State(state)
			switch st {
			case job.StatePending, job.StateRunning, job.StateCompleted, job.StateFailed, job.StateRetrying:
			default:
				return fmt.Errorf("unknown job state %q", state)
			}

			return withRuntime(cmd, v, func(rt *runtime) error {
				jobs, err := rt.engine.Store().ListJobsByState(cmd.Context(), st, job.ListOpts{
					Queue: queue,
					Limit: limit,
				})
				if err != nil {
					return err
				}
				if rt.cfg.JSON {
					return printJSON(cmd.OutOrStdout(), jobs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(cmd.OutOrStdout())
				tw.AppendHeader(table.Row{"ID", "Request", "Queue", "State", "Run At", "Retries", "Last Error"})
				for _, j := range jobs {
					tw.AppendRow(table.Row{
						j.ID, j.RequestID, j.Queue, j.State,
						humanize.Time(j.RunAt), j.RetryCount, j.LastError,
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", string(job.StatePending), "job state")
	cmd.Flags().StringVar(&queue, "queue", "", "queue name; empty lists every queue")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum jobs to list")
	return cmd
}

// requestView carries the id, which request.Request leaves out of its JSON.
type requestView struct {
	ID          string    `json:"id"`
	RequesterID string    `json:"requester_id"`
	ChannelID   string    `json:"channel_id"`
	Text        string    `json:"text"`
	Current     string    `json:"current,omitempty"`
	Candidates  []string  `json:"candidates"`
	Rejected    []string  `json:"rejected"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newRequestView(r *request.Request) requestView {
	return requestView{
		ID:          r.ID.String(),
		RequesterID: r.RequesterID,
		ChannelID:   r.ChannelID,
		Text:        r.Text,
		Current:     r.Current,
		Candidates:  r.Candidates,
		Rejected:    r.Rejected,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type resultView struct {
	Outcome   string       `json:"outcome"`
	RequestID string       `json:"request_id,omitempty"`
	Holder    string       `json:"holder,omitempty"`
	Request   *requestView `json:"request,omitempty"`
}

func printResult(w io.Writer, asJSON bool, res rotation.Result) error {
	out := resultView{Outcome: res.Outcome.String(), Holder: res.Holder}
	if !res.RequestID.IsNil() {
		out.RequestID = res.RequestID.String()
	}
	if res.Request != nil {
		v := newRequestView(res.Request)
		out.Request = &v
	}
	if asJSON {
		return printJSON(w, out)
	}
	fmt.Fprintf(w, "Outcome: %s\n", out.Outcome)
	if out.RequestID != "" {
		fmt.Fprintf(w, "Request: %s\n", out.RequestID)
	}
	if out.Holder != "" {
		fmt.Fprintf(w, "Holder:  %s\n", out.Holder)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var errNoDirectory = errors.New("no user directory configured; pass --directory")

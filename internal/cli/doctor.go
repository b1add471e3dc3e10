package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"spese-cli/internal/storage"
)

const doctorTimeout = 5 * time.Second

type check struct {
	name   string
	ok     bool
	detail string
}

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(cmd, deps)
			results := runChecks(cmd.Context(), deps)

			ok := true
			for _, c := range results {
				f.SetupCheck(c.name, c.ok, c.detail)
				ok = ok && c.ok
			}
			if ok {
				f.Success("\nAll prerequisites met. Ready to record!")
			} else {
				f.Warning("\nSome prerequisites are missing.")
			}
			return nil
		},
	}
}

// runChecks checks every dependency concurrently; results keep their order
func runChecks(ctx context.Context, deps *Dependencies) []check {
	a, cfg := deps.App, deps.Config
	checkers := []func(context.Context) check{
		func(context.Context) check {
			if err := a.Capturer.Check(); err != nil {
				return check{"ffmpeg", false, err.Error() + ". Install ffmpeg to record"}
			}
			return check{"ffmpeg", true, "installed"}
		},
		func(context.Context) check {
			if err := a.Player.Check(); err != nil {
				return check{"ffplay", false, err.Error() + ". Playback will be unavailable"}
			}
			return check{"ffplay", true, "installed"}
		},
		func(ctx context.Context) check {
			name := "Backend (" + cfg.DataBackend + ")"
			tree, err := a.Catalog.Refresh(ctx)
			if err != nil {
				return check{name, false, err.Error()}
			}
			return check{name, true, fmt.Sprintf("reachable, %d categories", len(tree))}
		},
		func(context.Context) check {
			if !cfg.OutboxEnabled() {
				return check{"Outbox", true, "disabled"}
			}
			v, dirty, err := storage.SchemaVersion(cfg.OutboxDBPath)
			if err != nil {
				return check{"Outbox", false, err.Error()}
			}
			if dirty {
				return check{"Outbox", false, fmt.Sprintf("schema version %d is dirty", v)}
			}
			return check{"Outbox", true, fmt.Sprintf("%s (schema v%d)", cfg.OutboxDBPath, v)}
		},
		func(context.Context) check {
			switch {
			case !cfg.AMQPEnabled():
				return check{"AMQP", true, "disabled"}
			case a.Broker == nil:
				return check{"AMQP", false, "broker unreachable at " + cfg.AMQPURL}
			default:
				return check{"AMQP", true, "connected to exchange " + cfg.AMQPExchange}
			}
		},
	}

	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()

	results := make([]check, len(checkers))
	g, gctx := errgroup.WithContext(ctx)
	for i, checker := range checkers {
		i, checker := i, checker
		g.Go(func() error {
			results[i] = checker(gctx)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

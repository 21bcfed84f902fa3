package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Summary totals a mirror run.
type Summary struct {
	OK       int
	Skip     int
	Err      int
	Outcomes []Outcome
}

func (s Summary) Failed() bool { return s.Err > 0 }

// Runner executes a plan with bounded parallelism.
type Runner struct {
	Fetcher     *Fetcher
	Parallelism int
	Log         *zap.Logger
}

func NewRunner(f *Fetcher, parallelism int, log *zap.Logger) *Runner {
	if parallelism < 1 {
		parallelism = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{Fetcher: f, Parallelism: parallelism, Log: log}
}

// Run fetches every job. Outcomes keep the plan order whatever the
// completion order was.
func (r *Runner) Run(ctx context.Context, jobs []Job) Summary {
	outcomes := make([]Outcome, len(jobs))

	var g errgroup.Group
	g.SetLimit(r.Parallelism)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i] = Outcome{Job: job, Status: StatusErr, Detail: err.Error()}
				return nil
			}
			out := r.Fetcher.Fetch(ctx, job)
			outcomes[i] = out
			r.logOutcome(out)
			return nil
		})
	}
	_ = g.Wait()

	sum := Summary{Outcomes: outcomes}
	for _, o := range outcomes {
		switch o.Status {
		case StatusOK:
			sum.OK++
		case StatusSkip:
			sum.Skip++
		default:
			sum.Err++
		}
	}
	return sum
}

func (r *Runner) logOutcome(o Outcome) {
	fields := []zap.Field{
		zap.String("family", o.Job.Family),
		zap.String("kind", string(o.Job.Kind)),
		zap.String("id", o.Job.ID),
		zap.String("result", o.String()),
	}
	if o.Status == StatusErr {
		r.Log.Warn("media fetch failed", append(fields, zap.String("url", o.Job.URL))...)
		return
	}
	r.Log.Info("media", fields...)
}

// WriteAccessoryIDs records the accessory ids handled by a run.
func WriteAccessoryIDs(dataDir string, ids []string) (string, error) {
	p := filepath.Join(dataDir, AccessoryIDsFile)
	content := strings.Join(ids, "\n") + "\n"
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write accessory ids: %w", err)
	}
	return p, nil
}

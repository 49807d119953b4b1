package phash

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Task is one unit of hashing work. Load is called inside a worker so that
// decoded pixels are only held while they are being hashed.
type Task struct {
	ID   string
	Load func(ctx context.Context) (*Raster, error)
}

// Result is a successfully hashed task.
type Result struct {
	ID          string
	Fingerprint Fingerprint
	Width       int
	Height      int
}

// Pixels is the decoded pixel area.
func (r Result) Pixels() int64 { return int64(r.Width) * int64(r.Height) }

// Failure is a task that could not be hashed.
type Failure struct {
	ID  string
	Err error
}

// BatchResult collects the outcome of Pool.Run. Result order is unspecified.
type BatchResult struct {
	Results  []Result
	Failures []Failure
	// Dropped counts queued tasks that were never started because the run was
	// cancelled.
	Dropped int
}

// Pool hashes tasks on a fixed number of workers.
type Pool struct {
	algo     Algorithm
	workers  int
	log      zerolog.Logger
	progress func(done, total int)
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(l zerolog.Logger) PoolOption {
	return func(p *Pool) { p.log = l }
}

// WithProgress registers a callback invoked after each finished task. It is
// called from worker goroutines but never concurrently.
func WithProgress(fn func(done, total int)) PoolOption {
	return func(p *Pool) { p.progress = fn }
}

// NewPool creates a pool. workers <= 0 means one worker per CPU.
func NewPool(algo Algorithm, workers int, opts ...PoolOption) (*Pool, error) {
	if !algo.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, algo)
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &Pool{algo: algo, workers: workers, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Workers reports the pool size.
func (p *Pool) Workers() int { return p.workers }

// Run hashes every task. A failing task is recorded in Failures and does not
// stop the batch. When ctx is cancelled, tasks already being hashed finish,
// queued ones are dropped, and Run returns the partial result with ctx.Err().
// A task whose loader gives up because of the cancellation counts as
// dropped, not failed.
func (p *Pool) Run(ctx context.Context, tasks []Task) (*BatchResult, error) {
	var (
		mu   sync.Mutex
		res  = &BatchResult{}
		done int
	)
	total := len(tasks)
	queue := make(chan Task)

	g := new(errgroup.Group)
	g.Go(func() error {
		defer close(queue)
		for i, t := range tasks {
			select {
			case <-ctx.Done():
				mu.Lock()
				res.Dropped += total - i
				mu.Unlock()
				return nil
			case queue <- t:
			}
		}
		return nil
	})

	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			for t := range queue {
				if ctx.Err() != nil {
					mu.Lock()
					res.Dropped++
					mu.Unlock()
					continue
				}
				r, err := p.hashOne(ctx, t)

				mu.Lock()
				switch {
				case err == nil:
					res.Results = append(res.Results, r)
				case cancelled(ctx, err):
					res.Dropped++
					mu.Unlock()
					continue
				default:
					res.Failures = append(res.Failures, Failure{ID: t.ID, Err: err})
				}
				done++
				if p.progress != nil {
					p.progress(done, total)
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	p.log.Debug().
		Int("hashed", len(res.Results)).
		Int("failed", len(res.Failures)).
		Int("dropped", res.Dropped).
		Str("algorithm", p.algo.String()).
		Msg("hash batch finished")

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func (p *Pool) hashOne(ctx context.Context, t Task) (Result, error) {
	if t.Load == nil {
		return Result{}, &DecodeError{ID: t.ID, Reason: "no loader"}
	}
	r, err := t.Load(ctx)
	if err != nil {
		if cancelled(ctx, err) {
			return Result{}, err
		}
		var de *DecodeError
		if errors.As(err, &de) && de.ID == "" {
			de.ID = t.ID
		}
		p.log.Warn().Err(err).Str("path", t.ID).Msg("could not load image")
		return Result{}, err
	}
	fp, err := Compute(r, p.algo)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			de.ID = t.ID
		}
		p.log.Warn().Err(err).Str("path", t.ID).Msg("could not hash image")
		return Result{}, err
	}
	return Result{ID: t.ID, Fingerprint: fp, Width: r.Width, Height: r.Height}, nil
}

// cancelled reports whether err is ctx's own cancellation error.
func cancelled(ctx context.Context, err error) bool {
	cerr := ctx.Err()
	return cerr != nil && errors.Is(err, cerr)
}

package dataset

import (
	"context"
	"math/rand/v2"
	"runtime"

	"github.com/nvr-ai/go-dataprep/profiler"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	// Shuffle permutes samples (or, in rect mode, whole batches) every epoch.
	Shuffle bool
	// Workers bounds concurrent Get calls. Zero means runtime.NumCPU().
	Workers int
	// DropLast skips a final batch smaller than the batch size.
	DropLast bool
	// Profiler, when set, times the "get" and "collate" stages and counts
	// "images" and "batches".
	Profiler *profiler.Profiler
}

// Loader yields collated batches of a Dataset.
type Loader struct {
	ds    *Dataset
	opts  LoaderOptions
	rank  int
	world int
}

// NewLoader returns a Loader over every sample of ds.
func NewLoader(ds *Dataset, opts LoaderOptions) *Loader {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Loader{ds: ds, opts: opts, rank: 0, world: 1}
}

// Shard returns a Loader that yields every world-th batch starting at rank,
// so that world consumers together see every batch exactly once.
func (l *Loader) Shard(rank, world int) (*Loader, error) {
	if world <= 0 || rank < 0 || rank >= world {
		return nil, errors.Errorf("invalid shard %d of %d", rank, world)
	}
	out := *l
	out.rank, out.world = rank, world
	return &out, nil
}

// Batches returns the sample indices of every batch this loader yields in
// epoch.
func (l *Loader) Batches(epoch int) [][]int {
	n := l.ds.Len()
	bs := l.ds.cfg.BatchSize
	rng := rand.New(rand.NewPCG(l.ds.cfg.Seed, uint64(epoch)))

	var all [][]int
	if l.ds.cfg.Rect {
		// Batch members share a letterbox shape and must stay together.
		for start := 0; start < n; start += bs {
			all = append(all, seq(start, min(start+bs, n)))
		}
		if l.opts.Shuffle {
			rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
		}
	} else {
		order := seq(0, n)
		if l.opts.Shuffle {
			order = rng.Perm(n)
		}
		for start := 0; start < n; start += bs {
			all = append(all, order[start:min(start+bs, n)])
		}
	}

	if l.opts.DropLast && len(all) > 0 && len(all[len(all)-1]) < bs {
		all = all[:len(all)-1]
	}

	var mine [][]int
	for i := l.rank; i < len(all); i += l.world {
		mine = append(mine, all[i])
	}
	return mine
}

// Len returns the number of batches per epoch.
func (l *Loader) Len() int { return len(l.Batches(0)) }

// Each fetches and collates every batch of epoch and passes it to fn. Samples
// of a batch are fetched concurrently. Iteration stops at the first error,
// including the context's.
//
// Arguments:
// - ctx: Cancels the iteration between and during batches.
// - epoch: The epoch, which selects the shuffle order and augmentations.
// - fn: Receives every batch in order.
//
// Returns:
// - error from a fetch, from fn, or ctx.Err().
//
// @example
//
//	err := loader.Each(ctx, epoch, func(b *Batch) error {
//	    return train(b.Images, b.Labels)
//	})
func (l *Loader) Each(ctx context.Context, epoch int, fn func(*Batch) error) error {
	for _, idx := range l.Batches(epoch) {
		if err := ctx.Err(); err != nil {
			return err
		}

		items := make([]*Item, len(idx))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(l.opts.Workers)
		for i, index := range idx {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				done := l.opts.Profiler.Track("get")
				item, err := l.ds.Get(index, epoch)
				done()
				if err != nil {
					return err
				}
				items[i] = item
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		done := l.opts.Profiler.Track("collate")
		batch, err := Collate(items)
		done()
		if err != nil {
			return err
		}
		l.opts.Profiler.Add("images", int64(batch.Len()))
		l.opts.Profiler.Add("batches", 1)
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}

func seq(start, end int) []int {
	out := make([]int, end-start)
	for i := range out {
		out[i] = start + i
	}
	return out
}

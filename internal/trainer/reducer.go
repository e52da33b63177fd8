package trainer

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/cnclabs/smore-ddi/internal/nn"
)

// Reducer combines the gradients of the replicas of one optimization step
type Reducer interface {
	// AllReduce returns the combined gradients. It may reuse the first replica's storage.
	AllReduce(ctx context.Context, replicas []*nn.Gradients) (*nn.Gradients, error)
}

// MeanReducer averages replica gradients, one parameter per goroutine
type MeanReducer struct {
	// Workers bounds the goroutines; 0 means one per parameter
	Workers int
}

// AllReduce averages into replicas[0]
func (r MeanReducer) AllReduce(ctx context.Context, replicas []*nn.Gradients) (*nn.Gradients, error) {
	if len(replicas) == 0 {
		return nil, errors.New("no gradients to reduce")
	}
	out := replicas[0]
	if len(replicas) == 1 {
		return out, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	if r.Workers > 0 {
		g.SetLimit(r.Workers)
	}
	scale := 1 / float64(len(replicas))
	for _, p := range out.Params() {
		p := p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			dst := out.Of(p)
			for _, other := range replicas[1:] {
				dst.Add(dst, other.Of(p))
			}
			dst.Scale(scale, dst)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

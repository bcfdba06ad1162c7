package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/ritzau/bluecity/pkg/logging"
	"github.com/ritzau/bluecity/pkg/model"
	"github.com/ritzau/bluecity/pkg/traffic"
)

// DefaultPairCount is how many origin/destination pairs get sampled
const DefaultPairCount = 100

// ErrNoSampleNodes is returned when the backend offers nothing to sample pairs from
var ErrNoSampleNodes = errors.New("graph has fewer than two sample nodes")

// Backend is the part of Client the runner needs
type Backend interface {
	Recalculate(ctx context.Context, pairs []model.NodePair, removed []model.RemovedEdge) (*RecalculateResponse, error)
	GraphInfo(ctx context.Context) (*GraphInfo, error)
}

// Runner executes one simulation request against a traffic state
type Runner struct {
	backend   Backend
	pairCount int
	rand      *rand.Rand
}

// NewRunner creates a runner sampling pairCount pairs when the state has none
func NewRunner(backend Backend, pairCount int) *Runner {
	if pairCount <= 0 {
		pairCount = DefaultPairCount
	}
	return &Runner{
		backend:   backend,
		pairCount: pairCount,
		rand:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// WithSeed makes pair sampling deterministic
func (r *Runner) WithSeed(seed uint64) *Runner {
	r.rand = rand.New(rand.NewPCG(seed, seed))
	return r
}

// Run fires one recalculation for the state's removed edges and stores the
// result. On failure the state is left exactly as it was.
func (r *Runner) Run(ctx context.Context, state *traffic.State) error {
	pairs := state.NodePairs()
	if len(pairs) == 0 {
		sampled, err := r.samplePairs(ctx)
		if err != nil {
			return err
		}
		pairs = sampled
	}
	removed := state.RemovedEdges()

	logging.InfoContext(ctx, "running traffic simulation", "pairs", len(pairs), "removed", len(removed))
	resp, err := r.backend.Recalculate(ctx, pairs, removed)
	if err != nil {
		logging.WarnContext(ctx, "traffic simulation failed", "error", err)
		return err
	}

	if len(state.NodePairs()) == 0 {
		state.SetNodePairs(pairs)
	}
	state.SetEdgeUsage(resp.OriginalEdgeUsage, resp.NewEdgeUsage, resp.ImpactStatistics)
	return nil
}

func (r *Runner) samplePairs(ctx context.Context) ([]model.NodePair, error) {
	info, err := r.backend.GraphInfo(ctx)
	if err != nil {
		return nil, err
	}
	nodes := info.SampleNodes
	if len(nodes) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrNoSampleNodes, len(nodes))
	}

	pairs := make([]model.NodePair, 0, r.pairCount)
	for range r.pairCount {
		i := r.rand.IntN(len(nodes))
		j := r.rand.IntN(len(nodes) - 1)
		if j >= i {
			j++
		}
		pairs = append(pairs, model.NodePair{Origin: nodes[i], Destination: nodes[j]})
	}
	return pairs, nil
}

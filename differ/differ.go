package differ

import (
	"errors"
	"fmt"
	"sort"

	"github.com/defistate/defistate-vault-go/engine"
	"github.com/prometheus/client_golang/prometheus"
)

// StateDifferConfig holds the dependencies of a StateDiffer.
type StateDifferConfig struct {
	Registry prometheus.Registerer
	Logger   Logger
}

// validate checks if the configuration is valid, ensuring required dependencies are present.
func (c *StateDifferConfig) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// StateDiffer compares pool snapshots.
type StateDiffer struct {
	metrics *Metrics
	logger  Logger
}

// NewStateDiffer constructs a new differ from a configuration, returning an error if the config is invalid.
func NewStateDiffer(cfg *StateDifferConfig) (*StateDiffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &StateDiffer{
		metrics: NewMetrics(cfg.Registry),
		logger:  cfg.Logger,
	}, nil
}

// Diff returns the changes that turn old into new. Pools in the result are
// copies, sorted by asset id.
func (d *StateDiffer) Diff(old, new *engine.State) (*StateDiff, error) {
	timer := prometheus.NewTimer(d.metrics.diffDuration)
	defer timer.ObserveDuration()

	if old == nil || new == nil {
		d.metrics.diffsTotal.WithLabelValues("error").Inc()
		return nil, errors.New("differ: nil state")
	}
	if new.Sequence < old.Sequence {
		d.metrics.diffsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("differ: new sequence %d is behind old sequence %d", new.Sequence, old.Sequence)
	}
	for asset := range old.Pools {
		if _, ok := new.Pools[asset]; !ok {
			d.metrics.diffsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("differ: pool %d missing from new state", asset)
		}
	}

	diff := &StateDiff{
		FromSequence: old.Sequence,
		ToSequence:   new.Sequence,
		Timestamp:    new.Timestamp,
		Additions:    []engine.PoolState{},
		Updates:      []engine.PoolState{},
	}
	for asset, pool := range new.Pools {
		prev, ok := old.Pools[asset]
		switch {
		case !ok:
			diff.Additions = append(diff.Additions, pool.Clone())
		case prev.ShareAsset != pool.ShareAsset:
			d.metrics.diffsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("differ: pool %d changed share asset %d -> %d", asset, prev.ShareAsset, pool.ShareAsset)
		case !prev.Equal(pool):
			diff.Updates = append(diff.Updates, pool.Clone())
		}
	}
	sortPools(diff.Additions)
	sortPools(diff.Updates)

	d.metrics.poolsChanged.Observe(float64(len(diff.Additions) + len(diff.Updates)))
	d.metrics.diffsTotal.WithLabelValues("ok").Inc()
	d.logger.Debug("state diffed",
		"from_sequence", diff.FromSequence,
		"to_sequence", diff.ToSequence,
		"additions", len(diff.Additions),
		"updates", len(diff.Updates),
	)
	return diff, nil
}

func sortPools(pools []engine.PoolState) {
	sort.Slice(pools, func(i, j int) bool { return pools[i].Asset < pools[j].Asset })
}

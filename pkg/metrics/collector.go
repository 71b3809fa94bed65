package metrics

import (
	"strconv"
	"time"

	"github.com/latticefs/core/pkg/catalog"
	"github.com/latticefs/core/pkg/types"
)

// Collector periodically samples the catalog and publishes gauge metrics.
type Collector struct {
	store  catalog.Store
	stopCh chan struct{}
}

// NewCollector creates a metrics collector over store.
func NewCollector(store catalog.Store) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins periodic collection.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts periodic collection.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectCatalogMetrics()
	c.collectJobMetrics()
}

func (c *Collector) collectCatalogMetrics() {
	locs, err := c.store.ListLocations()
	if err != nil {
		return
	}
	LocationsTotal.Set(float64(len(locs)))

	for _, loc := range locs {
		fps, err := c.store.ListFilePathsByLocation(loc.ID)
		if err != nil {
			continue
		}
		FilePathsTotal.WithLabelValues(strconv.Itoa(int(loc.ID))).Set(float64(len(fps)))
	}
}

func (c *Collector) collectJobMetrics() {
	for _, state := range []types.JobState{
		types.JobQueued, types.JobRunning, types.JobPaused,
		types.JobCompleted, types.JobFailed, types.JobCanceled,
	} {
		jobs, err := c.store.ListJobsByState(state)
		if err != nil {
			continue
		}
		JobsTotal.WithLabelValues(state.String()).Set(float64(len(jobs)))
	}
}

package jobs

import (
	"context"

	"github.com/latticefs/core/pkg/catalog"
	"github.com/latticefs/core/pkg/eventbus"
	"github.com/latticefs/core/pkg/idalloc"
	"github.com/latticefs/core/pkg/types"
	"github.com/latticefs/core/pkg/workerpool"
	"github.com/rs/zerolog"
)

// Context is the handle a Definition's lifecycle functions use to reach the
// shared engine resources and report progress. It embeds context.Context so
// job code can pass *Context anywhere a context.Context is expected, and
// observes cancellation the same way as any other suspension point.
type Context struct {
	context.Context

	Store     catalog.Store
	Bus       *eventbus.Broker
	Allocator *idalloc.Allocator
	Pool      *workerpool.Pool
	Log       zerolog.Logger

	progress func(types.ProgressUpdate)
}

// Progress reports one or more progress updates. The runtime coalesces the
// resulting InvalidateOperationDebounced publish at up to 10 Hz per
// subscriber; the JobRecord's in-memory counters are updated immediately.
func (c *Context) Progress(updates ...types.ProgressUpdate) {
	for _, u := range updates {
		c.progress(u)
	}
}

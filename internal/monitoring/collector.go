package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/childcare-cli/internal/model"
	"github.com/sells-group/childcare-cli/internal/store"
)

// Snapshot holds a point-in-time view of the pipeline backlog.
type Snapshot struct {
	CrawledSchools     int       `json:"crawled_schools"`
	PendingContact     int64     `json:"pending_contact"`
	PendingChildcare   int64     `json:"pending_childcare"`
	PendingCombination int       `json:"pending_combination"`
	CollectedAt        time.Time `json:"collected_at"`
}

// Targets names the keys whose backlog is measured.
type Targets struct {
	Contact   model.ExtractionKey
	Childcare model.ExtractionKey
	Combine   model.ExtractionKey
}

// Collector gathers backlog counts from the store.
type Collector struct {
	store   store.Store
	targets Targets
}

// NewCollector creates a new backlog collector.
func NewCollector(st store.Store, targets Targets) *Collector {
	return &Collector{store: st, targets: targets}
}

// Collect counts what each pass would select right now. The childcare
// backlog is gated on pass-1 records under the contact target.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{CollectedAt: time.Now().UTC()}

	schools, err := c.store.CrawledSchoolIDs(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: crawled schools")
	}
	snap.CrawledSchools = len(schools)

	snap.PendingContact, err = c.store.CountPending(ctx, store.PendingFilter{
		Pass:   model.PassContact,
		Target: c.targets.Contact,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: contact backlog")
	}

	upstream := c.targets.Contact
	snap.PendingChildcare, err = c.store.CountPending(ctx, store.PendingFilter{
		Pass:     model.PassChildcare,
		Target:   c.targets.Childcare,
		Upstream: &upstream,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: childcare backlog")
	}

	pending, err := c.store.SchoolsPendingCombination(ctx, store.CombineTarget{
		PromptVersion: c.targets.Combine.PromptVersion,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: combine backlog")
	}
	snap.PendingCombination = len(pending)

	return snap, nil
}

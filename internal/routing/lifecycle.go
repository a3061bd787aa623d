package routing

import (
	"context"
	"fmt"

	"github.com/nexusfleet/nexus/internal/registry"
)

// LifecycleReconciler excludes backends busy with an in-progress load,
// unload, or migrate operation. A Migrate's source backend is the one
// exception: it keeps serving while its target drains (§4.5.2).
type LifecycleReconciler struct {
	reg *registry.Registry
}

func NewLifecycleReconciler(reg *registry.Registry) *LifecycleReconciler {
	return &LifecycleReconciler{reg: reg}
}

func (l *LifecycleReconciler) Name() string { return "lifecycle" }

func (l *LifecycleReconciler) Reconcile(ctx context.Context, intent *RoutingIntent) error {
	kept := intent.CandidateAgents[:0:0]
	for _, id := range intent.CandidateAgents {
		b, err := l.reg.GetBackend(id)
		if err != nil {
			intent.exclude(id, l.Name(), "backend vanished mid-pipeline", "retry")
			continue
		}
		op := b.CurrentOperation
		if op == nil || op.Status != registry.OpInProgress {
			kept = append(kept, id)
			continue
		}
		if op.Type == registry.OpMigrate && op.SourceBackendID == id {
			kept = append(kept, id)
			continue
		}
		intent.exclude(id, l.Name(),
			fmt.Sprintf("backend busy: %s in progress (%d%%, eta %dms) for model %s", op.Type, op.ProgressPercent, op.ETAMs, op.ModelID),
			"retry once the operation completes")
	}
	intent.CandidateAgents = kept
	return nil
}

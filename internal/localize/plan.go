// Package localize implements cross-storage localization: planning
// deterministic target locations under per-kind storage roots,
// executing no-clobber transfers between backend pairs, and
// recursively rewriting structured input documents (deepcopy).
package localize

import (
	"context"
	"fmt"

	"github.com/me/stagehand/internal/storage"
	"github.com/me/stagehand/pkg/uri"
)

// Plan describes where a copy of Source should live on the target
// backend. Plans are computed on demand and never persisted; for the
// same (source, root) pair the target is always the same.
type Plan struct {
	Source        uri.URI
	Target        uri.URI
	NeedsTransfer bool
}

// Planner computes localization plans against a fixed set of storage
// roots.
type Planner struct {
	roots map[uri.Kind]uri.URI
	reg   *storage.Registry
}

// NewPlanner creates a planner. roots maps each localizable kind to
// its configured root; URL has no root because it is never a target.
func NewPlanner(roots map[uri.Kind]uri.URI, reg *storage.Registry) *Planner {
	return &Planner{roots: roots, reg: reg}
}

// Plan computes the deterministic target for source on targetKind.
//
// A source already on the target backend maps to itself with no
// transfer, wherever it lives: files outside the configured root are
// left in place. Otherwise the full source hierarchy is mirrored
// under the target root, so two distinct sources can never collide at
// one target path. NeedsTransfer is false when the target already
// exists (the no-clobber idempotence contract).
func (p *Planner) Plan(ctx context.Context, source uri.URI, targetKind uri.Kind) (Plan, error) {
	if source.Kind() == targetKind {
		return Plan{Source: source, Target: source, NeedsTransfer: false}, nil
	}

	root, ok := p.roots[targetKind]
	if !ok {
		return Plan{}, fmt.Errorf("localize: no storage root configured for kind %s", targetKind)
	}

	target := root.Join(source.RelPath())

	adapter, err := p.reg.For(targetKind)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Source:        source,
		Target:        target,
		NeedsTransfer: !adapter.Exists(ctx, target),
	}, nil
}

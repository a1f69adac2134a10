package localize

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/me/stagehand/pkg/uri"
)

// Deepcopy recursively localizes a structured input document and every
// file reference inside it, then writes a rewritten manifest pointing
// at the localized copies.
//
// The rewritten manifest is a sibling of the original, named
// <stem>.<target-tag><ext> (info.json -> info.gcs.json) and written on
// the source's own backend; when the source is an unwritable URL it is
// written under the target root instead. A document that is not
// deepcopy-eligible, already carries the target tag, or already lives
// under the target root is returned unchanged.
func (s *Service) Deepcopy(ctx context.Context, doc uri.URI, targetKind uri.Kind) (uri.URI, error) {
	return s.deepcopy(ctx, doc, targetKind, 0)
}

func (s *Service) deepcopy(ctx context.Context, doc uri.URI, targetKind uri.Kind, depth int) (uri.URI, error) {
	if depth > s.cfg.maxDepth() {
		return uri.URI{}, fmt.Errorf("%w: depth %d at %s", ErrRecursionLimit, depth, doc)
	}

	format, ok := FormatFor(doc)
	if !ok || doc.HasTag(targetKind) || s.underTargetRoot(doc, targetKind) {
		return doc, nil
	}

	adapter, err := s.reg.For(doc.Kind())
	if err != nil {
		return uri.URI{}, err
	}
	text, err := adapter.ReadText(ctx, doc)
	if err != nil {
		return uri.URI{}, err
	}
	tree, err := format.Parse(text)
	if err != nil {
		return uri.URI{}, fmt.Errorf("deepcopy %s: %w", doc, err)
	}

	leaves := collectLeaves(tree)

	// Identical leaf values resolve once: dispatching the same source
	// twice would race two transfers against one planned target.
	index := make(map[string]int, len(leaves))
	var values []string
	for _, leaf := range leaves {
		if _, ok := index[leaf.value]; !ok {
			index[leaf.value] = len(values)
			values = append(values, leaf.value)
		}
	}
	replacements := make([]string, len(values))

	// Distinct leaves localize in parallel; a nested manifest is fully
	// rewritten inside its own leaf task before being localized, so
	// the dependency edge is preserved without extra ordering.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.concurrency())
	for i, value := range values {
		g.Go(func() error {
			replaced, err := s.deepcopyLeaf(gctx, doc, value, targetKind, depth)
			if err != nil {
				return err
			}
			replacements[i] = replaced
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return uri.URI{}, err
	}

	updated := false
	for _, leaf := range leaves {
		replaced := replacements[index[leaf.value]]
		if replaced != leaf.value {
			leaf.set(replaced)
			updated = true
		}
	}
	if !updated {
		return doc, nil
	}

	out, err := format.Serialize(tree)
	if err != nil {
		return uri.URI{}, fmt.Errorf("deepcopy %s: %w", doc, err)
	}

	rewritten := doc.Sibling(targetKind)
	if rewritten.Kind() == uri.URL {
		// URLs are unwritable; place the rewritten manifest at its
		// mirrored location under the target root.
		root, ok := s.cfg.Roots[targetKind]
		if !ok {
			return uri.URI{}, fmt.Errorf("localize: no storage root configured for kind %s", targetKind)
		}
		rewritten = root.Join(rewritten.RelPath())
	}

	writer, err := s.reg.For(rewritten.Kind())
	if err != nil {
		return uri.URI{}, err
	}
	// Rewritten manifests follow the same no-clobber rule as object
	// transfers; the content is deterministic for a given tree.
	if !writer.Exists(ctx, rewritten) {
		s.logger.Info("writing rewritten manifest", "manifest", rewritten.String(), "source", doc.String())
		if err := writer.WriteText(ctx, rewritten, out); err != nil {
			return uri.URI{}, fmt.Errorf("deepcopy %s: %w", doc, err)
		}
	}
	return rewritten, nil
}

// deepcopyLeaf resolves one string leaf: non-URI values and URL leaves
// pass through untouched, nested manifests recurse before localizing,
// plain files localize directly. The returned string equals value when
// nothing changed.
func (s *Service) deepcopyLeaf(ctx context.Context, doc uri.URI, value string, targetKind uri.Kind, depth int) (string, error) {
	leaf, err := uri.Parse(value)
	if err != nil {
		// Not URI-shaped; leave the value alone.
		return value, nil
	}
	if !leaf.Localizable() {
		// URL leaves stay as-is: the engine resolves them directly.
		return value, nil
	}
	if leaf.Kind() == targetKind {
		return value, nil
	}
	if leaf.Kind() == uri.Local && !s.leafExists(ctx, leaf) {
		// A bare string that merely looks like a path is not a file
		// reference.
		return value, nil
	}

	source := leaf
	if leaf.Deepcopyable() {
		rewritten, err := s.deepcopy(ctx, leaf, targetKind, depth+1)
		if err != nil {
			return "", err
		}
		source = rewritten
	}

	s.logger.Debug("deepcopy leaf",
		"from", source.Kind().String(), "to", targetKind.String(),
		"leaf", source.String(), "manifest", doc.String())

	localized, err := s.Localize(ctx, source, targetKind)
	if err != nil {
		return "", err
	}
	if localized == leaf {
		// Same-kind no-op; keep the author's original spelling.
		return value, nil
	}
	return localized.String(), nil
}

func (s *Service) leafExists(ctx context.Context, leaf uri.URI) bool {
	adapter, err := s.reg.For(leaf.Kind())
	if err != nil {
		return false
	}
	return adapter.Exists(ctx, leaf)
}

// underTargetRoot reports whether doc already lives under the
// configured root for targetKind.
func (s *Service) underTargetRoot(doc uri.URI, targetKind uri.Kind) bool {
	if doc.Kind() != targetKind {
		return false
	}
	root, ok := s.cfg.Roots[targetKind]
	if !ok {
		return false
	}
	return strings.HasPrefix(doc.Locator(), root.Locator()+"/")
}

// Package uri classifies and normalizes storage references.
//
// A URI names a single object on one of four storage kinds:
//
//	local path:   /data/input.fastq.gz (absolute, ~ expanded)
//	GCS bucket:   gs://bucket/key
//	S3 bucket:    s3://bucket/key
//	URL:          http:// or https:// (read-only)
package uri

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Kind identifies the storage backend a URI points at.
type Kind int

const (
	Local Kind = iota
	GCS
	S3
	URL
)

// kindTags are used both for display and as the filename suffix on
// rewritten manifests (info.json -> info.gcs.json).
var kindTags = map[Kind]string{
	Local: "local",
	GCS:   "gcs",
	S3:    "s3",
	URL:   "url",
}

func (k Kind) String() string {
	if tag, ok := kindTags[k]; ok {
		return tag
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Tag returns the filename tag for this kind, identical to String.
func (k Kind) Tag() string { return k.String() }

// ParseKind converts a kind name ("local", "gcs", "s3", "url") to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, tag := range kindTags {
		if strings.EqualFold(s, tag) {
			return k, nil
		}
	}
	return Local, fmt.Errorf("unknown storage kind %q", s)
}

// ErrMalformed is returned by Parse for strings that cannot be
// normalized into a storage reference.
var ErrMalformed = errors.New("malformed URI")

// deepcopyExts are the structured-document extensions eligible for
// recursive manifest rewriting.
var deepcopyExts = map[string]bool{
	".json": true,
	".tsv":  true,
	".csv":  true,
}

// URI is an immutable, normalized reference to one object on one
// storage kind. The zero value is not a valid URI; construct with
// Parse or Make. URIs are comparable: two are equal iff kind and
// normalized locator match.
type URI struct {
	kind    Kind
	locator string
}

// Parse classifies raw by prefix and normalizes its locator.
//
// gs:// and s3:// become bucket/key locators, http:// and https://
// keep the full URL, and everything else is treated as a local
// filesystem path which must be absolute (after ~ expansion).
func Parse(raw string) (URI, error) {
	switch {
	case strings.HasPrefix(raw, "gs://"):
		return parseBucket(GCS, strings.TrimPrefix(raw, "gs://"))
	case strings.HasPrefix(raw, "s3://"):
		return parseBucket(S3, strings.TrimPrefix(raw, "s3://"))
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return URI{}, fmt.Errorf("%w: %q", ErrMalformed, raw)
		}
		return URI{kind: URL, locator: raw}, nil
	default:
		return parseLocal(raw)
	}
}

func parseBucket(kind Kind, rest string) (URI, error) {
	loc := path.Clean(strings.Trim(rest, "/"))
	if loc == "" || loc == "." {
		return URI{}, fmt.Errorf("%w: %s URI needs a bucket", ErrMalformed, kind)
	}
	return URI{kind: kind, locator: loc}, nil
}

func parseLocal(raw string) (URI, error) {
	p := raw
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return URI{}, fmt.Errorf("%w: expand %q: %v", ErrMalformed, raw, err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	if !filepath.IsAbs(p) {
		return URI{}, fmt.Errorf("%w: local path %q is not absolute", ErrMalformed, raw)
	}
	return URI{kind: Local, locator: filepath.Clean(p)}, nil
}

// Make builds a URI from an already-normalized locator. It is intended
// for locators derived from an existing URI (plan targets, rewritten
// manifest names), where re-parsing would be redundant.
func Make(kind Kind, locator string) URI {
	return URI{kind: kind, locator: locator}
}

// Kind returns the storage kind.
func (u URI) Kind() Kind { return u.kind }

// Locator returns the backend-specific normalized locator: an absolute
// path for Local, bucket/key for GCS and S3, the full URL for URL.
func (u URI) Locator() string { return u.locator }

// String renders the URI in its external form.
func (u URI) String() string {
	switch u.kind {
	case GCS:
		return "gs://" + u.locator
	case S3:
		return "s3://" + u.locator
	default:
		return u.locator
	}
}

// IsZero reports whether u is the zero URI.
func (u URI) IsZero() bool { return u.locator == "" }

// Localizable reports whether u may be a transfer target. URL sources
// are read-only and never localizable.
func (u URI) Localizable() bool { return u.kind != URL }

// Deepcopyable reports whether u names a structured document eligible
// for recursive manifest rewriting (.json, .tsv, .csv).
func (u URI) Deepcopyable() bool { return deepcopyExts[u.Ext()] }

// Ext returns the filename extension of the locator, including the dot.
func (u URI) Ext() string {
	loc := u.pathPart()
	return path.Ext(loc)
}

// Base returns the last path element of the locator.
func (u URI) Base() string { return path.Base(u.pathPart()) }

// pathPart is the locator with any URL query/fragment stripped.
func (u URI) pathPart() string {
	loc := u.locator
	if u.kind == URL {
		if parsed, err := url.Parse(loc); err == nil {
			return parsed.Host + parsed.Path
		}
	}
	return loc
}

// RelPath mirrors the full source hierarchy as a root-relative path:
// the absolute path minus its leading separator for Local, bucket/key
// for GCS and S3, host/path for URL. Target paths built from RelPath
// cannot collide unless the sources were already the same location.
func (u URI) RelPath() string {
	switch u.kind {
	case Local:
		return strings.TrimPrefix(u.locator, "/")
	case URL:
		return strings.Trim(u.pathPart(), "/")
	default:
		return u.locator
	}
}

// Join appends a relative path under u, which must name a directory-like
// location (a storage root). URL roots are invalid join targets.
func (u URI) Join(rel string) URI {
	if u.kind == Local {
		return URI{kind: Local, locator: filepath.Join(u.locator, rel)}
	}
	return URI{kind: u.kind, locator: path.Join(u.locator, rel)}
}

// Sibling returns the URI of a rewritten manifest next to u, with the
// kind tag spliced in before the extension: info.json -> info.gcs.json.
// For URL documents the tag is spliced into the URL path and any query
// or fragment is dropped, matching the extension Deepcopyable sees.
func (u URI) Sibling(target Kind) URI {
	if u.kind == URL {
		if parsed, err := url.Parse(u.locator); err == nil {
			ext := path.Ext(parsed.Path)
			parsed.Path = strings.TrimSuffix(parsed.Path, ext) + "." + target.Tag() + ext
			parsed.RawQuery = ""
			parsed.Fragment = ""
			return URI{kind: URL, locator: parsed.String()}
		}
	}
	ext := path.Ext(u.locator)
	stem := strings.TrimSuffix(u.locator, ext)
	return URI{kind: u.kind, locator: stem + "." + target.Tag() + ext}
}

// HasTag reports whether u already carries the rewritten-manifest tag
// for the given target kind (info.gcs.json has the GCS tag).
func (u URI) HasTag(target Kind) bool {
	p := u.pathPart()
	stem := strings.TrimSuffix(p, path.Ext(p))
	return strings.HasSuffix(stem, "."+target.Tag())
}

package uri

import (
	"errors"
	"testing"
)

func TestParse_Classification(t *testing.T) {
	tests := []struct {
		raw     string
		kind    Kind
		locator string
	}{
		{"gs://bucket/path/x.txt", GCS, "bucket/path/x.txt"},
		{"gs://bucket//double//slash.txt", GCS, "bucket/double/slash.txt"},
		{"gs://bucket", GCS, "bucket"},
		{"s3://bucket/key.json", S3, "bucket/key.json"},
		{"http://example.com/x.txt", URL, "http://example.com/x.txt"},
		{"https://example.com/a/b.json", URL, "https://example.com/a/b.json"},
		{"/data/input.fastq.gz", Local, "/data/input.fastq.gz"},
		{"/data//nested/../input.txt", Local, "/data/input.txt"},
	}
	for _, tt := range tests {
		u, err := Parse(tt.raw)
		if err != nil {
			t.Errorf("Parse(%q) error: %v", tt.raw, err)
			continue
		}
		if u.Kind() != tt.kind {
			t.Errorf("Parse(%q).Kind() = %v, want %v", tt.raw, u.Kind(), tt.kind)
		}
		if u.Locator() != tt.locator {
			t.Errorf("Parse(%q).Locator() = %q, want %q", tt.raw, u.Locator(), tt.locator)
		}
	}
}

func TestParse_Malformed(t *testing.T) {
	for _, raw := range []string{
		"relative/path.txt",
		"hello",
		"gs://",
		"s3:///",
		"",
	} {
		if _, err := Parse(raw); !errors.Is(err, ErrMalformed) {
			t.Errorf("Parse(%q) = %v, want ErrMalformed", raw, err)
		}
	}
}

func TestString_RoundTrip(t *testing.T) {
	for _, raw := range []string{
		"gs://bucket/path/x.txt",
		"s3://bucket/key.json",
		"https://example.com/x.txt",
		"/data/input.txt",
	} {
		u, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse(%q): %v", raw, err)
		}
		if u.String() != raw {
			t.Errorf("String() = %q, want %q", u.String(), raw)
		}
	}
}

func TestEquality(t *testing.T) {
	a, _ := Parse("/data//x.txt")
	b, _ := Parse("/data/x.txt")
	if a != b {
		t.Errorf("normalized URIs should compare equal: %v != %v", a, b)
	}
	c, _ := Parse("gs://data/x.txt")
	if a == c {
		t.Errorf("different kinds should not compare equal")
	}
}

func TestLocalizable(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"gs://b/k", true},
		{"s3://b/k", true},
		{"/a/b", true},
		{"https://example.com/x", false},
	}
	for _, tt := range tests {
		u, _ := Parse(tt.raw)
		if got := u.Localizable(); got != tt.want {
			t.Errorf("Localizable(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestDeepcopyable(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"/a/b.json", true},
		{"gs://b/k.tsv", true},
		{"s3://b/k.csv", true},
		{"https://example.com/x.json?token=abc", true},
		{"/a/b.txt", false},
		{"gs://b/k", false},
	}
	for _, tt := range tests {
		u, _ := Parse(tt.raw)
		if got := u.Deepcopyable(); got != tt.want {
			t.Errorf("Deepcopyable(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestRelPath(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"/data/input.txt", "data/input.txt"},
		{"gs://bucket/path/x.txt", "bucket/path/x.txt"},
		{"s3://bucket/key.json", "bucket/key.json"},
		{"https://example.com/a/b.txt", "example.com/a/b.txt"},
	}
	for _, tt := range tests {
		u, _ := Parse(tt.raw)
		if got := u.RelPath(); got != tt.want {
			t.Errorf("RelPath(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestJoin(t *testing.T) {
	root, _ := Parse("gs://tmp-bucket/scratch")
	got := root.Join("bucket/path/x.txt")
	if got.String() != "gs://tmp-bucket/scratch/bucket/path/x.txt" {
		t.Errorf("Join = %q", got.String())
	}

	localRoot, _ := Parse("/tmp/root")
	got = localRoot.Join("bucket/path/x.txt")
	if got.String() != "/tmp/root/bucket/path/x.txt" {
		t.Errorf("Join = %q", got.String())
	}
}

func TestSiblingAndTag(t *testing.T) {
	u, _ := Parse("/data/info.json")
	sib := u.Sibling(GCS)
	if sib.String() != "/data/info.gcs.json" {
		t.Errorf("Sibling = %q, want /data/info.gcs.json", sib.String())
	}
	if !sib.HasTag(GCS) {
		t.Errorf("Sibling should carry the gcs tag")
	}
	if u.HasTag(GCS) {
		t.Errorf("original should not carry the gcs tag")
	}
	if sib.HasTag(S3) {
		t.Errorf("gcs-tagged manifest should not carry the s3 tag")
	}
}

func TestSiblingAndTag_URLWithQuery(t *testing.T) {
	u, _ := Parse("https://example.com/meta/inputs.json?v=1&token=abc")
	sib := u.Sibling(Local)
	if sib.String() != "https://example.com/meta/inputs.local.json" {
		t.Errorf("Sibling = %q, want https://example.com/meta/inputs.local.json", sib.String())
	}
	if !sib.HasTag(Local) {
		t.Errorf("Sibling should carry the local tag")
	}
	if u.HasTag(Local) {
		t.Errorf("original should not carry the local tag")
	}

	// The tag is recognized even when the rewritten URL keeps a query.
	tagged, _ := Parse("https://example.com/meta/inputs.local.json?v=1")
	if !tagged.HasTag(Local) {
		t.Errorf("tagged URL with query should carry the local tag")
	}
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"local", "gcs", "s3", "url", "GCS"} {
		if _, err := ParseKind(s); err != nil {
			t.Errorf("ParseKind(%q) error: %v", s, err)
		}
	}
	if _, err := ParseKind("ftp"); err == nil {
		t.Errorf("ParseKind(ftp) should fail")
	}
}

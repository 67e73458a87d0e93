package transport

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Locator identifies a remote object and the backend serving it
type Locator struct {
	Kind Kind
	// Raw is the locator as given by the caller
	Raw string

	// Path is the file path for KindFile
	Path string
	// URL is the object URL for KindHTTP, with any userinfo removed
	URL *url.URL
	// Username and Password come from the userinfo of an HTTP locator
	Username string
	Password string

	// Bucket is the bucket (S3, GCS) or container (Azure)
	Bucket string
	// Key is the object key or blob name inside Bucket
	Key string
}

// ParseLocator selects the backend for a locator string.
//
//	/abs/path, rel/path, file:///abs/path  -> file
//	http://host/obj, https://host/obj      -> http
//	s3://bucket/key                        -> s3
//	gs://bucket/object                     -> gcs
//	az://container/blob                    -> azure
func ParseLocator(raw string) (Locator, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Locator{}, fmt.Errorf("empty locator")
	}

	if !strings.Contains(raw, "://") {
		return Locator{Kind: KindFile, Raw: raw, Path: filepath.Clean(raw)}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Locator{}, fmt.Errorf("failed to parse locator %q: %w", raw, err)
	}

	loc := Locator{Raw: raw}
	switch strings.ToLower(u.Scheme) {
	case "file":
		if u.Path == "" {
			return Locator{}, fmt.Errorf("file locator %q has no path", raw)
		}
		loc.Kind = KindFile
		loc.Path = filepath.FromSlash(u.Path)

	case "http", "https":
		if u.Host == "" {
			return Locator{}, fmt.Errorf("http locator %q has no host", raw)
		}
		loc.Kind = KindHTTP
		if u.User != nil {
			loc.Username = u.User.Username()
			loc.Password, _ = u.User.Password()
		}
		clean := *u
		clean.User = nil
		loc.URL = &clean

	case "s3", "gs", "az":
		loc.Bucket = u.Host
		loc.Key = strings.TrimPrefix(u.Path, "/")
		if loc.Bucket == "" || loc.Key == "" {
			return Locator{}, fmt.Errorf("locator %q needs both a bucket and an object key", raw)
		}
		loc.Kind = map[string]Kind{"s3": KindS3, "gs": KindGCS, "az": KindAzure}[strings.ToLower(u.Scheme)]

	default:
		return Locator{}, fmt.Errorf("unsupported locator scheme %q", u.Scheme)
	}

	return loc, nil
}

// ObjectID names the object independently of any credentials
func (l Locator) ObjectID() string {
	switch l.Kind {
	case KindFile:
		return l.Path
	case KindHTTP:
		return l.URL.String()
	default:
		return l.Bucket + "/" + l.Key
	}
}

// String returns the locator with HTTP credentials redacted
func (l Locator) String() string {
	if l.Kind == KindHTTP && l.Username != "" {
		u := *l.URL
		u.User = url.User(l.Username)
		return u.String()
	}
	return l.Raw
}

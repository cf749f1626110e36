/*
Copyright © 2026 the GlacierFlow authors.
This file is part of GlacierFlow.

GlacierFlow is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

GlacierFlow is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with GlacierFlow.  If not, see <http://www.gnu.org/licenses/>.*/

package zarr

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// ErrObjectNotFound is returned by Store implementations when the
// requested object does not exist. A missing chunk object is not an
// error for a zarr array; it stands for a chunk filled with the fill
// value.
var ErrObjectNotFound = errors.New("zarr: object not found")

// Store provides access to the objects making up a zarr group.
type Store interface {
	// Get returns the contents of the object at the given key
	// (relative to the store root), or ErrObjectNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
}

// DirStore is a Store reading from a local directory, mainly useful
// for testing and for datacubes that have been mirrored to disk.
type DirStore struct {
	root string
}

// NewDirStore creates a store rooted at the given directory.
func NewDirStore(dir string) (*DirStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("zarr: opening directory store: %v", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("zarr: %s is not a directory", dir)
	}
	return &DirStore{root: dir}, nil
}

// Get implements Store.
func (s *DirStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := ioutil.ReadFile(filepath.Join(s.root, filepath.FromSlash(key)))
	if os.IsNotExist(err) {
		return nil, ErrObjectNotFound
	} else if err != nil {
		return nil, fmt.Errorf("zarr: reading %s: %v", key, err)
	}
	return b, nil
}

// HTTPStore is a Store fetching objects over HTTP(S), for example from
// a public object-storage endpoint. Transient failures are retried
// with exponential backoff.
type HTTPStore struct {
	base   string
	client *http.Client

	// Log receives retry notifications.
	Log logrus.FieldLogger
}

// NewHTTPStore creates a store fetching objects below the given base
// URL, which must have an http or https scheme.
func NewHTTPStore(base string) (*HTTPStore, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("zarr: parsing store URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("zarr: unsupported URL scheme %q", u.Scheme)
	}
	return &HTTPStore{
		base:   strings.TrimSuffix(base, "/"),
		client: &http.Client{Timeout: 5 * time.Minute},
		Log:    logrus.StandardLogger(),
	}, nil
}

// Get implements Store.
func (s *HTTPStore) Get(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	get := func() error {
		req, err := http.NewRequest(http.MethodGet, s.base+"/"+key, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := s.client.Do(req.WithContext(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusOK:
			body, err = ioutil.ReadAll(resp.Body)
			return err
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
			// Object stores without list permission report
			// missing keys as 403.
			return backoff.Permanent(ErrObjectNotFound)
		case resp.StatusCode >= 500:
			return fmt.Errorf("zarr: fetching %s: %s", key, resp.Status)
		default:
			return backoff.Permanent(fmt.Errorf("zarr: fetching %s: %s", key, resp.Status))
		}
	}
	err := backoff.RetryNotify(get,
		backoff.WithContext(backoff.NewExponentialBackOff(), ctx),
		func(err error, d time.Duration) {
			s.Log.Printf("zarr: %v: retrying in %v", err, d)
		},
	)
	if perr, ok := err.(*backoff.PermanentError); ok {
		return nil, perr.Err
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

// BlobStore is a Store reading from a blob-storage bucket.
type BlobStore struct {
	bucket *blob.Bucket
	prefix string
}

// NewBlobStore creates a store reading objects below prefix in the
// given bucket.
func NewBlobStore(bucket *blob.Bucket, prefix string) *BlobStore {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &BlobStore{bucket: bucket, prefix: prefix}
}

// Get implements Store.
func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.bucket.ReadAll(ctx, s.prefix+key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("zarr: reading %s: %v", key, err)
	}
	return b, nil
}

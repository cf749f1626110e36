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
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"gocloud.dev/blob/fileblob"
)

func TestDirStore(t *testing.T) {
	dir, err := ioutil.TempDir("", "dirstore")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	if err := ioutil.WriteFile(filepath.Join(dir, "v"), []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := NewDirStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Get(context.Background(), "v")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, []byte("payload")) {
		t.Errorf("got %q", b)
	}
	if _, err := s.Get(context.Background(), "0.0.0"); err != ErrObjectNotFound {
		t.Errorf("missing object: got %v, want ErrObjectNotFound", err)
	}
}

func TestBlobStore(t *testing.T) {
	dir, err := ioutil.TempDir("", "blobstore")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	if err := os.MkdirAll(filepath.Join(dir, "cube.zarr", "v"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(dir, "cube.zarr", "v", "0"), []byte("chunk"), 0644); err != nil {
		t.Fatal(err)
	}

	bucket, err := fileblob.OpenBucket(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	s := NewBlobStore(bucket, "cube.zarr")

	b, err := s.Get(context.Background(), "v/0")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, []byte("chunk")) {
		t.Errorf("got %q", b)
	}

	// A missing chunk object stands for a fill-value chunk, so it must
	// surface as ErrObjectNotFound rather than a read error.
	if _, err := s.Get(context.Background(), "v/0.0.1"); err != ErrObjectNotFound {
		t.Errorf("missing object: got %v, want ErrObjectNotFound", err)
	}
}

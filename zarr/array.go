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
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"math"
	"runtime"
	"strings"
	"sync"

	"github.com/ctessum/requestcache"
	"github.com/ctessum/sparse"
	"github.com/klauspost/compress/zstd"
)

// A Group is an open zarr group described by consolidated metadata.
type Group struct {
	store Store
	meta  *ConsolidatedMetadata

	// CacheSize is the maximum number of decoded chunks held in
	// memory per array. It can only be changed before the first
	// read. The default is 64.
	CacheSize int

	mx     sync.Mutex
	arrays map[string]*Array
}

// OpenGroup opens the group at the root of store by fetching and
// parsing its consolidated metadata.
func OpenGroup(ctx context.Context, store Store) (*Group, error) {
	b, err := store.Get(ctx, metadataKey)
	if err != nil {
		return nil, fmt.Errorf("zarr: fetching consolidated metadata: %v", err)
	}
	cm := new(ConsolidatedMetadata)
	if err := json.Unmarshal(b, cm); err != nil {
		return nil, fmt.Errorf("zarr: parsing consolidated metadata: %v", err)
	}
	if cm.ZarrConsolidatedFormat != 1 {
		return nil, fmt.Errorf("zarr: unsupported consolidated metadata format %d",
			cm.ZarrConsolidatedFormat)
	}
	return &Group{
		store:     store,
		meta:      cm,
		CacheSize: 64,
		arrays:    make(map[string]*Array),
	}, nil
}

// Meta returns the group's consolidated metadata.
func (g *Group) Meta() *ConsolidatedMetadata { return g.meta }

// Array returns a handle for the named array in the group.
func (g *Group) Array(name string) (*Array, error) {
	g.mx.Lock()
	defer g.mx.Unlock()
	if a, ok := g.arrays[name]; ok {
		return a, nil
	}
	m, err := g.meta.arrayMeta(name)
	if err != nil {
		return nil, err
	}
	dt, err := parseDType(m.DType)
	if err != nil {
		return nil, err
	}
	a := &Array{
		name:      name,
		meta:      m,
		dtype:     dt,
		store:     g.store,
		cacheSize: g.CacheSize,
	}
	g.arrays[name] = a
	return a, nil
}

// An Array is a handle for a single chunked array within a group.
// Chunk fetches are deduplicated and cached in memory.
type Array struct {
	name      string
	meta      *ArrayMeta
	dtype     DType
	store     Store
	cacheSize int

	cache     *requestcache.Cache
	cacheOnce sync.Once
}

// Shape returns the array dimensions.
func (a *Array) Shape() []int { return a.meta.Shape }

// Chunks returns the chunk dimensions.
func (a *Array) Chunks() []int { return a.meta.Chunks }

// DTypeKind returns the numpy-style type kind of the array elements.
func (a *Array) DTypeKind() byte { return a.dtype.Kind }

// chunk fetches, decompresses and unshuffles the chunk with the given
// per-dimension indices, returning the raw element bytes. A missing
// chunk object yields nil, standing for a fill-valued chunk.
func (a *Array) chunk(ctx context.Context, coords []int) ([]byte, error) {
	a.cacheOnce.Do(func() {
		a.cache = requestcache.NewCache(
			func(ctx context.Context, request interface{}) (interface{}, error) {
				return a.fetchChunk(ctx, request.(string))
			}, runtime.GOMAXPROCS(-1),
			requestcache.Deduplicate(), requestcache.Memory(a.cacheSize))
	})
	key := a.name + "/" + a.meta.chunkKey(coords)
	req := a.cache.NewRequest(ctx, key, key)
	result, err := req.Result()
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.([]byte), nil
}

func (a *Array) fetchChunk(ctx context.Context, key string) ([]byte, error) {
	raw, err := a.store.Get(ctx, key)
	if err == ErrObjectNotFound {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	b, err := a.decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("zarr: chunk %s: %v", key, err)
	}
	if want := a.meta.chunkSize() * a.dtype.Size; len(b) != want {
		return nil, fmt.Errorf("zarr: chunk %s: got %d bytes, want %d", key, len(b), want)
	}
	return b, nil
}

// decompress applies the array's compressor to one chunk.
func (a *Array) decompress(b []byte) ([]byte, error) {
	c := a.meta.Compressor
	if c == nil {
		return b, nil
	}
	switch c.ID {
	case "blosc":
		return bloscDecode(b)
	case "zstd":
		d, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer d.Close()
		return d.DecodeAll(b, nil)
	case "zlib":
		r, err := zlib.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return ioutil.ReadAll(r)
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return ioutil.ReadAll(r)
	default:
		return nil, fmt.Errorf("zarr: unsupported compressor %q", c.ID)
	}
}

// element returns the i'th element of the raw chunk bytes as a float64.
// Elements equal to the fill value come back as NaN.
func (a *Array) element(b []byte, i int, fill float64) float64 {
	var v float64
	off := i * a.dtype.Size
	switch a.dtype.Kind {
	case 'f':
		if a.dtype.Size == 4 {
			v = float64(math.Float32frombits(binary.LittleEndian.Uint32(b[off:])))
		} else {
			v = math.Float64frombits(binary.LittleEndian.Uint64(b[off:]))
		}
	case 'i', 'M', 'm':
		v = float64(a.elementInt64(b, i))
	case 'u':
		switch a.dtype.Size {
		case 1:
			v = float64(b[off])
		case 2:
			v = float64(binary.LittleEndian.Uint16(b[off:]))
		case 4:
			v = float64(binary.LittleEndian.Uint32(b[off:]))
		default:
			v = float64(binary.LittleEndian.Uint64(b[off:]))
		}
	}
	if v == fill || math.IsNaN(v) && math.IsNaN(fill) {
		return math.NaN()
	}
	return v
}

func (a *Array) elementInt64(b []byte, i int) int64 {
	off := i * a.dtype.Size
	switch a.dtype.Size {
	case 1:
		return int64(int8(b[off]))
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(b[off:])))
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(b[off:])))
	default:
		return int64(binary.LittleEndian.Uint64(b[off:]))
	}
}

// ReadFloat64 reads an entire one-dimensional numeric array.
func (a *Array) ReadFloat64(ctx context.Context) ([]float64, error) {
	if len(a.meta.Shape) != 1 {
		return nil, fmt.Errorf("zarr: array %s is not one-dimensional", a.name)
	}
	if a.dtype.Kind == 'S' {
		return nil, fmt.Errorf("zarr: array %s is not numeric", a.name)
	}
	fill := a.meta.fillFloat()
	n, chunk := a.meta.Shape[0], a.meta.Chunks[0]
	out := make([]float64, n)
	for c := 0; c*chunk < n; c++ {
		b, err := a.chunk(ctx, []int{c})
		if err != nil {
			return nil, err
		}
		for i := 0; i < chunk && c*chunk+i < n; i++ {
			if b == nil {
				out[c*chunk+i] = math.NaN()
			} else {
				out[c*chunk+i] = a.element(b, i, fill)
			}
		}
	}
	return out, nil
}

// ReadInt64 reads an entire one-dimensional integer, datetime or
// timedelta array without converting through float64, preserving full
// nanosecond precision.
func (a *Array) ReadInt64(ctx context.Context) ([]int64, error) {
	if len(a.meta.Shape) != 1 {
		return nil, fmt.Errorf("zarr: array %s is not one-dimensional", a.name)
	}
	switch a.dtype.Kind {
	case 'i', 'u', 'M', 'm':
	default:
		return nil, fmt.Errorf("zarr: array %s is not an integer type", a.name)
	}
	n, chunk := a.meta.Shape[0], a.meta.Chunks[0]
	out := make([]int64, n)
	for c := 0; c*chunk < n; c++ {
		b, err := a.chunk(ctx, []int{c})
		if err != nil {
			return nil, err
		}
		if b == nil {
			continue
		}
		for i := 0; i < chunk && c*chunk+i < n; i++ {
			out[c*chunk+i] = a.elementInt64(b, i)
		}
	}
	return out, nil
}

// ReadStrings reads an entire one-dimensional fixed-length string
// array, trimming trailing NUL padding.
func (a *Array) ReadStrings(ctx context.Context) ([]string, error) {
	if len(a.meta.Shape) != 1 {
		return nil, fmt.Errorf("zarr: array %s is not one-dimensional", a.name)
	}
	if a.dtype.Kind != 'S' {
		return nil, fmt.Errorf("zarr: array %s is not a string array", a.name)
	}
	n, chunk := a.meta.Shape[0], a.meta.Chunks[0]
	out := make([]string, n)
	for c := 0; c*chunk < n; c++ {
		b, err := a.chunk(ctx, []int{c})
		if err != nil {
			return nil, err
		}
		if b == nil {
			continue
		}
		for i := 0; i < chunk && c*chunk+i < n; i++ {
			s := b[i*a.dtype.Size : (i+1)*a.dtype.Size]
			out[c*chunk+i] = strings.TrimRight(string(s), "\x00")
		}
	}
	return out, nil
}

// ReadColumn reads the full first-dimension column of a
// three-dimensional (time, y, x) array at spatial indices (iy, ix),
// fetching only the chunks the column passes through. Fill values
// come back as NaN.
func (a *Array) ReadColumn(ctx context.Context, iy, ix int) ([]float64, error) {
	if len(a.meta.Shape) != 3 {
		return nil, fmt.Errorf("zarr: array %s is not three-dimensional", a.name)
	}
	if iy < 0 || iy >= a.meta.Shape[1] || ix < 0 || ix >= a.meta.Shape[2] {
		return nil, fmt.Errorf("zarr: index (%d, %d) outside array %s shape %v",
			iy, ix, a.name, a.meta.Shape)
	}
	fill := a.meta.fillFloat()
	nt := a.meta.Shape[0]
	ct, cy, cx := a.meta.Chunks[0], a.meta.Chunks[1], a.meta.Chunks[2]
	oy, ox := iy%cy, ix%cx
	out := make([]float64, nt)
	for c := 0; c*ct < nt; c++ {
		b, err := a.chunk(ctx, []int{c, iy / cy, ix / cx})
		if err != nil {
			return nil, err
		}
		for t := 0; t < ct && c*ct+t < nt; t++ {
			if b == nil {
				out[c*ct+t] = math.NaN()
			} else {
				out[c*ct+t] = a.element(b, (t*cy+oy)*cx+ox, fill)
			}
		}
	}
	return out, nil
}

// ReadChunkDense reads the chunk at the given chunk coordinates into a
// dense array shaped like one chunk. Fill values come back as NaN.
func (a *Array) ReadChunkDense(ctx context.Context, coords ...int) (*sparse.DenseArray, error) {
	if len(coords) != len(a.meta.Shape) {
		return nil, fmt.Errorf("zarr: chunk coordinates %v do not match array %s rank %d",
			coords, a.name, len(a.meta.Shape))
	}
	for i, c := range coords {
		if n := a.meta.chunkCounts()[i]; c < 0 || c >= n {
			return nil, fmt.Errorf("zarr: chunk coordinate %d out of range [0,%d)", c, n)
		}
	}
	fill := a.meta.fillFloat()
	out := sparse.ZerosDense(a.meta.Chunks...)
	b, err := a.chunk(ctx, coords)
	if err != nil {
		return nil, err
	}
	for i := range out.Elements {
		if b == nil {
			out.Elements[i] = math.NaN()
		} else {
			out.Elements[i] = a.element(b, i, fill)
		}
	}
	return out, nil
}

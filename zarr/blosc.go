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
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io/ioutil"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Blosc v1 frame layout: a 16-byte header, then (unless the frame is a
// plain memcpy) one int32 offset per block, then the independently
// compressed blocks. Each non-leftover block may additionally be split
// into typesize streams, each prefixed with its compressed length.
const bloscHeaderSize = 16

// Blosc header flag bits.
const (
	bloscByteShuffle = 0x1
	bloscMemcpy      = 0x2
	bloscBitShuffle  = 0x4
)

// Blosc inner compressor codes (flags >> 5).
const (
	bloscCodecBloscLZ = 0
	bloscCodecLZ4     = 1
	bloscCodecSnappy  = 2
	bloscCodecZlib    = 3
	bloscCodecZstd    = 4
)

// Split thresholds from the c-blosc 1.x forward-compatible split mode.
const (
	bloscMaxSplits     = 16
	bloscMinBufferSize = 128
)

// bloscDecode decompresses a blosc-framed chunk.
func bloscDecode(src []byte) ([]byte, error) {
	if len(src) < bloscHeaderSize {
		return nil, fmt.Errorf("zarr: truncated blosc header (%d bytes)", len(src))
	}
	flags := src[2]
	typesize := int(src[3])
	nbytes := int(binary.LittleEndian.Uint32(src[4:8]))
	blocksize := int(binary.LittleEndian.Uint32(src[8:12]))
	cbytes := int(binary.LittleEndian.Uint32(src[12:16]))
	if cbytes > len(src) {
		return nil, fmt.Errorf("zarr: truncated blosc frame: header says %d bytes, have %d", cbytes, len(src))
	}
	if flags&bloscBitShuffle != 0 {
		return nil, fmt.Errorf("zarr: blosc bit shuffle is not supported")
	}

	dst := make([]byte, nbytes)
	if flags&bloscMemcpy != 0 {
		if len(src) < bloscHeaderSize+nbytes {
			return nil, fmt.Errorf("zarr: truncated blosc memcpy frame")
		}
		copy(dst, src[bloscHeaderSize:bloscHeaderSize+nbytes])
	} else {
		codec := int(flags >> 5)
		if blocksize <= 0 {
			return nil, fmt.Errorf("zarr: invalid blosc block size %d", blocksize)
		}
		nblocks := (nbytes + blocksize - 1) / blocksize
		offTable := src[bloscHeaderSize:]
		if len(offTable) < 4*nblocks {
			return nil, fmt.Errorf("zarr: truncated blosc offset table")
		}
		for i := 0; i < nblocks; i++ {
			off := int(binary.LittleEndian.Uint32(offTable[4*i : 4*i+4]))
			bsize := blocksize
			leftover := false
			if i == nblocks-1 && nbytes%blocksize != 0 {
				bsize = nbytes % blocksize
				leftover = true
			}
			if off < 0 || off > len(src) {
				return nil, fmt.Errorf("zarr: blosc block offset %d out of range", off)
			}
			err := bloscDecodeBlock(src[off:], dst[i*blocksize:i*blocksize+bsize],
				codec, typesize, leftover)
			if err != nil {
				return nil, err
			}
		}
	}

	if flags&bloscByteShuffle != 0 && typesize > 1 {
		dst = unshuffle(dst, typesize)
	}
	return dst, nil
}

// bloscDecodeBlock decompresses one block into dst. Blocks are split
// into typesize streams when the c-blosc split conditions hold; each
// stream carries an int32 length prefix, and a stream whose stored
// length equals its decompressed length is uncompressed.
func bloscDecodeBlock(src, dst []byte, codec, typesize int, leftover bool) error {
	nsplits := 1
	if !leftover && typesize <= bloscMaxSplits && typesize > 0 &&
		len(dst)/typesize >= bloscMinBufferSize &&
		(codec == bloscCodecBloscLZ || codec == bloscCodecLZ4) {
		nsplits = typesize
	}
	neblock := len(dst) / nsplits
	for j := 0; j < nsplits; j++ {
		if len(src) < 4 {
			return fmt.Errorf("zarr: truncated blosc block")
		}
		csize := int(int32(binary.LittleEndian.Uint32(src[:4])))
		src = src[4:]
		if csize < 0 || csize > len(src) {
			return fmt.Errorf("zarr: invalid blosc stream size %d", csize)
		}
		out := dst[j*neblock : (j+1)*neblock]
		if csize == neblock { // stored uncompressed
			copy(out, src[:csize])
		} else {
			if err := bloscDecodeStream(src[:csize], out, codec); err != nil {
				return err
			}
		}
		src = src[csize:]
	}
	return nil
}

func bloscDecodeStream(src, dst []byte, codec int) error {
	switch codec {
	case bloscCodecLZ4:
		n, err := lz4.UncompressBlock(src, dst)
		if err != nil {
			return fmt.Errorf("zarr: blosc lz4: %v", err)
		}
		if n != len(dst) {
			return fmt.Errorf("zarr: blosc lz4: decoded %d bytes, want %d", n, len(dst))
		}
		return nil
	case bloscCodecZlib:
		r, err := zlib.NewReader(bytes.NewReader(src))
		if err != nil {
			return fmt.Errorf("zarr: blosc zlib: %v", err)
		}
		defer r.Close()
		b, err := ioutil.ReadAll(r)
		if err != nil {
			return fmt.Errorf("zarr: blosc zlib: %v", err)
		}
		if copy(dst, b) != len(dst) {
			return fmt.Errorf("zarr: blosc zlib: decoded %d bytes, want %d", len(b), len(dst))
		}
		return nil
	case bloscCodecZstd:
		d, err := zstd.NewReader(nil)
		if err != nil {
			return fmt.Errorf("zarr: blosc zstd: %v", err)
		}
		defer d.Close()
		b, err := d.DecodeAll(src, nil)
		if err != nil {
			return fmt.Errorf("zarr: blosc zstd: %v", err)
		}
		if len(b) != len(dst) {
			return fmt.Errorf("zarr: blosc zstd: decoded %d bytes, want %d", len(b), len(dst))
		}
		copy(dst, b)
		return nil
	default:
		return fmt.Errorf("zarr: unsupported blosc inner codec %d", codec)
	}
}

// unshuffle reverses the blosc byte shuffle: the i'th bytes of all
// elements are stored together, so gather them back into elements of
// the given size.
func unshuffle(b []byte, typesize int) []byte {
	n := len(b) / typesize
	rem := len(b) % typesize
	out := make([]byte, len(b))
	for i := 0; i < n; i++ {
		for j := 0; j < typesize; j++ {
			out[i*typesize+j] = b[j*n+i]
		}
	}
	// Trailing bytes that do not fill a whole element are copied
	// through unchanged, as in c-blosc.
	copy(out[n*typesize:], b[len(b)-rem:])
	return out
}

// This file loads the two on-disk index artifacts IndexView is built from:
// the perfect-hash shard table (transcriptome.sfi, opaque outside this
// package) and the CSR k-mer location table (fullLookup.kmap). The .kmap
// envelope is checksummed and compressed while the logical archive inside
// stays untouched: base/file for path handling (including transparent
// s3:// access), snappy block compression of the payload, and a
// highwayhash digest over the compressed bytes as the integrity check.
package kmerindex

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/minio/highwayhash"
)

var highwayKey = make([]byte, 32) // zero key: integrity check, not authentication.

// sfiMagic/kmapMagic guard against loading the wrong file as the wrong
// artifact.
const (
	sfiMagic  = uint32(0x53464930) // "SFI0"
	kmapMagic = uint32(0x4b4d4130) // "KMA0"
)

// Load reads the perfect-hash shard table from sfiPath and the CSR location
// table from kmapPath and assembles them into an IndexView. Both reads are
// eager; the returned view holds no open file handles.
func Load(ctx context.Context, sfiPath, kmapPath string) (*IndexView, error) {
	k, byShard, numIDs, err := loadSFI(ctx, sfiPath)
	if err != nil {
		return nil, errors.E(err, "kmerindex: loading perfect-hash index from", sfiPath)
	}
	offsets, kmerLocs, err := loadKmap(ctx, kmapPath)
	if err != nil {
		return nil, errors.E(err, "kmerindex: loading location table from", kmapPath)
	}
	if uint64(numIDs)+1 != uint64(len(offsets)) {
		return nil, errors.E(fmt.Sprintf("kmerindex: .sfi declares %d ids but .kmap has %d", numIDs, len(offsets)-1))
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] < offsets[i-1] {
			return nil, errors.E("kmerindex: offsets[] is not non-decreasing")
		}
	}
	if offsets[len(offsets)-1] != uint64(len(kmerLocs)) {
		return nil, errors.E("kmerindex: offsets[N] does not match |kmerLocs|")
	}

	view := &IndexView{k: k, offsets: offsets, kmerLocs: kmerLocs}
	for shard := 0; shard < nIndexShard; shard++ {
		view.shards[shard] = buildShard(shard, byShard[shard])
	}
	return view, nil
}

// loadSFI reads the opaque perfect-hash artifact: k-mer length, id count,
// and the kmer->id assignment bucketed by the shard it will live in. The
// on-disk layout is a private implementation detail of this package — the
// file is never read or written by anything else.
func loadSFI(ctx context.Context, path string) (k int, byShard [nIndexShard]map[Kmer]uint32, numIDs uint32, err error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return 0, byShard, 0, err
	}
	defer f.Close(ctx) // nolint:errcheck

	r := bufio.NewReader(f.Reader(ctx))
	var magic, k32 uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return 0, byShard, 0, err
	}
	if magic != sfiMagic {
		return 0, byShard, 0, errors.E("kmerindex: bad .sfi magic")
	}
	if err := binary.Read(r, binary.LittleEndian, &k32); err != nil {
		return 0, byShard, 0, err
	}
	if err := binary.Read(r, binary.LittleEndian, &numIDs); err != nil {
		return 0, byShard, 0, err
	}
	for shard := 0; shard < nIndexShard; shard++ {
		byShard[shard] = make(map[Kmer]uint32)
	}
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return 0, byShard, 0, err
	}
	for i := uint32(0); i < count; i++ {
		var kmer uint64
		var id uint32
		if err := binary.Read(r, binary.LittleEndian, &kmer); err != nil {
			return 0, byShard, 0, err
		}
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return 0, byShard, 0, err
		}
		h := hashKmer(Kmer(kmer))
		byShard[h&(nIndexShard-1)][Kmer(kmer)] = id
	}
	return int(k32), byShard, numIDs, nil
}

// loadKmap reads the CSR (offsets, kmerLocs) pair. The file envelope is a
// highwayhash digest followed by one snappy-compressed block; once decompressed, the
// payload is exactly the length-prefixed Vec<u64>/Vec<u64> pair the format
// promises, regardless of how it got onto disk.
func loadKmap(ctx context.Context, path string) (offsets []uint64, kmerLocs []Location, err error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close(ctx) // nolint:errcheck

	raw, err := io.ReadAll(f.Reader(ctx))
	if err != nil {
		return nil, nil, err
	}
	const digestLen = 32
	if len(raw) < digestLen {
		return nil, nil, errors.E("kmerindex: .kmap truncated")
	}
	wantDigest, compressed := raw[:digestLen], raw[digestLen:]
	gotDigest := highwayhash.Sum(compressed, highwayKey)
	for i := range gotDigest {
		if gotDigest[i] != wantDigest[i] {
			return nil, nil, errors.E("kmerindex: .kmap integrity digest mismatch")
		}
	}

	payload, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, nil, err
	}
	r := bytes.NewReader(payload)

	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, nil, err
	}
	if magic != kmapMagic {
		return nil, nil, errors.E("kmerindex: bad .kmap magic")
	}

	var nOffsets uint64
	if err := binary.Read(r, binary.LittleEndian, &nOffsets); err != nil {
		return nil, nil, err
	}
	offsets = make([]uint64, nOffsets)
	if err := binary.Read(r, binary.LittleEndian, offsets); err != nil {
		return nil, nil, err
	}

	var nLocs uint64
	if err := binary.Read(r, binary.LittleEndian, &nLocs); err != nil {
		return nil, nil, err
	}
	kmerLocs = make([]Location, nLocs)
	if err := binary.Read(r, binary.LittleEndian, kmerLocs); err != nil {
		return nil, nil, err
	}
	return offsets, kmerLocs, nil
}

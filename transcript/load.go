// This file loads the transcript length table (transcriptome.tlut): the
// one on-disk artifact that seeds package transcript's immutable per-
// transcript metadata (id, name, ref_length) before any read is mapped.
// The logical record layout is pinned by the external interface contract:
// record count, then per record (transcript_id, length, length-prefixed
// name); a seahash digest wraps that payload the same way a highwayhash
// digest wraps the k-mer location table in kmerindex, as an on-disk
// integrity check rather than a layout choice.
package transcript

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// LoadTable reads the transcript length table at path and returns a Table
// with every transcript's immutable metadata populated, every count zeroed,
// and every log-mass seeded to the uniform prior (see NewTable).
func LoadTable(ctx context.Context, path string) (*Table, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "transcript: opening", path)
	}
	defer f.Close(ctx) // nolint:errcheck

	raw, err := io.ReadAll(f.Reader(ctx))
	if err != nil {
		return nil, errors.E(err, "transcript: reading", path)
	}

	const digestLen = 8
	if len(raw) < digestLen {
		return nil, errors.E("transcript: .tlut truncated")
	}
	wantDigest := binary.LittleEndian.Uint64(raw[:digestLen])
	payload := raw[digestLen:]
	if got := seahash.Sum64(payload); got != wantDigest {
		return nil, errors.E("transcript: .tlut integrity digest mismatch")
	}

	r := bufio.NewReader(bytes.NewReader(payload))
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, errors.E(err, "transcript: reading .tlut record count")
	}

	entries := make([]*Transcript, count)
	for i := uint64(0); i < count; i++ {
		var id, length, nameLen uint32
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return nil, errors.E(err, "transcript: reading .tlut record", i)
		}
		if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
			return nil, errors.E(err, "transcript: reading .tlut record", i)
		}
		if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
			return nil, errors.E(err, "transcript: reading .tlut record", i)
		}
		nameBytes := make([]byte, nameLen)
		if _, err := io.ReadFull(r, nameBytes); err != nil {
			return nil, errors.E(err, "transcript: reading .tlut record", i)
		}
		if uint64(id) >= count {
			return nil, errors.E(fmt.Sprintf("transcript: .tlut record id %d out of range (count=%d)", id, count))
		}
		entries[id] = &Transcript{ID: id, Name: string(nameBytes), RefLength: length}
	}
	for i, e := range entries {
		if e == nil {
			return nil, errors.E(fmt.Sprintf("transcript: .tlut missing record for id %d", i))
		}
	}
	return NewTable(entries), nil
}

// Copyright 2023 Sneller, Inc.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

package query

import (
	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/s2"

	"github.com/nosqlx/planexec/partition"
	"github.com/nosqlx/planexec/wire"
)

const continuationVersion = 1

const (
	statusPending  = 0
	statusFinished = 1
)

// ErrInvalidContinuation is returned when a
// continuation key cannot be decoded.
var ErrInvalidContinuation = errors.New("invalid continuation key")

// EncodeContinuation serializes the resume
// positions of every partition of a query.
func EncodeContinuation(pos []partition.Position) []byte {
	var w wire.Writer
	w.WriteInt8(continuationVersion)
	w.WriteSequenceLength(len(pos))
	for i := range pos {
		p := &pos[i]
		w.WritePackedInt(int32(p.Partition))
		if p.Finished {
			w.WriteInt8(statusFinished)
		} else {
			w.WriteInt8(statusPending)
		}
		w.WriteBytes(p.Token)
		w.WritePackedInt(int32(p.Skip))
	}
	return s2.Encode(nil, w.Bytes())
}

// DecodeContinuation is the inverse of
// EncodeContinuation. Errors are marked
// with ErrInvalidContinuation.
func DecodeContinuation(key []byte) ([]partition.Position, error) {
	pos, err := decodeContinuation(key)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decoding continuation key"), ErrInvalidContinuation)
	}
	return pos, nil
}

func decodeContinuation(key []byte) ([]partition.Position, error) {
	buf, err := s2.Decode(nil, key)
	if err != nil {
		return nil, err
	}
	r := wire.NewReader(buf)
	v, err := r.ReadInt8()
	if err != nil {
		return nil, err
	}
	if v != continuationVersion {
		return nil, errors.Newf("unsupported version %d", v)
	}
	n, err := r.ReadSequenceLength()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, errors.New("missing partition list")
	}
	if n > r.Len() {
		return nil, errors.Newf("%d partitions in %d bytes", n, r.Len())
	}
	pos := make([]partition.Position, n)
	seen := make(map[partition.ID]bool, n)
	for i := range pos {
		p := &pos[i]
		id, err := r.ReadPackedInt()
		if err != nil {
			return nil, err
		}
		p.Partition = partition.ID(id)
		if seen[p.Partition] {
			return nil, errors.Newf("partition %d listed twice", id)
		}
		seen[p.Partition] = true
		status, err := r.ReadInt8()
		if err != nil {
			return nil, err
		}
		switch status {
		case statusPending:
		case statusFinished:
			p.Finished = true
		default:
			return nil, errors.Newf("partition %d has status %d", id, status)
		}
		if p.Token, err = r.ReadBytes(); err != nil {
			return nil, err
		}
		skip, err := r.ReadPackedInt()
		if err != nil {
			return nil, err
		}
		if skip < 0 {
			return nil, errors.Newf("partition %d skips %d rows", id, skip)
		}
		p.Skip = int(skip)
	}
	if r.Len() != 0 {
		return nil, errors.Newf("%d trailing bytes", r.Len())
	}
	return pos, nil
}

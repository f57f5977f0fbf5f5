// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package badgerindex

import (
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/kbsync/core"
	"github.com/poiesic/kbsync/vector"
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, varint.Uint64.Size(uint64(id)))
	varint.Uint64.Marshal(uint64(id), buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := varint.Uint64.Unmarshal(data)
	return core.ID(id), err
}

// MarshalRecord serializes an embedding record to bytes.
func MarshalRecord(record *vector.Record) []byte {
	buf := make([]byte, sizeRecord(record))
	n := varint.Uint64.Marshal(uint64(record.ID), buf)
	n += varint.Int.Marshal(len(record.Values), buf[n:])
	for _, v := range record.Values {
		n += raw.Float32.Marshal(v, buf[n:])
	}
	n += ord.String.Marshal(record.Metadata.DocumentID, buf[n:])
	n += varint.Int.Marshal(record.Metadata.ChunkIndex, buf[n:])
	varint.Int.Marshal(record.Metadata.TokenCount, buf[n:])
	return buf
}

// UnmarshalRecord deserializes an embedding record from bytes.
func UnmarshalRecord(data []byte) (*vector.Record, error) {
	id, n, err := varint.Uint64.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	count, n1, err := varint.Int.Unmarshal(data[n:])
	if err != nil {
		return nil, err
	}
	n += n1
	values := make([]float32, count)
	for i := range values {
		values[i], n1, err = raw.Float32.Unmarshal(data[n:])
		if err != nil {
			return nil, err
		}
		n += n1
	}
	documentID, n1, err := ord.String.Unmarshal(data[n:])
	if err != nil {
		return nil, err
	}
	n += n1
	chunkIndex, n1, err := varint.Int.Unmarshal(data[n:])
	if err != nil {
		return nil, err
	}
	n += n1
	tokenCount, _, err := varint.Int.Unmarshal(data[n:])
	if err != nil {
		return nil, err
	}
	return &vector.Record{
		ID:     core.ID(id),
		Values: values,
		Metadata: vector.Metadata{
			DocumentID: documentID,
			ChunkIndex: chunkIndex,
			TokenCount: tokenCount,
		},
	}, nil
}

func sizeRecord(record *vector.Record) int {
	size := varint.Uint64.Size(uint64(record.ID))
	size += varint.Int.Size(len(record.Values))
	for _, v := range record.Values {
		size += raw.Float32.Size(v)
	}
	size += ord.String.Size(record.Metadata.DocumentID)
	size += varint.Int.Size(record.Metadata.ChunkIndex)
	size += varint.Int.Size(record.Metadata.TokenCount)
	return size
}

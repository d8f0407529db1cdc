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


package storage

import (
	"fmt"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/recall/graph"
)

// tripleMUS encodes a triple as subject, predicate, object kind, object
// value and datatype, in that order.
type tripleMUS struct{}

// TripleMUS is the MUS serializer for graph.Triple.
var TripleMUS = tripleMUS{}

func (tripleMUS) Marshal(t graph.Triple, bs []byte) (n int) {
	n = ord.String.Marshal(t.Subject, bs)
	n += ord.String.Marshal(t.Predicate, bs[n:])
	n += varint.Uint8.Marshal(uint8(t.Object.Kind), bs[n:])
	n += ord.String.Marshal(t.Object.Value, bs[n:])
	return n + ord.String.Marshal(t.Object.Datatype, bs[n:])
}

func (tripleMUS) Unmarshal(bs []byte) (t graph.Triple, n int, err error) {
	var n1 int
	t.Subject, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	t.Predicate, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var kind uint8
	kind, n1, err = varint.Uint8.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	t.Object.Kind = graph.TermKind(kind)
	t.Object.Value, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	t.Object.Datatype, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	return
}

func (tripleMUS) Size(t graph.Triple) (size int) {
	size = ord.String.Size(t.Subject)
	size += ord.String.Size(t.Predicate)
	size += varint.Uint8.Size(uint8(t.Object.Kind))
	size += ord.String.Size(t.Object.Value)
	return size + ord.String.Size(t.Object.Datatype)
}

// MarshalTriple serializes a Triple to bytes.
func MarshalTriple(t graph.Triple) []byte {
	buf := make([]byte, TripleMUS.Size(t))
	TripleMUS.Marshal(t, buf)
	return buf
}

// UnmarshalTriple deserializes a Triple from bytes.
func UnmarshalTriple(data []byte) (graph.Triple, error) {
	if len(data) == 0 {
		return graph.Triple{}, ErrTruncatedData
	}
	t, _, err := TripleMUS.Unmarshal(data)
	if err != nil {
		return graph.Triple{}, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	if t.Object.Kind != graph.KindIRI && t.Object.Kind != graph.KindLiteral {
		return graph.Triple{}, fmt.Errorf("%w: unknown term kind %d", ErrSerializationFailed, t.Object.Kind)
	}
	return t, nil
}

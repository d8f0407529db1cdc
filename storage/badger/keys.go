package badger

import (
	"bytes"
	"encoding/binary"

	"github.com/go-crypt/x/blake2b"
	"github.com/poiesic/recall/graph"
)

// Key prefixes for different data types
const (
	triplePrefix     = "trp:"
	generationPrefix = "gen:"
	generationSeq    = "seq:generation"
)

// keySep terminates the subject inside a triple key. IRIs never contain NUL.
const keySep = 0x00

// objectHashSize is the digest length used to key a (predicate, object) pair.
const objectHashSize = 16

// generationSize is the encoded length of a write generation.
const generationSize = 8

// makeSubjectPrefix generates the key prefix shared by all triples of a subject.
// Format: prefix subject NUL
func makeSubjectPrefix(subject string) []byte {
	buf := make([]byte, 0, len(triplePrefix)+len(subject)+1)
	buf = append(buf, triplePrefix...)
	buf = append(buf, subject...)
	return append(buf, keySep)
}

// makeTripleKey generates the key for a triple written by generation gen.
// Format: prefix subject NUL gen(8, big endian) blake2b(predicate, object)
// Within one generation identical triples share a key.
func makeTripleKey(t graph.Triple, gen uint64) []byte {
	h, _ := blake2b.New(objectHashSize, nil)
	h.Write([]byte(t.Predicate))
	h.Write([]byte{keySep, byte(t.Object.Kind)})
	h.Write([]byte(t.Object.Value))
	h.Write([]byte{keySep})
	h.Write([]byte(t.Object.Datatype))
	return h.Sum(binary.BigEndian.AppendUint64(makeSubjectPrefix(t.Subject), gen))
}

// parseTripleKey extracts the subject and generation of a triple key.
func parseTripleKey(key []byte) (subject string, gen uint64, ok bool) {
	rest, found := bytes.CutPrefix(key, []byte(triplePrefix))
	if !found {
		return "", 0, false
	}
	i := bytes.IndexByte(rest, keySep)
	if i < 0 || len(rest) < i+1+generationSize {
		return "", 0, false
	}
	return string(rest[:i]), binary.BigEndian.Uint64(rest[i+1 : i+1+generationSize]), true
}

// makeGenerationKey generates the commit marker of a generation.
// Format: prefix gen(8, big endian)
func makeGenerationKey(gen uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte(generationPrefix), gen)
}

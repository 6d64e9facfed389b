// Package engine implements the log-structured storage engine: append-only
// command logs with generation numbering, an in-memory offset index, crash
// recovery by replay, and space-reclaiming compaction.
package engine

import (
	"encoding/base64"
	"encoding/json"
	"io"

	"github.com/golang/snappy"

	"github.com/goerzh/kvs/pkg/kverrors"
)

// InlineValueThreshold is the raw value length, in bytes, past which a
// Set record's value is Snappy-compressed before being written. Below the
// threshold compression overhead isn't worth paying.
const InlineValueThreshold = 256

// recordKind tags which of the two on-disk record variants a wire object is.
type recordKind string

const (
	kindSet    recordKind = "set"
	kindRemove recordKind = "remove"
)

// wireRecord is the on-disk JSON shape for both Set and Remove records. It
// is deliberately one flat struct (not a tagged union wrapping two types) so
// that encoding/json's streaming Decoder can tell one record from the next
// with no external framing: each call to Decode consumes exactly one JSON
// value from the stream, which is the self-delimiting property spec.md
// requires.
type wireRecord struct {
	Kind       recordKind `json:"kind"`
	Key        string     `json:"key"`
	Value      string     `json:"value,omitempty"`
	Compressed bool       `json:"c,omitempty"`
}

// Record is the decoded, in-memory form of a single log entry.
type Record struct {
	Kind  recordKind
	Key   string
	Value string // only meaningful when Kind == kindSet
}

// IsSet reports whether this is a Set record.
func (r Record) IsSet() bool { return r.Kind == kindSet }

// NewSetRecord builds a Set(key, value) record.
func NewSetRecord(key, value string) Record {
	return Record{Kind: kindSet, Key: key, Value: value}
}

// NewRemoveRecord builds a Remove(key) record.
func NewRemoveRecord(key string) Record {
	return Record{Kind: kindRemove, Key: key}
}

// encodeRecord serializes r to its self-delimiting wire form.
func encodeRecord(r Record) ([]byte, error) {
	w := wireRecord{Kind: r.Kind, Key: r.Key}
	if r.Kind == kindSet {
		if len(r.Value) > InlineValueThreshold {
			compressed := snappy.Encode(nil, []byte(r.Value))
			w.Value = base64.StdEncoding.EncodeToString(compressed)
			w.Compressed = true
		} else {
			w.Value = r.Value
		}
	}
	buf, err := json.Marshal(w)
	if err != nil {
		return nil, kverrors.NewCodec(err)
	}
	return buf, nil
}

// recordDecoder streams records one at a time from a reader, with no
// framing header required between them — encoding/json's Decoder tracks
// exactly how many bytes each value consumed.
type recordDecoder struct {
	dec *json.Decoder
}

func newRecordDecoder(r io.Reader) *recordDecoder {
	return &recordDecoder{dec: json.NewDecoder(r)}
}

// Decode reads the next record, or io.EOF when the stream is exhausted. A
// partial trailing record (from a crash mid-write) surfaces as a Codec
// error, per spec.md's reference replay-tolerance behavior.
func (d *recordDecoder) Decode() (Record, error) {
	var w wireRecord
	if err := d.dec.Decode(&w); err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, kverrors.NewCodec(err)
	}

	rec := Record{Kind: w.Kind, Key: w.Key}
	if w.Kind == kindSet {
		if w.Compressed {
			raw, err := base64.StdEncoding.DecodeString(w.Value)
			if err != nil {
				return Record{}, kverrors.NewCodec(err)
			}
			value, err := snappy.Decode(nil, raw)
			if err != nil {
				return Record{}, kverrors.NewCodec(err)
			}
			rec.Value = string(value)
		} else {
			rec.Value = w.Value
		}
	}
	return rec, nil
}

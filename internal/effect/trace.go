package effect

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/Masterminds/semver/v3"

	"github.com/causality-lang/causality/internal/diag"
	"github.com/causality-lang/causality/internal/value"
)

// TraceSchemaVersion is the semver of the persisted trace layout. External
// provers consume this surface; bump the major on any incompatible change.
const TraceSchemaVersion = "1.0.0"

// traceConstraint gates which persisted traces this build can decode.
var traceConstraint = mustConstraint("^1")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}

	return c
}

// TraceEntry is one witnessed effect invocation.
type TraceEntry struct {
	Inputs []value.ID
	Node   value.ID
	Output value.ID
}

// Trace is the append-only witness of an evaluation.
type Trace []TraceEntry

// Equal reports whether two traces pin the same invocations in order.
func (t Trace) Equal(other Trace) bool {
	if len(t) != len(other) {
		return false
	}

	for i := range t {
		if t[i].Node != other[i].Node || t[i].Output != other[i].Output {
			return false
		}

		if len(t[i].Inputs) != len(other[i].Inputs) {
			return false
		}

		for j := range t[i].Inputs {
			if t[i].Inputs[j] != other[i].Inputs[j] {
				return false
			}
		}
	}

	return true
}

// EncodeTrace serializes a trace: version string, entry count, then each
// entry as node ID, input count, input IDs, output ID.
func EncodeTrace(t Trace) []byte {
	var buf []byte

	buf = binary.AppendUvarint(buf, uint64(len(TraceSchemaVersion)))
	buf = append(buf, TraceSchemaVersion...)
	buf = binary.AppendUvarint(buf, uint64(len(t)))

	for _, e := range t {
		buf = append(buf, e.Node[:]...)
		buf = binary.AppendUvarint(buf, uint64(len(e.Inputs)))

		for i := range e.Inputs {
			buf = append(buf, e.Inputs[i][:]...)
		}

		buf = append(buf, e.Output[:]...)
	}

	return buf
}

// DecodeTrace parses a persisted trace, rejecting schema versions outside
// the supported range.
func DecodeTrace(data []byte) (Trace, error) {
	r := bytes.NewReader(data)

	version, err := readString(r)
	if err != nil {
		return nil, err
	}

	v, err := semver.NewVersion(version)
	if err != nil {
		return nil, diag.Wrap(diag.CategoryCodec, "BAD_TRACE_VERSION",
			"trace version is not a semver", err)
	}

	if !traceConstraint.Check(v) {
		return nil, diag.Newf(diag.CategoryCodec, "TRACE_VERSION_UNSUPPORTED",
			"trace schema %s is outside the supported range ^1", version)
	}

	count, err := binary.ReadUvarint(r)
	if err != nil || count > uint64(r.Len()) {
		return nil, truncatedTrace()
	}

	trace := make(Trace, 0, count)

	for i := uint64(0); i < count; i++ {
		var e TraceEntry

		if e.Node, err = readID(r); err != nil {
			return nil, err
		}

		n, err := binary.ReadUvarint(r)
		if err != nil || n > uint64(r.Len()) {
			return nil, truncatedTrace()
		}

		e.Inputs = make([]value.ID, n)

		for j := uint64(0); j < n; j++ {
			if e.Inputs[j], err = readID(r); err != nil {
				return nil, err
			}
		}

		if e.Output, err = readID(r); err != nil {
			return nil, err
		}

		trace = append(trace, e)
	}

	if r.Len() != 0 {
		return nil, diag.Newf(diag.CategoryCodec, "MALFORMED_TRACE",
			"%d trailing bytes after the last entry", r.Len())
	}

	return trace, nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil || n > uint64(r.Len()) {
		return "", truncatedTrace()
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", truncatedTrace()
	}

	return string(buf), nil
}

func readID(r *bytes.Reader) (value.ID, error) {
	var id value.ID
	if _, err := io.ReadFull(r, id[:]); err != nil {
		return value.ID{}, truncatedTrace()
	}

	return id, nil
}

func truncatedTrace() error {
	return diag.Newf(diag.CategoryCodec, "MALFORMED_TRACE", "truncated trace stream")
}

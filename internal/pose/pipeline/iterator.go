package pipeline

import (
	"fmt"
	"io"

	"github.com/wildtrace/posekit/internal/pose"
)

// Sequence is a lazy, single-pass pull iterator over examples. Next returns
// io.EOF as the only normal termination signal; any other error applies to
// the single record being produced.
type Sequence interface {
	Next() (Example, error)
}

// SequenceFunc adapts a function to the Sequence interface.
type SequenceFunc func() (Example, error)

// Next implements Sequence.
func (f SequenceFunc) Next() (Example, error) { return f() }

// FromSlice returns a sequence over a fixed slice of examples.
func FromSlice(examples []Example) Sequence {
	i := 0
	return SequenceFunc(func() (Example, error) {
		if i >= len(examples) {
			return nil, io.EOF
		}
		e := examples[i]
		i++
		return e, nil
	})
}

// Collect drains a sequence into a slice. The first non-EOF error aborts
// and is returned; use SafeSequence upstream for fault-isolated runs.
func Collect(seq Sequence) ([]Example, error) {
	var out []Example
	for {
		e, err := seq.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
}

// SafeSequence wraps a sequence with per-record fault isolation: an error
// (or panic) raised while producing one record is logged with its index and
// skipped, and iteration continues at the next record rather than aborting
// the run. io.EOF passes through as the normal termination.
type SafeSequence struct {
	seq   Sequence
	index int

	// ErrorCount is the number of records skipped so far.
	ErrorCount int
	// Progress, when non-nil, is invoked with the running record index
	// after each successfully produced record.
	Progress func(i int)
}

// NewSafeSequence wraps seq with fault isolation.
func NewSafeSequence(seq Sequence) *SafeSequence {
	return &SafeSequence{seq: seq}
}

// Next implements Sequence.
func (s *SafeSequence) Next() (Example, error) {
	for {
		e, err := s.nextRecovered()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			pose.Opsf("[Pipeline] Error on record %d, skipping: %v", s.index, err)
			s.ErrorCount++
			s.index++
			continue
		}
		if s.Progress != nil {
			s.Progress(s.index)
		}
		s.index++
		return e, nil
	}
}

// nextRecovered pulls one record, converting panics in upstream stages into
// per-record errors so one malformed frame cannot abort a multi-hour run.
func (s *SafeSequence) nextRecovered() (e Example, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.seq.Next()
}

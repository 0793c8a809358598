package pipeline

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func numberedExamples(n int) []Example {
	out := make([]Example, n)
	for i := range out {
		out[i] = Example{KeyFrameIndex: i}
	}
	return out
}

func TestFromSlice_Collect(t *testing.T) {
	examples := numberedExamples(3)
	out, err := Collect(FromSlice(examples))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 examples, got %d", len(out))
	}
	for i, e := range out {
		if e.Int(KeyFrameIndex) != i {
			t.Errorf("example %d has frame_ind %d", i, e.Int(KeyFrameIndex))
		}
	}
}

func TestFromSlice_EOFIsSticky(t *testing.T) {
	seq := FromSlice(nil)
	for i := 0; i < 3; i++ {
		if _, err := seq.Next(); err != io.EOF {
			t.Fatalf("call %d: err = %v, want io.EOF", i, err)
		}
	}
}

func TestSafeSequence_SkipsFailingRecords(t *testing.T) {
	// 10 records; record 4 fails. The run yields the 9 good records.
	i := 0
	seq := SequenceFunc(func() (Example, error) {
		if i >= 10 {
			return nil, io.EOF
		}
		idx := i
		i++
		if idx == 4 {
			return nil, errors.New("synthetic decode failure")
		}
		return Example{KeyFrameIndex: idx}, nil
	})

	safe := NewSafeSequence(seq)
	out, err := Collect(safe)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 9 {
		t.Fatalf("expected 9 surviving records, got %d", len(out))
	}
	if safe.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", safe.ErrorCount)
	}
	for _, e := range out {
		if e.Int(KeyFrameIndex) == 4 {
			t.Error("failed record leaked into output")
		}
	}
}

func TestSafeSequence_RecoversPanics(t *testing.T) {
	i := 0
	seq := SequenceFunc(func() (Example, error) {
		if i >= 3 {
			return nil, io.EOF
		}
		idx := i
		i++
		if idx == 1 {
			panic(fmt.Sprintf("malformed record %d", idx))
		}
		return Example{KeyFrameIndex: idx}, nil
	})

	safe := NewSafeSequence(seq)
	out, err := Collect(safe)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 surviving records, got %d", len(out))
	}
	if safe.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", safe.ErrorCount)
	}
}

func TestSafeSequence_Progress(t *testing.T) {
	var seen []int
	safe := NewSafeSequence(FromSlice(numberedExamples(3)))
	safe.Progress = func(i int) { seen = append(seen, i) }

	if _, err := Collect(safe); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 3 || seen[0] != 0 || seen[2] != 2 {
		t.Errorf("progress indices = %v, want [0 1 2]", seen)
	}
}

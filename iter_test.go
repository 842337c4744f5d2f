package xdrfile

import (
	"errors"
	"testing"
)

//fakeTraj serves a fixed number of frames, then either ends cleanly or
//fails, to drive the iterator without touching the filesystem.
type fakeTraj struct {
	frames int
	served int
	fail   error
}

type fakeEOF struct{}

func (fakeEOF) Error() string               { return "EOF" }
func (fakeEOF) Decorate(string) []string    { return nil }
func (fakeEOF) Critical() bool              { return false }
func (fakeEOF) FileName() string            { return "fake" }
func (fakeEOF) Format() string              { return "fake" }
func (fakeEOF) Kind() ErrKind               { return KindNone }
func (fakeEOF) NormalLastFrameTermination() {}

func (ft *fakeTraj) Readable() bool { return true }

func (ft *fakeTraj) Read(frame *Frame) error {
	if ft.served == ft.frames {
		if ft.fail != nil {
			return ft.fail
		}
		return fakeEOF{}
	}
	frame.Resize(3)
	frame.Step = ft.served
	ft.served++
	return nil
}

func (ft *fakeTraj) Write(frame *Frame) error { return errors.New("read only") }
func (ft *fakeTraj) NumAtoms() (int, error)   { return 3, nil }
func (ft *fakeTraj) Flush() error             { return nil }
func (ft *fakeTraj) Close() error             { return nil }

func TestIterClean(t *testing.T) {
	it := NewIter(&fakeTraj{frames: 3})
	var steps []int
	for it.Next() {
		steps = append(steps, it.Frame().Step)
	}
	if it.Err() != nil {
		t.Fatalf("clean iteration ended with %v", it.Err())
	}
	if len(steps) != 3 || steps[0] != 0 || steps[2] != 2 {
		t.Errorf("steps = %v, want [0 1 2]", steps)
	}
	if it.Next() {
		t.Error("Next returned true after the iteration ended")
	}
}

func TestIterError(t *testing.T) {
	boom := errors.New("disk on fire")
	it := NewIter(&fakeTraj{frames: 2, fail: boom})
	n := 0
	for it.Next() {
		n++
	}
	if n != 2 {
		t.Errorf("iterated %d frames before the failure, want 2", n)
	}
	if it.Err() != boom {
		t.Errorf("Err = %v, want the read failure", it.Err())
	}
}

func TestIterReusesFrame(t *testing.T) {
	it := NewIter(&fakeTraj{frames: 2})
	if !it.Next() {
		t.Fatal("no first frame")
	}
	first := it.Frame()
	if !it.Next() {
		t.Fatal("no second frame")
	}
	if it.Frame() != first {
		t.Error("the iterator must decode into one shared frame")
	}
}

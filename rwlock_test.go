package smrproxy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRWEngineRetireNeverBlocksOnItsOwn(t *testing.T) {
	e := NewRWEngine()

	ref := e.AcquireRef()
	ref.Lock()

	destroyed := false
	done := make(chan struct{})
	go func() {
		e.Retire(destroyRecorder{destroyed: &destroyed})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Retire blocked on an outstanding reader; it must destroy immediately")
	}
	assert.True(t, destroyed)

	ref.Unlock()
	e.ReleaseRef(ref)
}

// A writer that wants exclusion against readers takes Exclusive() itself
// around Retire, the same way original_source/sharedproxy/sharedproxy.h
// expects the writer to hold the shared_mutex it wraps.
func TestRWEngineExclusiveWaitsForReader(t *testing.T) {
	e := NewRWEngine()

	ref := e.AcquireRef()
	ref.Lock()

	destroyed := false
	done := make(chan struct{})
	go func() {
		e.Exclusive().Lock()
		defer e.Exclusive().Unlock()
		e.Retire(destroyRecorder{destroyed: &destroyed})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Exclusive().Lock() returned while a reader still held the read lock")
	case <-time.After(20 * time.Millisecond):
	}

	ref.Unlock()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Exclusive().Lock() never completed after the reader released")
	}
	assert.True(t, destroyed)

	e.ReleaseRef(ref)
}

func TestRWEngineMultipleReadersConcurrent(t *testing.T) {
	e := NewRWEngine()
	r1 := e.AcquireRef()
	r2 := e.AcquireRef()

	r1.Lock()
	r2.Lock()
	r1.Unlock()
	r2.Unlock()

	e.ReleaseRef(r1)
	e.ReleaseRef(r2)
}

func TestRWEngineRetireNilIsNoop(t *testing.T) {
	e := NewRWEngine()
	assert.NotPanics(t, func() { e.Retire(nil) })
}

func TestRWEngineRelockPanics(t *testing.T) {
	e := NewRWEngine()
	ref := e.AcquireRef()
	ref.Lock()
	defer ref.Unlock()
	assert.Panics(t, func() { ref.Lock() })
}

func TestRWEngineReleaseForeignRefPanics(t *testing.T) {
	e1 := NewRWEngine()
	e2 := NewRWEngine()
	foreign := e2.AcquireRef()
	assert.Panics(t, func() { e1.ReleaseRef(foreign) })
}

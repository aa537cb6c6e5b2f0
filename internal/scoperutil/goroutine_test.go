package scoperutil

import (
	"fmt"
	"sync"
	"testing"
)

func TestParseGoroutineID(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		in   string
		want uint64
	}{
		{"goroutine 1 [running]:\nmain.main()", 1},
		{"goroutine 123456 [running]:", 123456},
		{"goroutine x [running]:", 0},
		{"gorout", 0},
		{"", 0},
	} {
		if have := parseGoroutineID([]byte(tc.in)); tc.want != have {
			t.Errorf("%q: want %d, have %d", tc.in, tc.want, have)
		}
	}
}

func TestGoroutineIDUnique(t *testing.T) {
	t.Parallel()

	const n = 32

	var (
		wg  sync.WaitGroup
		mtx sync.Mutex
		ids = map[uint64]bool{}
	)

	self := GoroutineID()
	if self == 0 {
		t.Fatalf("GoroutineID returned 0")
	}
	if again := GoroutineID(); again != self {
		t.Fatalf("GoroutineID not stable: %d then %d", self, again)
	}

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := GoroutineID()
			mtx.Lock()
			defer mtx.Unlock()
			ids[id] = true
		}()
	}
	wg.Wait()

	if ids[self] {
		t.Errorf("child goroutine reported parent ID %d", self)
	}
	if want, have := n, len(ids); want != have {
		t.Errorf("unique IDs: want %d, have %d", want, have)
	}
}

func TestGoroutineIDMatchesStack(t *testing.T) {
	t.Parallel()

	if want, have := stackGoroutineID(), GoroutineID(); want != have {
		t.Fatalf("main: want %d, have %d", want, have)
	}

	const n = 16
	errc := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			want, have := stackGoroutineID(), GoroutineID()
			if want != have {
				errc <- fmt.Errorf("want %d, have %d", want, have)
				return
			}
			errc <- nil
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-errc; err != nil {
			t.Error(err)
		}
	}
}

func BenchmarkGoroutineID(b *testing.B) {
	b.Run("fast", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_ = GoroutineID()
		}
	})

	b.Run("stack", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_ = stackGoroutineID()
		}
	})
}

package parallel

import "math/rand"
import "testing"

func TestHasherOrderIndependent(t *testing.T) {
	const n = 1000

	sequential := NewUint16Hasher(n)
	for i := 0; i < n; i++ {
		sequential.MustPutUint16(i, uint16(i*7))
	}
	want := sequential.Sum()

	perm := rand.New(rand.NewSource(1)).Perm(n)
	concurrent := NewUint16Hasher(n)
	ForEach(n, 16, func(j int) {
		i := perm[j]
		concurrent.MustPutUint16(i, uint16(i*7))
	})
	if got := concurrent.Sum(); got != want {
		t.Errorf("digest depends on write order: %x != %x", got, want)
	}

	changed := NewUint16Hasher(n)
	for i := 0; i < n; i++ {
		v := uint16(i * 7)
		if i == n/2 {
			v++
		}
		changed.MustPutUint16(i, v)
	}
	if changed.Sum() == want {
		t.Errorf("digest ignores a changed value")
	}
}

func TestHasherDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic on duplicate write")
		}
	}()
	h := NewUint16Hasher(10)
	h.MustPutUint16(3, 1)
	h.MustPutUint16(3, 1)
}

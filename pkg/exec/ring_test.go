package exec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingRejectsNonPowerOfTwo(t *testing.T) {
	_, err := NewRing[int](3)
	assert.Error(t, err)
	_, err = NewRing[int](0)
	assert.Error(t, err)
	_, err = NewRing[int](8)
	assert.NoError(t, err)
}

func TestRingPushPop(t *testing.T) {
	r, err := NewRing[int](4)
	require.NoError(t, err)
	assert.True(t, r.Empty())

	for i := 0; i < 4; i++ {
		assert.True(t, r.Push(i))
	}
	// Full.
	assert.False(t, r.Push(99))
	assert.Equal(t, 4, r.Len())

	for i := 0; i < 4; i++ {
		v, ok := r.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := r.Pop()
	assert.False(t, ok)
	assert.True(t, r.Empty())
}

func TestRingWrapAround(t *testing.T) {
	r, err := NewRing[int](2)
	require.NoError(t, err)
	for i := 0; i < 1000; i++ {
		require.True(t, r.Push(i))
		v, ok := r.Pop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}

// Release/acquire ordering: everything the producer wrote before Push is
// visible to the consumer after Pop, in order, with nothing lost.
func TestRingSPSC(t *testing.T) {
	const n = 200_000
	r, err := NewRing[uint64](1024)
	require.NoError(t, err)

	done := make(chan uint64)
	go func() {
		var sum uint64
		var next uint64
		for next < n {
			v, ok := r.Pop()
			if !ok {
				continue
			}
			if v != next {
				t.Errorf("out of order: got %d want %d", v, next)
				break
			}
			sum += v
			next++
		}
		done <- sum
	}()

	for i := uint64(0); i < n; {
		if r.Push(i) {
			i++
		}
	}
	sum := <-done
	assert.Equal(t, uint64(n)*(n-1)/2, sum)
}

func BenchmarkRingPushPop(b *testing.B) {
	r, _ := NewRing[uint64](1024)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		r.Push(uint64(i))
		r.Pop()
	}
}

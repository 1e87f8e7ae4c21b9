package arena

import (
	"math/rand"
	"testing"

	"gputerrain/internal/geometry"
	"gputerrain/internal/gpu/soft"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newArena(t *testing.T, quads int) (*Arena, *soft.Device) {
	t.Helper()
	dev := soft.New()
	a, err := New(dev, "arena", quads)
	require.NoError(t, err)
	return a, dev
}

func TestAllocFirstFitAndCoalesce(t *testing.T) {
	a, _ := newArena(t, 100)

	x, err := a.Alloc(10)
	require.NoError(t, err)
	y, err := a.Alloc(20)
	require.NoError(t, err)
	z, err := a.Alloc(5)
	require.NoError(t, err)
	assert.Equal(t, []Addr{0, 10, 30}, []Addr{x, y, z})
	assert.Equal(t, 35, a.Used())

	a.Free(x)
	a.Free(y)
	// x and y merged into one span of 30
	w, err := a.Alloc(25)
	require.NoError(t, err)
	assert.Equal(t, Addr(0), w)

	a.Free(z)
	assert.Equal(t, 25, a.HighWater(), "freeing the last span lowers the high-water mark")
	a.Free(w)
	assert.Equal(t, 0, a.HighWater())
	assert.Equal(t, 0, a.Live())
}

func TestAllocFull(t *testing.T) {
	a, _ := newArena(t, 16)
	_, err := a.Alloc(10)
	require.NoError(t, err)
	_, err = a.Alloc(7)
	assert.ErrorIs(t, err, ErrFull)
	_, err = a.Alloc(6)
	assert.NoError(t, err)
}

func TestDoubleFreePanics(t *testing.T) {
	a, _ := newArena(t, 16)
	addr, err := a.Alloc(4)
	require.NoError(t, err)
	a.Free(addr)
	assert.Panics(t, func() { a.Free(addr) })
	assert.Panics(t, func() { a.Free(3) })
}

// Live allocations never overlap, whatever the order of allocs and frees.
func TestAllocationsAreExclusive(t *testing.T) {
	a, _ := newArena(t, 4096)
	rng := rand.New(rand.NewSource(11))
	owner := make([]int, 4096) // quad -> owning allocation id, 0 when free
	live := map[Addr]int{}
	next := 1

	for range 5000 {
		if len(live) > 0 && rng.Intn(3) == 0 {
			for addr, id := range live {
				n, ok := a.Size(addr)
				require.True(t, ok)
				for q := int(addr); q < int(addr)+n; q++ {
					require.Equal(t, id, owner[q])
					owner[q] = 0
				}
				a.Free(addr)
				delete(live, addr)
				break
			}
			continue
		}
		n := 1 + rng.Intn(64)
		addr, err := a.Alloc(n)
		if err != nil {
			require.ErrorIs(t, err, ErrFull)
			continue
		}
		for q := int(addr); q < int(addr)+n; q++ {
			require.Zero(t, owner[q], "quad %d handed out twice", q)
			owner[q] = next
		}
		live[addr] = next
		next++
	}
	total := 0
	for addr := range live {
		n, _ := a.Size(addr)
		total += n
	}
	assert.Equal(t, total, a.Used())
}

func TestUploadWritesAllocation(t *testing.T) {
	a, dev := newArena(t, 8)
	_, err := a.Alloc(2)
	require.NoError(t, err)
	addr, err := a.Alloc(3)
	require.NoError(t, err)

	data := a.Upload(dev, addr)
	require.Len(t, data, 3*geometry.QuadSize)
	for i := range data {
		data[i] = 0xaa
	}
	dev.Commit()

	buf := dev.Lookup("arena")
	require.NotNil(t, buf)
	assert.Equal(t, byte(0), buf.Bytes()[2*geometry.QuadSize-1])
	assert.Equal(t, byte(0xaa), buf.Bytes()[2*geometry.QuadSize])
	assert.Equal(t, byte(0xaa), buf.Bytes()[5*geometry.QuadSize-1])
	assert.Equal(t, a.Address(), buf.Address())

	a.Release()
	assert.Equal(t, 0, dev.Live())
}

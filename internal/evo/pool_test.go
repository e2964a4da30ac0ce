package evo

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestPoolMapRunsEveryTask(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool := NewPool(4)
	defer pool.Close()

	out := make([]int, 100)
	err := pool.Map(context.Background(), len(out), func(_ context.Context, i int) error {
		out[i] = i * i
		return nil
	})
	require.NoError(t, err)
	for i, v := range out {
		assert.Equal(t, i*i, v)
	}
}

func TestPoolMapBoundsConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool := NewPool(3)
	defer pool.Close()

	var active, peak atomic.Int32
	err := pool.Map(context.Background(), 50, func(_ context.Context, _ int) error {
		cur := active.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		active.Add(-1)
		return nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestPoolMapReturnsFirstError(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool := NewPool(2)
	defer pool.Close()

	boom := errors.New("boom")
	err := pool.Map(context.Background(), 20, func(_ context.Context, i int) error {
		if i == 5 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestPoolClosedRejectsWork(t *testing.T) {
	pool := NewPool(2)
	require.NoError(t, pool.Close())
	err := pool.Map(context.Background(), 1, func(context.Context, int) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)

	serial := NewPool(1)
	require.NoError(t, serial.Close())
	err = serial.Map(context.Background(), 1, func(context.Context, int) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestNilPoolRunsSerially(t *testing.T) {
	var pool *Pool
	assert.Equal(t, 1, pool.Workers())
	order := make([]int, 0, 5)
	err := pool.Map(context.Background(), 5, func(_ context.Context, i int) error {
		order = append(order, i)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.NoError(t, pool.Close())
}

package parallel

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor(t *testing.T) {
	cfg := WithWorkers(4)

	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != int64(n) {
		t.Errorf("Expected %d, got %d", n, counter)
	}
}

func TestFor_Sequential(t *testing.T) {
	cfg := Config{Enabled: false}

	var order []int
	For(5, func(i int) {
		order = append(order, i)
	}, cfg)

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestFor_SingleItem(t *testing.T) {
	var counter int64
	For(1, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, WithWorkers(8))

	assert.Equal(t, int64(1), counter)
}

func TestWithWorkers(t *testing.T) {
	assert.Equal(t, 3, WithWorkers(3).NumWorkers)
	assert.True(t, WithWorkers(3).Enabled)
	assert.False(t, WithWorkers(1).Enabled)
	assert.Equal(t, DefaultConfig(), WithWorkers(0))
	assert.Equal(t, 1, DefaultConfig().MinChunkSize)
}

func TestMap(t *testing.T) {
	items := []string{"a.yaml", "b.yaml", "bad.yaml", "c.yaml"}
	errBad := errors.New("bad description")

	results, errs := Map(items, func(i int, item string) (string, error) {
		if item == "bad.yaml" {
			return "", errBad
		}
		return fmt.Sprintf("%d:%s", i, item), nil
	}, WithWorkers(3))

	assert.Equal(t, []string{"0:a.yaml", "1:b.yaml", "", "3:c.yaml"}, results)
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[2], errBad)
	assert.NoError(t, errs[3])
}

func TestMap_Empty(t *testing.T) {
	results, errs := Map(nil, func(int, int) (int, error) { return 0, nil }, DefaultConfig())
	assert.Empty(t, results)
	assert.Empty(t, errs)
}

func BenchmarkFor(b *testing.B) {
	cfg := DefaultConfig()
	n := 10000

	b.Run("parallel", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, func(i int) {
				atomic.AddInt64(&sum, int64(i))
			}, cfg)
		}
	})

	b.Run("sequential", func(b *testing.B) {
		cfgSeq := cfg
		cfgSeq.Enabled = false
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, func(i int) {
				atomic.AddInt64(&sum, int64(i))
			}, cfgSeq)
		}
	})
}

package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor_VisitsEveryIndexOnce(t *testing.T) {
	for _, cfg := range []Config{Sequential(), DefaultConfig(), {Enabled: true, NumWorkers: 3, MinChunkSize: 1}} {
		hits := make([]int32, 97)
		For(len(hits), func(i int) { atomic.AddInt32(&hits[i], 1) }, cfg)
		for i, h := range hits {
			assert.Equal(t, int32(1), h, "index %d with %+v", i, cfg)
		}
	}
}

func TestFor_Empty(t *testing.T) {
	called := false
	For(0, func(int) { called = true }, DefaultConfig())
	assert.False(t, called)
}

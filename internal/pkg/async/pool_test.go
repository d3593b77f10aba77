package async

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolExecutesAllTasks(t *testing.T) {
	pool := NewPool(4)

	var tasks []Task
	for i := 0; i < 20; i++ {
		key := fmt.Sprintf("task-%d", i)
		value := i
		tasks = append(tasks, Task{
			Key:     key,
			Execute: func() (interface{}, error) { return value * 2, nil },
		})
	}

	results := pool.Execute(context.Background(), tasks)
	require.Len(t, results, 20)
	for i := 0; i < 20; i++ {
		result := results[fmt.Sprintf("task-%d", i)]
		require.NoError(t, result.Err)
		assert.Equal(t, i*2, result.Data)
	}
}

func TestPoolKeepsFailuresKeyed(t *testing.T) {
	pool := NewPool(2)
	boom := errors.New("boom")

	results := pool.Execute(context.Background(), []Task{
		{Key: "ok", Execute: func() (interface{}, error) { return "fine", nil }},
		{Key: "bad", Execute: func() (interface{}, error) { return nil, boom }},
	})

	require.Len(t, results, 2)
	assert.NoError(t, results["ok"].Err)
	assert.ErrorIs(t, results["bad"].Err, boom)
}

func TestPoolClampsWorkerCount(t *testing.T) {
	pool := NewPool(0)
	results := pool.Execute(context.Background(), []Task{
		{Key: "only", Execute: func() (interface{}, error) { return 1, nil }},
	})
	require.Len(t, results, 1)
}

func TestPoolCancelledContext(t *testing.T) {
	pool := NewPool(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := pool.Execute(ctx, []Task{
		{Key: "never", Execute: func() (interface{}, error) { return 1, nil }},
	})
	assert.LessOrEqual(t, len(results), 1)
}

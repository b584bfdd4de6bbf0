package utils

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Hash Tests

func TestSha256Hex(t *testing.T) {
	// Known SHA-256 vector
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		Sha256Hex(""))
	assert.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		Sha256Hex("hello"))

	// Deterministic
	assert.Equal(t, Sha256Hex("secret"), Sha256Hex("secret"))
	assert.NotEqual(t, Sha256Hex("secret"), Sha256Hex("secret2"))
}

func TestPoolCommitmentPayload(t *testing.T) {
	payload := PoolCommitmentPayload("seed123", []string{"p1", "p1", "p2"})
	assert.Equal(t, "seed123|p1,p1,p2", payload)

	// Empty order still produces the pipe separator
	assert.Equal(t, "seed|", PoolCommitmentPayload("seed", nil))
}

func TestPoolCommitmentPayload_OrderSensitive(t *testing.T) {
	a := PoolCommitmentPayload("s", []string{"p1", "p2"})
	b := PoolCommitmentPayload("s", []string{"p2", "p1"})
	assert.NotEqual(t, Sha256Hex(a), Sha256Hex(b))
}

// Random Tests

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(32)
	require.NoError(t, err)
	assert.Len(t, code, 64) // hex doubles the byte count

	other, err := GenerateCode(32)
	require.NoError(t, err)
	assert.NotEqual(t, code, other)
}

func TestSecureIntn(t *testing.T) {
	for i := 0; i < 100; i++ {
		v, err := SecureIntn(10)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 10)
	}

	_, err := SecureIntn(0)
	assert.Error(t, err)
	_, err = SecureIntn(-5)
	assert.Error(t, err)
}

func TestSecureShuffle_PreservesMultiset(t *testing.T) {
	items := []string{"a", "a", "b", "c", "d", "e", "f", "g"}
	original := append([]string(nil), items...)

	require.NoError(t, SecureShuffle(items))

	sortedItems := append([]string(nil), items...)
	sortedOriginal := append([]string(nil), original...)
	sort.Strings(sortedItems)
	sort.Strings(sortedOriginal)
	assert.Equal(t, sortedOriginal, sortedItems)
}

// Circuit Breaker Tests

func TestCircuitBreaker_NewCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker("test")

	assert.Equal(t, "test", cb.name)
	assert.Equal(t, uint32(100), cb.maxRequests)
	assert.Equal(t, 60*time.Second, cb.interval)
	assert.Equal(t, 60*time.Second, cb.timeout)
	assert.Equal(t, 0.6, cb.failureRatio)
	assert.Equal(t, StateClosed, cb.state)
}

func TestCircuitBreaker_ExecuteSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx := context.Background()

	err := cb.Execute(ctx, func() error {
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, StateClosed, cb.state)
	assert.Equal(t, uint32(1), cb.counts.Requests)
	assert.Equal(t, uint32(1), cb.counts.TotalSuccesses)
	assert.Equal(t, uint32(0), cb.counts.TotalFailures)
}

func TestCircuitBreaker_ExecuteFailure(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx := context.Background()

	expectedError := errors.New("test error")
	err := cb.Execute(ctx, func() error {
		return expectedError
	})

	assert.Error(t, err)
	assert.Equal(t, expectedError, err)
	assert.Equal(t, uint32(1), cb.counts.Requests)
	assert.Equal(t, uint32(0), cb.counts.TotalSuccesses)
	assert.Equal(t, uint32(1), cb.counts.TotalFailures)
}

func TestCircuitBreaker_CancelledContext(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Execute(ctx, func() error {
		t.Fatal("request must not run with a cancelled context")
		return nil
	})

	assert.Error(t, err)
	assert.Equal(t, uint32(1), cb.counts.TotalFailures)
}

func TestCircuitBreaker_StateTransition_ClosedToOpen(t *testing.T) {
	cb := NewCircuitBreaker("test")
	cb.maxRequests = 5 // Lower threshold for testing
	cb.failureRatio = 0.6

	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := cb.Execute(ctx, func() error { return nil })
		assert.NoError(t, err)
	}

	for i := 0; i < 4; i++ {
		err := cb.Execute(ctx, func() error { return errors.New("failure") })
		assert.Error(t, err)
	}

	assert.Equal(t, StateOpen, cb.state)

	// Next request should be rejected without executing
	err := cb.Execute(ctx, func() error {
		t.Fatal("This should not be executed when circuit is open")
		return nil
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "is open")
}

func TestCircuitBreaker_StateTransition_OpenToHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker("test")
	cb.maxRequests = 5
	cb.failureRatio = 0.6
	cb.timeout = 100 * time.Millisecond // Short timeout for testing

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		cb.Execute(ctx, func() error { return errors.New("failure") })
	}
	assert.Equal(t, StateOpen, cb.state)

	time.Sleep(150 * time.Millisecond)

	err := cb.Execute(ctx, func() error { return nil })

	assert.NoError(t, err)
	assert.Equal(t, StateClosed, cb.state)
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker("concurrent-test")
	ctx := context.Background()

	var wg sync.WaitGroup
	numGoroutines := 100
	successCount := 0
	mu := sync.Mutex{}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			err := cb.Execute(ctx, func() error {
				time.Sleep(time.Millisecond)
				if id%10 == 0 { // 10% failure rate
					return errors.New("simulated failure")
				}
				return nil
			})

			if err == nil {
				mu.Lock()
				successCount++
				mu.Unlock()
			}
		}(i)
	}

	wg.Wait()

	assert.Greater(t, successCount, 50)
	assert.Equal(t, uint32(numGoroutines), cb.counts.Requests)
}

func TestCircuitBreaker_PanicRecovery(t *testing.T) {
	cb := NewCircuitBreaker("panic-test")
	ctx := context.Background()

	assert.Panics(t, func() {
		cb.Execute(ctx, func() error {
			panic("test panic")
		})
	})

	// Circuit breaker should still function after panic
	err := cb.Execute(ctx, func() error { return nil })
	assert.NoError(t, err)
}

func TestCircuitBreaker_ReadyToTrip(t *testing.T) {
	cb := NewCircuitBreaker("trip-test")

	tests := []struct {
		name           string
		requests       uint32
		failures       uint32
		maxRequests    uint32
		failureRatio   float64
		expectedResult bool
	}{
		{
			name:           "Not enough requests",
			requests:       5,
			failures:       5,
			maxRequests:    10,
			failureRatio:   0.5,
			expectedResult: false,
		},
		{
			name:           "High failure ratio",
			requests:       10,
			failures:       8,
			maxRequests:    10,
			failureRatio:   0.6,
			expectedResult: true,
		},
		{
			name:           "Low failure ratio",
			requests:       10,
			failures:       3,
			maxRequests:    10,
			failureRatio:   0.6,
			expectedResult: false,
		},
		{
			name:           "Exact failure ratio threshold",
			requests:       10,
			failures:       6,
			maxRequests:    10,
			failureRatio:   0.6,
			expectedResult: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb.maxRequests = tt.maxRequests
			cb.failureRatio = tt.failureRatio
			cb.counts.Requests = tt.requests
			cb.counts.TotalFailures = tt.failures

			result := cb.readyToTrip()
			assert.Equal(t, tt.expectedResult, result)
		})
	}
}

// Redis Client Tests

func TestRedisHealthCheck_Success(t *testing.T) {
	db, mock := redismock.NewClientMock()

	mock.ExpectPing().SetVal("PONG")

	err := RedisHealthCheck(db)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisHealthCheck_Failure(t *testing.T) {
	db, mock := redismock.NewClientMock()

	expectedError := errors.New("connection failed")
	mock.ExpectPing().SetErr(expectedError)

	err := RedisHealthCheck(db)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis health check failed")
	assert.Contains(t, err.Error(), "connection failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Benchmark Tests

func BenchmarkCircuitBreaker_Execute_Success(b *testing.B) {
	cb := NewCircuitBreaker("benchmark")
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cb.Execute(ctx, func() error { return nil })
	}
}

func BenchmarkSha256Hex(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Sha256Hex("benchmark-input")
	}
}

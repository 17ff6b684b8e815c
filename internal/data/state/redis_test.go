package state

import (
	"os"
	"testing"
	"time"

	"github.com/yungbote/curricula-backend/internal/pkg/logger"
)

func redisStoreForTest(t *testing.T) Store {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis state store tests")
	}
	t.Setenv("REDIS_ADDR", addr)

	s, err := NewRedisStore(logger.NewNop(), time.Minute)
	if err != nil {
		t.Fatalf("init redis store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRedisStoreContract(t *testing.T) {
	s := redisStoreForTest(t)
	testStoreContract(t, s)
}

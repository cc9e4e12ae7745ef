package httpapi

import (
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// recordHook answers commands locally and keeps their arguments.
type recordHook struct {
	got []string
	val int64
}

func argLine(cmd redis.Cmder) string {
	return strings.TrimSpace(fmt.Sprintln(cmd.Args()...))
}

func (h *recordHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, fmt.Errorf("unexpected dial %s", addr)
	}
}

func (h *recordHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.got = append(h.got, argLine(cmd))
		return nil
	}
}

func (h *recordHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			h.got = append(h.got, argLine(cmd))
			if c, ok := cmd.(*redis.IntCmd); ok && cmd.Name() == "incr" {
				c.SetVal(h.val)
			}
		}
		return nil
	}
}

func TestRedisCounter_IncrUsesPlainExpire(t *testing.T) {
	t.Parallel()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = rdb.Close() })
	hook := &recordHook{val: 3}
	rdb.AddHook(hook)

	n, err := NewRedisCounter(rdb).Incr(context.Background(), "rl:1.2.3.4:42", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	require.Contains(t, hook.got, "incr rl:1.2.3.4:42")
	// EXPIRE with the NX flag needs Redis 7; the key already names its window.
	require.Contains(t, hook.got, "expire rl:1.2.3.4:42 60")
	for _, c := range hook.got {
		require.NotContains(t, c, "NX")
	}
}

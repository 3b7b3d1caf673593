package redis

import (
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestKeyNamespace(t *testing.T) {
	c := Wrap(goredis.NewClient(&goredis.Options{Addr: "localhost:0"}), "")
	defer c.Close()
	assert.Equal(t, "tradeloop:price:AAPL", c.key("price", "AAPL"))
	assert.Equal(t, "tradeloop:lock:tradeloop:loop:paper", c.key("lock", "tradeloop:loop:paper"))

	staging := Wrap(c.Underlying(), "staging")
	assert.Equal(t, "staging:bus:dashboard", staging.key("bus", "dashboard"))
}

func TestParseQuote(t *testing.T) {
	ts := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	px, got, ok := parseQuote(map[string]string{"px": "187.25", "ts": "1772463600000000000"})
	assert.True(t, ok)
	assert.Equal(t, 187.25, px)
	assert.True(t, ts.Equal(got))

	_, _, ok = parseQuote(map[string]string{"px": "187.25"})
	assert.False(t, ok)
	_, _, ok = parseQuote(map[string]string{})
	assert.False(t, ok)
}

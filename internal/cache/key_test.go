package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTreeKey(t *testing.T) {
	assert.Equal(t, "knowtext:tree:tenant-a:0", treeKey("tenant-a", 0))
	assert.Equal(t, "knowtext:tree:tenant-a:7", treeKey("tenant-a", 7))
	assert.Equal(t, "knowtext:tree-gen:tenant-a", generationKey("tenant-a"))
}

func TestNewTreeCache_DefaultTTL(t *testing.T) {
	c := NewTreeCache(nil, 0)
	assert.Equal(t, DefaultTTL, c.ttl)
	assert.Equal(t, time.Second, NewTreeCache(nil, time.Second).ttl)
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "redis://localhost:6379/not-a-db")
	assert.Error(t, err)
}

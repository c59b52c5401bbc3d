package statuscache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// Job status snapshots cached under job:{id} so status polls do not hit
// MySQL on every tick. Cache failures are never fatal: the store is the
// source of truth and readers fall back to it.

const keyTTL = time.Hour

// Entry the cached view of a running job.
type Entry struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func key(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}

// Set writes the snapshot with a 1-hour TTL. Errors are logged and
// dropped.
func (c *Cache) Set(ctx context.Context, jobID string, entry *Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("statuscache: marshal failed for job %s: %v", jobID, err)
		return
	}
	if err := c.client.Set(ctx, key(jobID), data, keyTTL).Err(); err != nil {
		log.Printf("statuscache: set failed for job %s: %v", jobID, err)
	}
}

// Get returns the cached snapshot, or nil on miss or any error.
func (c *Cache) Get(ctx context.Context, jobID string) *Entry {
	data, err := c.client.Get(ctx, key(jobID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("statuscache: get failed for job %s: %v", jobID, err)
		}
		return nil
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		log.Printf("statuscache: decode failed for job %s: %v", jobID, err)
		return nil
	}
	return &entry
}

// Delete removes the snapshot (retention sweep).
func (c *Cache) Delete(ctx context.Context, jobID string) {
	if err := c.client.Del(ctx, key(jobID)).Err(); err != nil {
		log.Printf("statuscache: delete failed for job %s: %v", jobID, err)
	}
}

package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// acquireScript locks every key for ARGV[1] or none of them. It returns the
// 1-based index of the first key owned by someone else, 0 on success.
var acquireScript = redis.NewScript(`
for i, key in ipairs(KEYS) do
	local owner = redis.call("GET", key)
	if owner and owner ~= ARGV[1] then
		return i
	end
end
for _, key in ipairs(KEYS) do
	redis.call("SET", key, ARGV[1], "PX", ARGV[2])
end
return 0
`)

// releaseScript deletes the keys still owned by ARGV[1].
var releaseScript = redis.NewScript(`
local n = 0
for _, key in ipairs(KEYS) do
	if redis.call("GET", key) == ARGV[1] then
		redis.call("DEL", key)
		n = n + 1
	end
end
return n
`)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

func holdKey(roomID int64) string {
	return "hold:room:" + strconv.FormatInt(roomID, 10)
}

func holdKeys(roomIDs []int64) []string {
	keys := make([]string, len(roomIDs))
	for i, id := range roomIDs {
		keys[i] = holdKey(id)
	}
	return keys
}

// LockRooms takes the hold locks for all rooms atomically. When a room is
// held by another guest nothing is locked and its id is returned with
// ok=false. Locks already owned by the guest are refreshed.
func (c *Cache) LockRooms(ctx context.Context, guestID string, roomIDs []int64, ttl time.Duration) (conflict int64, ok bool, err error) {
	res, err := acquireScript.Run(ctx, c.client, holdKeys(roomIDs), guestID, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, false, errors.Wrap(err, "lock rooms")
	}
	if res == 0 {
		return 0, true, nil
	}
	return roomIDs[res-1], false, nil
}

// UnlockRooms deletes the locks the guest still owns and reports how many.
func (c *Cache) UnlockRooms(ctx context.Context, guestID string, roomIDs []int64) (int64, error) {
	if len(roomIDs) == 0 {
		return 0, nil
	}
	n, err := releaseScript.Run(ctx, c.client, holdKeys(roomIDs), guestID).Int64()
	if err != nil {
		return 0, errors.Wrap(err, "unlock rooms")
	}
	return n, nil
}

// Holders maps each currently locked room to the guest holding it.
func (c *Cache) Holders(ctx context.Context, roomIDs []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(roomIDs))
	if len(roomIDs) == 0 {
		return out, nil
	}
	vals, err := c.client.MGet(ctx, holdKeys(roomIDs)...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "read room holders")
	}
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[roomIDs[i]] = s
		}
	}
	return out, nil
}

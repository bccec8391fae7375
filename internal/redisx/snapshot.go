package redisx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-storefront-checkout/internal/checkout"
)

var ErrNoSnapshot = errors.New("no stored checkout snapshot")

// SnapshotStore keeps the latest checkout snapshot of each session so a
// buyer who lost the page, or support, can see where an attempt ended.
type SnapshotStore struct {
	Redis *redis.Client
}

// storedSnapshot tags a snapshot with the orchestrator that produced it.
// Seq restarts with every orchestrator, so ordering is by (Epoch, Seq).
type storedSnapshot struct {
	Epoch    int64             `json:"epoch"`
	Seq      uint64            `json:"seq"`
	Snapshot checkout.Snapshot `json:"snapshot"`
}

// Listener returns a checkout.Listener that stores every transition of
// sessionID. Call it once per orchestrator: each call opens a new epoch
// that supersedes whatever an earlier orchestrator of the session stored.
func (s *SnapshotStore) Listener(sessionID string) checkout.Listener {
	// Microseconds stay exact as Lua numbers.
	epoch := time.Now().UnixMicro()
	return func(t checkout.Transition) {
		ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
		defer cancel()
		if err := s.Save(ctx, sessionID, epoch, t.Snapshot); err != nil {
			log.WithError(err).WithField("session", sessionID).Warn("store checkout snapshot")
		}
	}
}

// Save writes snap unless the stored one is from a later epoch, or from
// the same epoch with a higher seq.
func (s *SnapshotStore) Save(ctx context.Context, sessionID string, epoch int64, snap checkout.Snapshot) error {
	b, err := json.Marshal(storedSnapshot{Epoch: epoch, Seq: snap.Seq, Snapshot: snap})
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	k := Key(KeyCheckoutSnapshot, sessionID)
	return saveIfNewer.Run(ctx, s.Redis, []string{k}, b, epoch, snap.Seq, int(TTLSnapshot.Seconds())).Err()
}

func (s *SnapshotStore) Load(ctx context.Context, sessionID string) (checkout.Snapshot, error) {
	var stored storedSnapshot
	b, err := s.Redis.Get(ctx, Key(KeyCheckoutSnapshot, sessionID)).Bytes()
	if err == redis.Nil {
		return checkout.Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return checkout.Snapshot{}, err
	}
	if err := json.Unmarshal(b, &stored); err != nil {
		return checkout.Snapshot{}, errors.Wrap(err, "decode snapshot")
	}
	return stored.Snapshot, nil
}

// saveIfNewer keeps the stored document when its (epoch, seq) is above
// (ARGV[2], ARGV[3]).
var saveIfNewer = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if cur then
	local ok, doc = pcall(cjson.decode, cur)
	if ok and doc["epoch"] and doc["seq"] then
		local epoch, seq = tonumber(doc["epoch"]), tonumber(doc["seq"])
		local newEpoch, newSeq = tonumber(ARGV[2]), tonumber(ARGV[3])
		if epoch > newEpoch or (epoch == newEpoch and seq > newSeq) then
			return 0
		end
	end
end
redis.call("SET", KEYS[1], ARGV[1], "EX", ARGV[4])
return 1
`)

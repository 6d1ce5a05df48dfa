package relay

import (
	"hash/fnv"
	"sync"
)

// DefaultShards is the shard count used when none is configured.
const DefaultShards = 32

// Directory maps device ids to the sessions subscribed to them. Rooms are
// spread over independently locked shards so unrelated devices never
// contend.
type Directory struct {
	shards []*shard
}

type shard struct {
	mu    sync.RWMutex
	rooms map[string]map[*Session]struct{}
}

// NewDirectory creates a directory with n shards (DefaultShards if n <= 0).
func NewDirectory(n int) *Directory {
	if n <= 0 {
		n = DefaultShards
	}
	d := &Directory{shards: make([]*shard, n)}
	for i := range d.shards {
		d.shards[i] = &shard{rooms: make(map[string]map[*Session]struct{})}
	}
	return d
}

func (d *Directory) shardFor(deviceID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(deviceID))
	return d.shards[h.Sum32()%uint32(len(d.shards))]
}

// Subscribe adds s to the device's room. Subscribing twice is a no-op.
// A terminated session gets ErrSessionClosed and is never added.
func (d *Directory) Subscribe(s *Session, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTerminated {
		return ErrSessionClosed
	}
	if _, ok := s.devices[deviceID]; ok {
		return nil
	}

	sh := d.shardFor(deviceID)
	sh.mu.Lock()
	room := sh.rooms[deviceID]
	if room == nil {
		room = make(map[*Session]struct{})
		sh.rooms[deviceID] = room
	}
	room[s] = struct{}{}
	sh.mu.Unlock()

	s.devices[deviceID] = struct{}{}
	s.state = StateSubscribed
	return nil
}

// UnsubscribeAll removes s from every room it joined.
func (d *Directory) UnsubscribeAll(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for deviceID := range s.devices {
		sh := d.shardFor(deviceID)
		sh.mu.Lock()
		if room := sh.rooms[deviceID]; room != nil {
			delete(room, s)
			if len(room) == 0 {
				delete(sh.rooms, deviceID)
			}
		}
		sh.mu.Unlock()
	}
	clear(s.devices)
}

// MembersOf returns a snapshot of the sessions subscribed to deviceID.
func (d *Directory) MembersOf(deviceID string) []*Session {
	sh := d.shardFor(deviceID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	room := sh.rooms[deviceID]
	out := make([]*Session, 0, len(room))
	for s := range room {
		out = append(out, s)
	}
	return out
}

// Rooms returns the number of devices with at least one subscriber.
func (d *Directory) Rooms() int {
	n := 0
	for _, sh := range d.shards {
		sh.mu.RLock()
		n += len(sh.rooms)
		sh.mu.RUnlock()
	}
	return n
}

// Count returns the total number of (session, device) subscriptions.
func (d *Directory) Count() int {
	n := 0
	for _, sh := range d.shards {
		sh.mu.RLock()
		for _, room := range sh.rooms {
			n += len(room)
		}
		sh.mu.RUnlock()
	}
	return n
}

package qpe

import (
	"sync"
	"time"

	"github.com/theapemachine/errnie"
)

// QuantumValue wraps a value with metadata
type QuantumValue struct {
	Value     any
	Error     error
	CreatedAt time.Time
	TTL       time.Duration
}

// BroadcastGroup handles pub/sub
type BroadcastGroup struct {
	mu       sync.Mutex
	ID       string
	channels []chan QuantumValue
	TTL      time.Duration
	LastUsed time.Time
	closed   bool
}

/*
Send delivers qv to every subscriber. A subscriber that is not keeping up
misses the value instead of stalling the sender.
*/
func (bg *BroadcastGroup) Send(qv QuantumValue) {
	bg.mu.Lock()
	defer bg.mu.Unlock()

	if bg.closed {
		return
	}

	bg.LastUsed = time.Now()
	for _, ch := range bg.channels {
		select {
		case ch <- qv:
		default:
		}
	}
}

func (bg *BroadcastGroup) subscribe(buffer int) chan QuantumValue {
	bg.mu.Lock()
	defer bg.mu.Unlock()

	ch := make(chan QuantumValue, buffer)
	if bg.closed {
		close(ch)
		return ch
	}
	bg.channels = append(bg.channels, ch)
	return ch
}

// Close ends every subscription.
func (bg *BroadcastGroup) Close() {
	bg.mu.Lock()
	defer bg.mu.Unlock()

	if bg.closed {
		return
	}
	bg.closed = true
	for _, ch := range bg.channels {
		close(ch)
	}
	bg.channels = nil
}

/*
QuantumSpace stores job results until their TTL runs out and hands them to
whoever awaits them. It also hosts the broadcast groups.
*/
type QuantumSpace struct {
	mu      sync.Mutex
	values  map[string]QuantumValue
	waiting map[string][]chan QuantumValue
	groups  map[string]*BroadcastGroup
	wg      sync.WaitGroup
	done    chan struct{}
	once    sync.Once
}

func NewQuantumSpace(cleanupInterval time.Duration) *QuantumSpace {
	qs := &QuantumSpace{
		values:  make(map[string]QuantumValue),
		waiting: make(map[string][]chan QuantumValue),
		groups:  make(map[string]*BroadcastGroup),
		done:    make(chan struct{}),
	}

	qs.wg.Add(1)
	go func() {
		defer qs.wg.Done()
		qs.cleanup(cleanupInterval)
	}()

	return qs
}

// Store stores a value with its metadata and releases its waiters
func (qs *QuantumSpace) Store(id string, value any, err error, ttl time.Duration) {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	qv := QuantumValue{
		Value:     value,
		Error:     err,
		CreatedAt: time.Now(),
		TTL:       ttl,
	}
	qs.values[id] = qv

	for _, ch := range qs.waiting[id] {
		ch <- qv
		close(ch)
	}
	delete(qs.waiting, id)
}

// Await returns a channel that will receive the value when it's available
func (qs *QuantumSpace) Await(id string) chan QuantumValue {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	ch := make(chan QuantumValue, 1)

	if qv, ok := qs.values[id]; ok {
		ch <- qv
		close(ch)
		return ch
	}

	qs.waiting[id] = append(qs.waiting[id], ch)
	return ch
}

func (qs *QuantumSpace) CreateBroadcastGroup(id string, ttl time.Duration) *BroadcastGroup {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	if group, ok := qs.groups[id]; ok {
		return group
	}

	group := &BroadcastGroup{
		ID:       id,
		channels: make([]chan QuantumValue, 0),
		TTL:      ttl,
		LastUsed: time.Now(),
	}
	qs.groups[id] = group
	return group
}

// Subscribe joins a broadcast group. Unknown groups yield a closed channel.
func (qs *QuantumSpace) Subscribe(groupID string, buffer int) chan QuantumValue {
	qs.mu.Lock()
	group, ok := qs.groups[groupID]
	qs.mu.Unlock()

	if !ok {
		ch := make(chan QuantumValue)
		close(ch)
		return ch
	}
	return group.subscribe(buffer)
}

func (qs *QuantumSpace) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-qs.done:
			return
		case <-ticker.C:
			qs.mu.Lock()
			qs.cleanupExpiredValues()
			qs.cleanupExpiredGroups()
			qs.mu.Unlock()
		}
	}
}

func (qs *QuantumSpace) cleanupExpiredValues() {
	now := time.Now()
	for id, qv := range qs.values {
		if qv.TTL > 0 && now.Sub(qv.CreatedAt) > qv.TTL {
			delete(qs.values, id)
		}
	}
}

func (qs *QuantumSpace) cleanupExpiredGroups() {
	now := time.Now()
	for id, group := range qs.groups {
		group.mu.Lock()
		expired := group.TTL > 0 && now.Sub(group.LastUsed) > group.TTL
		group.mu.Unlock()

		if expired {
			group.Close()
			delete(qs.groups, id)
		}
	}
}

// Close stops the cleanup loop and ends all broadcast groups.
func (qs *QuantumSpace) Close() {
	qs.once.Do(func() {
		close(qs.done)
		qs.wg.Wait()

		qs.mu.Lock()
		defer qs.mu.Unlock()

		for id, group := range qs.groups {
			group.Close()
			delete(qs.groups, id)
		}
		errnie.Info("quantum space closed with %d stored values", len(qs.values))
	})
}

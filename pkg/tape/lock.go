package tape

import (
	"sync"

	"github.com/mwantia/gotape/pkg/faults"
)

// LockRegistry enforces exclusive access to tape devices: at most one
// archive or recovery job may hold a given device at a time.
type LockRegistry struct {
	mutex sync.Mutex
	held  map[string]string // device path -> holder description
}

func NewLockRegistry() *LockRegistry {
	return &LockRegistry{
		held: make(map[string]string),
	}
}

// Acquire claims the device for the named holder. On success it returns
// a release func that must run on every exit path; on contention it
// fails immediately naming the current holder.
func (lr *LockRegistry) Acquire(device, holder string) (func(), error) {
	lr.mutex.Lock()
	defer lr.mutex.Unlock()

	if current, busy := lr.held[device]; busy {
		return nil, faults.Tape("tape.lock", "device %s is busy (held by %s)", device, current)
	}

	lr.held[device] = holder
	var once sync.Once
	release := func() {
		once.Do(func() {
			lr.mutex.Lock()
			defer lr.mutex.Unlock()
			delete(lr.held, device)
		})
	}
	return release, nil
}

// Holder reports who currently holds the device, if anyone.
func (lr *LockRegistry) Holder(device string) (string, bool) {
	lr.mutex.Lock()
	defer lr.mutex.Unlock()

	holder, ok := lr.held[device]
	return holder, ok
}

package reconciler

import (
	"log"
	"sync"
	"time"

	"github.com/loungeskip/loungeskip/internal/prefs"
	"github.com/loungeskip/loungeskip/internal/store"
	"github.com/loungeskip/loungeskip/internal/supervisor"
)

const defaultInterval = 5 * time.Second

// Reconciler keeps the live supervisor set equal to the persisted device
// set. It reads a fresh snapshot every tick; nothing is cached between
// ticks except the handles themselves.
type Reconciler struct {
	store      *store.Store
	deps       supervisor.Deps
	logger     *log.Logger
	interval   time.Duration
	onSettings func(prefs.Global)

	mu   sync.Mutex
	live map[string]*supervisor.Supervisor

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a reconciler. onSettings, if set, observes the global
// configuration every tick; the runtime uses it to track the proxy policy.
func New(st *store.Store, deps supervisor.Deps, onSettings func(prefs.Global), logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.Default()
	}
	return &Reconciler{
		store:      st,
		deps:       deps,
		logger:     logger,
		interval:   defaultInterval,
		onSettings: onSettings,
		live:       make(map[string]*supervisor.Supervisor),
		stopCh:     make(chan struct{}),
	}
}

// Run ticks until Shutdown. The first reconcile happens immediately.
func (r *Reconciler) Run() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.tick()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.tick()
			}
		}
	}()
}

// tick is one reconcile pass. Failures are logged; the next tick retries.
func (r *Reconciler) tick() {
	global, err := r.store.Global()
	if err != nil {
		r.logger.Printf("RECONCILER: read settings: %v", err)
		return
	}
	if r.onSettings != nil {
		r.onSettings(global)
	}

	devices, err := r.store.Devices()
	if err != nil {
		r.logger.Printf("RECONCILER: read devices: %v", err)
		return
	}

	desired := make(map[string]store.DeviceSnapshot, len(devices))
	for _, device := range devices {
		desired[device.ScreenID] = device
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for screenID, sup := range r.live {
		snapshot, wanted := desired[screenID]
		if wanted && !sup.Snapshot().Changed(snapshot) {
			continue
		}
		if wanted {
			r.logger.Printf("RECONCILER: %s changed, restarting", screenID)
		} else {
			r.logger.Printf("RECONCILER: %s removed, stopping", screenID)
		}
		// Stop fully before a replacement starts so two sessions for one
		// device never coexist.
		sup.Stop()
		delete(r.live, screenID)
	}

	for screenID, snapshot := range desired {
		if _, running := r.live[screenID]; running {
			continue
		}
		r.logger.Printf("RECONCILER: starting %s", screenID)
		r.live[screenID] = supervisor.Start(snapshot, global, r.deps)
	}
}

// Supervisors returns the current handles, for the daily auth sweep.
func (r *Reconciler) Supervisors() []*supervisor.Supervisor {
	r.mu.Lock()
	defer r.mu.Unlock()
	supervisors := make([]*supervisor.Supervisor, 0, len(r.live))
	for _, sup := range r.live {
		supervisors = append(supervisors, sup)
	}
	return supervisors
}

// Count returns the number of live supervisors.
func (r *Reconciler) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// Shutdown stops the loop and every supervisor.
func (r *Reconciler) Shutdown() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	for screenID, sup := range r.live {
		sup.Stop()
		delete(r.live, screenID)
	}
}

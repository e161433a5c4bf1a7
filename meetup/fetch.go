package meetup

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
)

type FetchPhase int

const (
	FetchIdle FetchPhase = iota
	FetchLoading
	FetchLoaded
	FetchFailed
)

func (self FetchPhase) String() string {
	switch self {
	case FetchIdle:
		return "idle"
	case FetchLoading:
		return "loading"
	case FetchLoaded:
		return "loaded"
	case FetchFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// mutually exclusive filters. the start date bound is independent
// and may coexist with any of these.
type PredicateKey string

const (
	PredicateAll     PredicateKey = "all"
	PredicateIsGoing PredicateKey = "isGoing"
	PredicateIsHost  PredicateKey = "isHost"
)

type FetchControllerSettings struct {
	PageSize int
}

func DefaultFetchControllerSettings() *FetchControllerSettings {
	return &FetchControllerSettings{
		PageSize: 10,
	}
}

// translates filter and paging state into list calls and lands the results
// in the registry. every fetch is tagged with the generation current when it
// was issued; a landing fetch whose generation is no longer current was
// invalidated in flight and is discarded without touching the registry.
type FetchController struct {
	ctx    context.Context
	cancel context.CancelFunc

	api      *MeetupApi
	registry *Registry
	// the most recently known viewer username, read at write time
	viewerUsername func() string

	settings *FetchControllerSettings

	stateLock  sync.Mutex
	phase      FetchPhase
	lastErr    error
	predicate  PredicateKey
	startDate  time.Time
	pageNumber int
	pagination *Pagination
	generation uint64
	requestId  uint64
	selectedId Id

	phaseMonitor *CallbackList[func(FetchPhase)]
}

func NewFetchControllerWithDefaults(
	ctx context.Context,
	api *MeetupApi,
	registry *Registry,
	viewerUsername func() string,
) *FetchController {
	return NewFetchController(ctx, api, registry, viewerUsername, DefaultFetchControllerSettings())
}

func NewFetchController(
	ctx context.Context,
	api *MeetupApi,
	registry *Registry,
	viewerUsername func() string,
	settings *FetchControllerSettings,
) *FetchController {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &FetchController{
		ctx:            cancelCtx,
		cancel:         cancel,
		api:            api,
		registry:       registry,
		viewerUsername: viewerUsername,
		settings:       settings,
		phase:          FetchIdle,
		predicate:      PredicateAll,
		pageNumber:     1,
		phaseMonitor:   NewCallbackList[func(FetchPhase)](),
	}
}

func (self *FetchController) Close() {
	self.cancel()
}

// returns a function to remove the listener
func (self *FetchController) AddPhaseListener(listener func(FetchPhase)) func() {
	return self.phaseMonitor.Add(listener)
}

func (self *FetchController) setPhase(phase FetchPhase) {
	self.stateLock.Lock()
	changed := self.phase != phase
	self.phase = phase
	self.stateLock.Unlock()

	if changed {
		for _, listener := range self.phaseMonitor.Get() {
			listener(phase)
		}
	}
}

// setting a predicate key clears the others. the prior window's membership
// criteria no longer apply, so the registry is cleared before the fetch at
// page 1 is issued.
func (self *FetchController) SetPredicate(predicate PredicateKey) {
	self.stateLock.Lock()
	if self.predicate == predicate {
		// re-selecting the current filter keeps the window.
		// use `Refresh` to re-fetch without invalidating.
		self.stateLock.Unlock()
		return
	}
	self.predicate = predicate
	generation := self.invalidateLocked()
	self.stateLock.Unlock()

	self.registry.Clear()
	self.setPhase(FetchLoading)
	go self.fetch(generation)
}

// a zero time clears the bound
func (self *FetchController) SetStartDate(startDate time.Time) {
	self.stateLock.Lock()
	if self.startDate.Equal(startDate) {
		// re-selecting the current bound keeps the window
		self.stateLock.Unlock()
		return
	}
	self.startDate = startDate
	generation := self.invalidateLocked()
	self.stateLock.Unlock()

	self.registry.Clear()
	self.setPhase(FetchLoading)
	go self.fetch(generation)
}

func (self *FetchController) invalidateLocked() uint64 {
	self.generation += 1
	self.pageNumber = 1
	self.pagination = nil
	return self.generation
}

// fetches another window for the current predicate.
// the registry is not invalidated, entries merge in.
func (self *FetchController) RequestPage(pageNumber int) {
	self.stateLock.Lock()
	self.pageNumber = pageNumber
	generation := self.generation
	self.stateLock.Unlock()

	self.setPhase(FetchLoading)
	go self.fetch(generation)
}

// the initial load for the current predicate
func (self *FetchController) Refresh() {
	self.stateLock.Lock()
	generation := self.generation
	self.stateLock.Unlock()

	self.setPhase(FetchLoading)
	go self.fetch(generation)
}

func (self *FetchController) fetch(generation uint64) {
	self.stateLock.Lock()
	self.requestId += 1
	requestId := self.requestId
	args := &ListActivitiesArgs{
		Predicate:  map[string]string{},
		PageNumber: self.pageNumber,
		PageSize:   self.settings.PageSize,
	}
	args.Predicate[string(self.predicate)] = "true"
	if !self.startDate.IsZero() {
		args.Predicate["startDate"] = self.startDate.UTC().Format(time.RFC3339)
	}
	self.stateLock.Unlock()

	result, err := self.api.ListActivitiesSync(args)

	viewerUsername := self.viewerUsername()

	self.stateLock.Lock()
	if generation != self.generation {
		// invalidated while in flight
		self.stateLock.Unlock()
		glog.Infof("[f]discard stale fetch (generation %d < %d)\n", generation, self.generation)
		return
	}
	latest := requestId == self.requestId
	if err != nil {
		if latest {
			self.lastErr = err
		}
		self.stateLock.Unlock()
		glog.Infof("[f]fetch error = %s\n", err)
		// the prior window state is preserved
		if latest {
			self.setPhase(FetchFailed)
		}
		return
	}
	if latest {
		self.lastErr = nil
		self.pagination = result.Pagination
	}
	self.stateLock.Unlock()

	// items merge in regardless. pagination metadata and phase belong to
	// the latest request only, so a slow older page cannot overwrite them.
	for _, activity := range result.Items {
		self.registry.Upsert(activity, viewerUsername)
	}
	glog.V(2).Infof("[f]landed %d items (generation %d)\n", len(result.Items), generation)
	if latest {
		self.setPhase(FetchLoaded)
	}
}

// serves from the registry when the id is cached. a cached entry is treated
// as sufficiently fresh, there is no expiry policy. otherwise fetches,
// upserts, and selects.
func (self *FetchController) LoadOne(activityId Id) (*Activity, error) {
	if activity, ok := self.registry.Get(activityId); ok {
		glog.V(2).Infof("[f]load one hit %s\n", activityId)
		self.setSelected(activityId)
		return activity, nil
	}

	activity, err := self.api.GetActivitySync(activityId)
	if err != nil {
		return nil, err
	}
	self.registry.Upsert(activity, self.viewerUsername())
	self.setSelected(activityId)
	return activity, nil
}

func (self *FetchController) setSelected(activityId Id) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.selectedId = activityId
}

func (self *FetchController) ClearSelected() {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.selectedId = Id{}
}

func (self *FetchController) Selected() (*Activity, bool) {
	self.stateLock.Lock()
	selectedId := self.selectedId
	self.stateLock.Unlock()

	if selectedId.IsZero() {
		return nil, false
	}
	return self.registry.Get(selectedId)
}

func (self *FetchController) SelectedId() Id {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.selectedId
}

func (self *FetchController) Phase() FetchPhase {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.phase
}

func (self *FetchController) LastError() error {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.lastErr
}

func (self *FetchController) Predicate() PredicateKey {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.predicate
}

func (self *FetchController) StartDate() time.Time {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.startDate
}

func (self *FetchController) PageNumber() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.pageNumber
}

func (self *FetchController) Pagination() *Pagination {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.pagination
}

package meetup

import (
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

// counts the timeout from creation, so that work done between
// creation and `After` is counted against the reconnect window
type Reconnect struct {
	timeout time.Duration
	start   time.Time
}

func NewReconnect(timeout time.Duration) *Reconnect {
	return &Reconnect{
		timeout: timeout,
		start:   time.Now(),
	}
}

func (self *Reconnect) After() <-chan time.Time {
	remaining := self.timeout - time.Now().Sub(self.start)
	if remaining <= 0 {
		out := make(chan time.Time, 1)
		out <- time.Now()
		return out
	}
	return time.After(remaining)
}

// makes a copy of the list on update
type CallbackList[T any] struct {
	mutex       sync.Mutex
	callbackIds []Id
	callbacks   []T
}

func NewCallbackList[T any]() *CallbackList[T] {
	return &CallbackList[T]{
		callbackIds: []Id{},
		callbacks:   []T{},
	}
}

func (self *CallbackList[T]) Get() []T {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	return self.callbacks
}

// returns a function to remove the callback
func (self *CallbackList[T]) Add(callback T) func() {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	callbackId := NewId()
	nextCallbackIds := slices.Clone(self.callbackIds)
	nextCallbacks := slices.Clone(self.callbacks)
	self.callbackIds = append(nextCallbackIds, callbackId)
	self.callbacks = append(nextCallbacks, callback)

	return func() {
		self.remove(callbackId)
	}
}

func (self *CallbackList[T]) remove(callbackId Id) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	i := slices.Index(self.callbackIds, callbackId)
	if i < 0 {
		// not present
		return
	}
	nextCallbackIds := slices.Clone(self.callbackIds)
	nextCallbacks := slices.Clone(self.callbacks)
	self.callbackIds = slices.Delete(nextCallbackIds, i, i+1)
	self.callbacks = slices.Delete(nextCallbacks, i, i+1)
}

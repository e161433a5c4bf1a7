package meetup

import (
	"sync"

	"github.com/golang/glog"

	"golang.org/x/exp/slices"
)

// ordered comment sequence for the active activity, oldest first.
// events are scoped to a connection attempt: a frame delivered by a
// superseded attempt is dropped instead of leaking into a stale store.
// appends deduplicate by comment id, since a reconnect may redeliver
// comments the store already holds.
type CommentStore struct {
	stateLock sync.Mutex

	activityId Id
	attemptId  Id
	seeded     bool

	comments []*Comment
	seen     map[Id]bool

	// live comments that arrived before the attempt's history seed.
	// flushed, in order, after the seed lands.
	pending []*Comment
}

func NewCommentStore() *CommentStore {
	return &CommentStore{
		comments: []*Comment{},
		seen:     map[Id]bool{},
		pending:  []*Comment{},
	}
}

// scopes the store to an activity. clears everything held for the prior
// activity so nothing leaks across.
func (self *CommentStore) reset(activityId Id) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.activityId = activityId
	self.attemptId = Id{}
	self.seeded = false
	self.comments = []*Comment{}
	self.seen = map[Id]bool{}
	self.pending = []*Comment{}
}

// marks a new connection attempt as current. the comment sequence is kept,
// the next seed replaces it wholesale.
// a channel that dialed for an activity the store has moved past must not
// re-mark the attempt, so the activity scope is checked before the write.
func (self *CommentStore) beginAttempt(activityId Id, attemptId Id) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if activityId != self.activityId {
		glog.Infof("[c]drop attempt for %s, store scoped to %s\n", activityId, self.activityId)
		return
	}
	self.attemptId = attemptId
	self.seeded = false
	self.pending = []*Comment{}
}

// replaces the comment sequence with the attempt's history.
// expected exactly once per successful connection.
func (self *CommentStore) seed(activityId Id, attemptId Id, comments []*Comment) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if activityId != self.activityId || attemptId != self.attemptId {
		glog.Infof("[c]drop stale seed %s\n", attemptId)
		return
	}

	self.comments = []*Comment{}
	self.seen = map[Id]bool{}
	for _, comment := range comments {
		normalizeComment(comment)
		self.appendLocked(comment)
	}
	self.seeded = true

	for _, comment := range self.pending {
		self.appendLocked(comment)
	}
	self.pending = []*Comment{}
}

func (self *CommentStore) append(activityId Id, attemptId Id, comment *Comment) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if activityId != self.activityId || attemptId != self.attemptId {
		glog.Infof("[c]drop stale comment %s\n", comment.Id)
		return
	}

	normalizeComment(comment)
	if !self.seeded {
		// history reflects before live updates
		self.pending = append(self.pending, comment)
		return
	}
	self.appendLocked(comment)
}

func (self *CommentStore) appendLocked(comment *Comment) {
	if self.seen[comment.Id] {
		glog.V(2).Infof("[c]duplicate comment %s\n", comment.Id)
		return
	}
	self.seen[comment.Id] = true
	self.comments = append(self.comments, comment)
}

func (self *CommentStore) Comments() []*Comment {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return slices.Clone(self.comments)
}

func (self *CommentStore) Len() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return len(self.comments)
}

func (self *CommentStore) ActivityId() Id {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.activityId
}

func (self *CommentStore) Clear() {
	self.reset(Id{})
}

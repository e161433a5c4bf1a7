package meetup

import (
	"sync"

	"github.com/golang/glog"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// normalized id-keyed cache of activities for the client session.
// all writes funnel through these operations so that the viewer-relative
// derived fields can never go stale.
type Registry struct {
	stateLock sync.Mutex

	activities map[Id]*Activity
}

func NewRegistry() *Registry {
	return &Registry{
		activities: map[Id]*Activity{},
	}
}

// computes derived fields against the viewer and writes the full entity,
// replacing any prior value at the same id.
// an empty viewer username means no derived relationship.
func (self *Registry) Upsert(activity *Activity, viewerUsername string) {
	derived := deriveViewerFields(activity, viewerUsername)
	activity.IsGoing = derived.IsGoing
	activity.IsHost = derived.IsHost
	activity.Host = derived.Host

	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.activities[activity.Id] = activity
	glog.V(2).Infof("[r]upsert %s\n", activity.Id)
}

// shallow-merges the update onto the existing entry.
// a no-op when the id is absent. merge never creates entries.
func (self *Registry) Merge(activityId Id, update *ActivityUpdate, viewerUsername string) *Activity {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	activity, ok := self.activities[activityId]
	if !ok {
		glog.V(2).Infof("[r]merge miss %s\n", activityId)
		return nil
	}
	update.applyTo(activity)
	derived := deriveViewerFields(activity, viewerUsername)
	activity.IsGoing = derived.IsGoing
	activity.IsHost = derived.IsHost
	activity.Host = derived.Host
	return activity
}

// recomputes the derived fields of every entry against the viewer.
// invoked when the signed-in viewer changes, so cached entries never keep
// the previous viewer's relationship.
func (self *Registry) RederiveAll(viewerUsername string) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	for _, activity := range self.activities {
		derived := deriveViewerFields(activity, viewerUsername)
		activity.IsGoing = derived.IsGoing
		activity.IsHost = derived.IsHost
		activity.Host = derived.Host
	}
	glog.V(2).Infof("[r]rederive %d entries\n", len(self.activities))
}

// removing an absent id is a no-op
func (self *Registry) Remove(activityId Id) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	delete(self.activities, activityId)
}

// propagates a follow/unfollow of `username` performed elsewhere into every
// cached activity. follow state is attendee-scoped, not activity-scoped, so
// the same attendee may appear under many activities at once.
// `following` flips and the follower count adjusts by one in the same write.
func (self *Registry) UpdateAttendeeAcrossAll(username string) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	for _, activity := range self.activities {
		for _, attendee := range activity.Attendees {
			if attendee.Username == username {
				if attendee.Following {
					attendee.FollowersCount -= 1
				} else {
					attendee.FollowersCount += 1
				}
				attendee.Following = !attendee.Following
			}
		}
	}
}

func (self *Registry) Get(activityId Id) (*Activity, bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	activity, ok := self.activities[activityId]
	return activity, ok
}

func (self *Registry) Len() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return len(self.activities)
}

func (self *Registry) Clear() {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	maps.Clear(self.activities)
}

type ActivityGroup struct {
	// yyyy-mm-dd
	Date       string
	Activities []*Activity
}

// the current window as an ordered-by-date grouping, for the ui layer
func (self *Registry) GroupedByDate() []*ActivityGroup {
	self.stateLock.Lock()
	activities := maps.Values(self.activities)
	self.stateLock.Unlock()

	slices.SortFunc(activities, func(a *Activity, b *Activity) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return slices.Compare(a.Id.Bytes(), b.Id.Bytes())
	})

	groups := []*ActivityGroup{}
	for _, activity := range activities {
		date := activity.Date.UTC().Format("2006-01-02")
		if 0 < len(groups) && groups[len(groups)-1].Date == date {
			group := groups[len(groups)-1]
			group.Activities = append(group.Activities, activity)
		} else {
			groups = append(groups, &ActivityGroup{
				Date:       date,
				Activities: []*Activity{activity},
			})
		}
	}
	return groups
}

package meetup

import (
	"context"
	"fmt"

	"github.com/golang/glog"

	"golang.org/x/exp/slices"
)

// applies local state changes for user actions and issues the matching
// server calls. depending on the mutation the local change lands before the
// call resolves (attendance), or only on confirmed success (the rest).
type Mutator struct {
	ctx    context.Context
	cancel context.CancelFunc

	api        *MeetupApi
	registry   *Registry
	controller *FetchController
	// the most recently known viewer, read at write time
	viewer func() *Viewer
}

func NewMutator(
	ctx context.Context,
	api *MeetupApi,
	registry *Registry,
	controller *FetchController,
	viewer func() *Viewer,
) *Mutator {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &Mutator{
		ctx:        cancelCtx,
		cancel:     cancel,
		api:        api,
		registry:   registry,
		controller: controller,
		viewer:     viewer,
	}
}

func (self *Mutator) Close() {
	self.cancel()
}

// server call first, since the server validates the form. on success the
// locally constructed entity is upserted with the viewer as host and sole
// attendee, and becomes the selected activity.
func (self *Mutator) Create(form *ActivityFormArgs) (*Activity, error) {
	viewer := self.viewer()
	if viewer == nil {
		return nil, fmt.Errorf("no signed-in viewer")
	}
	if form.Id.IsZero() {
		form.Id = NewId()
	}

	if _, err := self.api.CreateActivitySync(form); err != nil {
		return nil, err
	}

	activity := &Activity{
		Id:           form.Id,
		Title:        form.Title,
		Category:     form.Category,
		Description:  form.Description,
		Date:         form.Date.UTC(),
		City:         form.City,
		Venue:        form.Venue,
		HostUsername: viewer.Username,
		Attendees:    []*Profile{viewer.Profile()},
	}
	self.registry.Upsert(activity, viewer.Username)
	self.controller.setSelected(activity.Id)
	return activity, nil
}

// server call only. on success the registry entry is merged with the
// submitted changes, without a re-fetch, and the merged value becomes the
// selected activity.
func (self *Mutator) Update(activityId Id, update *ActivityUpdate) (*Activity, error) {
	updateActivity := &UpdateActivityArgs{
		ActivityId: activityId,
		Update:     update,
	}
	if _, err := self.api.UpdateActivitySync(updateActivity); err != nil {
		return nil, err
	}

	viewerUsername := ""
	if viewer := self.viewer(); viewer != nil {
		viewerUsername = viewer.Username
	}
	merged := self.registry.Merge(activityId, update, viewerUsername)
	if merged != nil {
		self.controller.setSelected(activityId)
	}
	return merged, nil
}

func (self *Mutator) Delete(activityId Id) error {
	if _, err := self.api.DeleteActivitySync(activityId); err != nil {
		return err
	}
	self.registry.Remove(activityId)
	return nil
}

// flips the viewer's attendance in the registry immediately, then fires the
// server call concurrently. a failed call reconciles by re-fetching the
// authoritative entity and upserting it, and surfaces the error through the
// callback.
func (self *Mutator) ToggleAttendance(activityId Id, callback UpdateAttendanceCallback) error {
	viewer := self.viewer()
	if viewer == nil {
		return fmt.Errorf("no signed-in viewer")
	}
	activity, ok := self.registry.Get(activityId)
	if !ok {
		return fmt.Errorf("activity %s is not cached", activityId)
	}

	next := *activity
	if activity.IsGoing {
		next.Attendees = slices.DeleteFunc(
			slices.Clone(activity.Attendees),
			func(attendee *Profile) bool {
				return attendee.Username == viewer.Username
			},
		)
	} else {
		next.Attendees = append(slices.Clone(activity.Attendees), viewer.Profile())
	}
	self.registry.Upsert(&next, viewer.Username)

	self.api.UpdateAttendance(activityId, NewApiCallback(func(result *UpdateAttendanceResult, err error) {
		if err != nil {
			glog.Infof("[m]attendance error %s = %s\n", activityId, err)
			self.reconcile(activityId)
		}
		callback.Result(result, err)
	}))
	return nil
}

// server call only. cancellation flips on confirmed success, and the
// updated entity is written back to the registry.
func (self *Mutator) ToggleCancelled(activityId Id) (*Activity, error) {
	activity, ok := self.registry.Get(activityId)
	if !ok {
		return nil, fmt.Errorf("activity %s is not cached", activityId)
	}

	if _, err := self.api.UpdateAttendanceSync(activityId); err != nil {
		return nil, err
	}

	viewerUsername := ""
	if viewer := self.viewer(); viewer != nil {
		viewerUsername = viewer.Username
	}
	next := *activity
	next.IsCancelled = !activity.IsCancelled
	self.registry.Upsert(&next, viewerUsername)
	return &next, nil
}

// replaces a locally mutated entry with the server's authoritative copy
func (self *Mutator) reconcile(activityId Id) {
	activity, err := self.api.GetActivitySync(activityId)
	if err != nil {
		glog.Infof("[m]reconcile error %s = %s\n", activityId, err)
		return
	}
	viewerUsername := ""
	if viewer := self.viewer(); viewer != nil {
		viewerUsername = viewer.Username
	}
	self.registry.Upsert(activity, viewerUsername)
}

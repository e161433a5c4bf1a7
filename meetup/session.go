package meetup

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/glog"
)

type SessionSettings struct {
	FetchSettings   *FetchControllerSettings
	ChannelSettings *CommentChannelSettings
}

func DefaultSessionSettings() *SessionSettings {
	return &SessionSettings{
		FetchSettings:   DefaultFetchControllerSettings(),
		ChannelSettings: DefaultCommentChannelSettings(),
	}
}

// the owned root of the client session. the registry and comment store are
// singletons within the session, mutated only through the session's
// components. the ui layer reads from here and dispatches intents here.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc

	api      *MeetupApi
	registry *Registry
	comments *CommentStore
	fetch    *FetchController
	mutate   *Mutator

	chatUrl  string
	settings *SessionSettings

	stateLock sync.Mutex
	viewer    *Viewer
	channel   *CommentChannel
}

func NewSessionWithDefaults(ctx context.Context, config *Config) *Session {
	settings := DefaultSessionSettings()
	settings.FetchSettings.PageSize = config.Conf.PageSize
	return NewSession(ctx, config.Conf.ApiUrl, config.Conf.ChatUrl, settings)
}

func NewSession(ctx context.Context, apiUrl string, chatUrl string, settings *SessionSettings) *Session {
	cancelCtx, cancel := context.WithCancel(ctx)

	session := &Session{
		ctx:      cancelCtx,
		cancel:   cancel,
		chatUrl:  chatUrl,
		settings: settings,
	}
	session.api = NewMeetupApiWithContext(cancelCtx, apiUrl)
	session.registry = NewRegistry()
	session.comments = NewCommentStore()
	session.fetch = NewFetchController(
		cancelCtx,
		session.api,
		session.registry,
		session.viewerUsername,
		settings.FetchSettings,
	)
	session.mutate = NewMutator(
		cancelCtx,
		session.api,
		session.registry,
		session.fetch,
		session.Viewer,
	)
	return session
}

// derived fields are a function of the viewer, so a viewer change
// recomputes them across every cached activity
func (self *Session) SetViewer(viewer *Viewer) {
	self.stateLock.Lock()
	self.viewer = viewer
	if viewer != nil {
		self.api.SetByJwt(viewer.Token)
	} else {
		self.api.SetByJwt("")
	}
	self.stateLock.Unlock()

	viewerUsername := ""
	if viewer != nil {
		viewerUsername = viewer.Username
	}
	self.registry.RederiveAll(viewerUsername)
}

func (self *Session) Viewer() *Viewer {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.viewer
}

func (self *Session) viewerUsername() string {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if self.viewer == nil {
		return ""
	}
	return self.viewer.Username
}

func (self *Session) Api() *MeetupApi {
	return self.api
}

func (self *Session) Registry() *Registry {
	return self.registry
}

func (self *Session) Comments() *CommentStore {
	return self.comments
}

func (self *Session) Fetch() *FetchController {
	return self.fetch
}

func (self *Session) Mutate() *Mutator {
	return self.mutate
}

func (self *Session) Channel() *CommentChannel {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.channel
}

// loads the activity (from the registry when cached), selects it, and
// scopes the comment channel to it. selecting a different activity tears
// down the prior channel and its comment sequence before the new one opens.
func (self *Session) SelectActivity(activityId Id) (*Activity, error) {
	activity, err := self.fetch.LoadOne(activityId)
	if err != nil {
		return nil, err
	}

	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if self.channel != nil {
		if self.channel.ActivityId() == activityId {
			return activity, nil
		}
		glog.V(2).Infof("[s]channel teardown %s\n", self.channel.ActivityId())
		self.channel.Close()
		self.channel = nil
	}

	auth := ""
	if self.viewer != nil {
		auth = self.viewer.Token
	}
	// the channel resets the comment store to the new activity,
	// which also invalidates any in-flight frames of the old one
	self.channel = NewCommentChannel(
		self.ctx,
		self.chatUrl,
		activityId,
		auth,
		self.comments,
		self.settings.ChannelSettings,
	)
	return activity, nil
}

// tears down the channel and clears the comment sequence on every exit path
func (self *Session) DeselectActivity() {
	self.stateLock.Lock()
	channel := self.channel
	self.channel = nil
	self.stateLock.Unlock()

	if channel != nil {
		channel.Close()
	}
	self.comments.Clear()
	self.fetch.ClearSelected()
}

func (self *Session) SendComment(body string) error {
	self.stateLock.Lock()
	channel := self.channel
	self.stateLock.Unlock()

	if channel == nil {
		return fmt.Errorf("no activity selected")
	}
	return channel.SendComment(body)
}

// domain event: the viewer followed or unfollowed `username` elsewhere in
// the system. propagates into every cached activity's attendee list.
func (self *Session) UpdateAttendeeFollowing(username string) {
	self.registry.UpdateAttendeeAcrossAll(username)
}

func (self *Session) Close() {
	self.cancel()

	self.stateLock.Lock()
	channel := self.channel
	self.channel = nil
	self.stateLock.Unlock()

	if channel != nil {
		channel.Close()
	}
	self.mutate.Close()
	self.fetch.Close()
	self.api.Close()
}

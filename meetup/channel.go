package meetup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

const ChannelSendBufferSize = 8

type ChannelState int

const (
	ChannelDisconnected ChannelState = iota
	ChannelConnecting
	ChannelConnected
	ChannelReconnecting
)

func (self ChannelState) String() string {
	switch self {
	case ChannelDisconnected:
		return "disconnected"
	case ChannelConnecting:
		return "connecting"
	case ChannelConnected:
		return "connected"
	case ChannelReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

const frameLoadComments = "LoadComments"
const frameReceiveComment = "ReceiveComment"
const frameSendComment = "SendComment"

type channelFrame struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body,omitempty"`
}

type sendCommentArgs struct {
	ActivityId Id     `json:"activityId"`
	Body       string `json:"body"`
}

type CommentChannelSettings struct {
	WsHandshakeTimeout time.Duration
	ReconnectTimeout   time.Duration
	PingTimeout        time.Duration
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration
}

func DefaultCommentChannelSettings() *CommentChannelSettings {
	return &CommentChannelSettings{
		WsHandshakeTimeout: 2 * time.Second,
		ReconnectTimeout:   5 * time.Second,
		PingTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		ReadTimeout:        15 * time.Second,
	}
}

// one logical connection scoped to one activity. the server seeds history
// with a LoadComments frame after connect, then pushes ReceiveComment frames.
// posted comments are not echoed locally. the author's own comment becomes
// visible when the server rebroadcasts it.
type CommentChannel struct {
	ctx    context.Context
	cancel context.CancelFunc

	chatUrl    string
	activityId Id
	auth       string

	store *CommentStore

	settings *CommentChannelSettings

	send chan []byte

	stateLock sync.Mutex
	state     ChannelState

	stateMonitor *CallbackList[func(ChannelState)]
}

func NewCommentChannelWithDefaults(
	ctx context.Context,
	chatUrl string,
	activityId Id,
	auth string,
	store *CommentStore,
) *CommentChannel {
	return NewCommentChannel(ctx, chatUrl, activityId, auth, store, DefaultCommentChannelSettings())
}

func NewCommentChannel(
	ctx context.Context,
	chatUrl string,
	activityId Id,
	auth string,
	store *CommentStore,
	settings *CommentChannelSettings,
) *CommentChannel {
	cancelCtx, cancel := context.WithCancel(ctx)
	channel := &CommentChannel{
		ctx:          cancelCtx,
		cancel:       cancel,
		chatUrl:      chatUrl,
		activityId:   activityId,
		auth:         auth,
		store:        store,
		settings:     settings,
		send:         make(chan []byte, ChannelSendBufferSize),
		state:        ChannelDisconnected,
		stateMonitor: NewCallbackList[func(ChannelState)](),
	}
	store.reset(activityId)
	go channel.run()
	return channel
}

func (self *CommentChannel) ActivityId() Id {
	return self.activityId
}

func (self *CommentChannel) State() ChannelState {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.state
}

// returns a function to remove the listener
func (self *CommentChannel) AddStateListener(listener func(ChannelState)) func() {
	return self.stateMonitor.Add(listener)
}

func (self *CommentChannel) setState(state ChannelState) {
	self.stateLock.Lock()
	changed := self.state != state
	self.state = state
	self.stateLock.Unlock()

	if changed {
		for _, listener := range self.stateMonitor.Get() {
			listener(state)
		}
	}
}

func (self *CommentChannel) run() {
	defer func() {
		self.cancel()
		self.setState(ChannelDisconnected)
	}()

	url := fmt.Sprintf("%s?activityId=%s", self.chatUrl, self.activityId)

	first := true
	for {
		if first {
			self.setState(ChannelConnecting)
		} else {
			self.setState(ChannelReconnecting)
		}

		reconnect := NewReconnect(self.settings.ReconnectTimeout)
		connect := func() (*websocket.Conn, error) {
			dialer := &websocket.Dialer{
				HandshakeTimeout: self.settings.WsHandshakeTimeout,
			}
			header := http.Header{}
			header.Add("Authorization", fmt.Sprintf("Bearer %s", self.auth))
			ws, _, err := dialer.DialContext(self.ctx, url, header)
			return ws, err
		}

		var ws *websocket.Conn
		var err error
		if glog.V(2) {
			ws, err = TraceWithReturnError(fmt.Sprintf("[c]connect %s", self.activityId), connect)
		} else {
			ws, err = connect()
		}
		if err != nil {
			glog.Infof("[c]connect error %s = %s\n", self.activityId, err)
			first = false
			select {
			case <-self.ctx.Done():
				return
			case <-reconnect.After():
				continue
			}
		}

		// events from this connection are scoped to this activity and
		// attempt. a frame from a superseded attempt, or from a channel
		// whose store has moved to another activity, never lands.
		attemptId := NewId()
		self.store.beginAttempt(self.activityId, attemptId)
		self.setState(ChannelConnected)

		c := func() {
			defer ws.Close()

			handleCtx, handleCancel := context.WithCancel(self.ctx)
			defer handleCancel()

			go func() {
				defer handleCancel()

				for {
					select {
					case <-handleCtx.Done():
						return
					case message, ok := <-self.send:
						if !ok {
							return
						}

						ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
						if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
							glog.Infof("[cs]%s-> error = %s\n", self.activityId, err)
							return
						}
						glog.V(2).Infof("[cs]%s->\n", self.activityId)
					case <-time.After(self.settings.PingTimeout):
						ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
						if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
							return
						}
					}
				}
			}()

			go func() {
				defer handleCancel()

				ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
				ws.SetPongHandler(func(string) error {
					ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
					return nil
				})

				for {
					select {
					case <-handleCtx.Done():
						return
					default:
					}

					messageType, message, err := ws.ReadMessage()
					if err != nil {
						glog.Infof("[cr]%s<- error = %s\n", self.activityId, err)
						return
					}
					ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))

					switch messageType {
					case websocket.TextMessage, websocket.BinaryMessage:
						self.handleFrame(attemptId, message)
					}
				}
			}()

			select {
			case <-handleCtx.Done():
			}
		}
		if glog.V(2) {
			Trace(fmt.Sprintf("[c]connect run %s", self.activityId), c)
		} else {
			c()
		}
		first = false
		select {
		case <-self.ctx.Done():
			return
		case <-reconnect.After():
		}
	}
}

func (self *CommentChannel) handleFrame(attemptId Id, message []byte) {
	frame := &channelFrame{}
	if err := json.Unmarshal(message, frame); err != nil {
		glog.Infof("[cr]%s<- bad frame = %s\n", self.activityId, err)
		return
	}

	switch frame.Type {
	case frameLoadComments:
		comments := []*Comment{}
		if err := json.Unmarshal(frame.Body, &comments); err != nil {
			glog.Infof("[cr]%s<- bad %s = %s\n", self.activityId, frame.Type, err)
			return
		}
		glog.V(2).Infof("[cr]%s<- %s n=%d\n", self.activityId, frame.Type, len(comments))
		self.store.seed(self.activityId, attemptId, comments)
	case frameReceiveComment:
		comment := &Comment{}
		if err := json.Unmarshal(frame.Body, comment); err != nil {
			glog.Infof("[cr]%s<- bad %s = %s\n", self.activityId, frame.Type, err)
			return
		}
		glog.V(2).Infof("[cr]%s<- %s %s\n", self.activityId, frame.Type, comment.Id)
		self.store.append(self.activityId, attemptId, comment)
	default:
		glog.V(2).Infof("[cr]%s<- other=%s\n", self.activityId, frame.Type)
	}
}

// queues a comment for the server. there is no local echo.
func (self *CommentChannel) SendComment(body string) error {
	args := &sendCommentArgs{
		ActivityId: self.activityId,
		Body:       body,
	}
	argsBytes, err := json.Marshal(args)
	if err != nil {
		return err
	}
	frameBytes, err := json.Marshal(&channelFrame{
		Type: frameSendComment,
		Body: argsBytes,
	})
	if err != nil {
		return err
	}

	select {
	case <-self.ctx.Done():
		return errors.New("channel closed")
	case self.send <- frameBytes:
		return nil
	}
}

// the connection may stay briefly alive to drain in-flight frames, but the
// attempt scoping means nothing further lands after the store moves on.
func (self *CommentChannel) Close() {
	self.cancel()
}

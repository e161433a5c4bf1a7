package meetup

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/gorilla/websocket"

	"golang.org/x/exp/slices"
)

type testChatConn struct {
	ws        *websocket.Conn
	writeLock sync.Mutex
}

func (self *testChatConn) writeFrame(frameType string, body any) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return err
	}
	frameBytes, err := json.Marshal(&channelFrame{
		Type: frameType,
		Body: bodyBytes,
	})
	if err != nil {
		return err
	}

	self.writeLock.Lock()
	defer self.writeLock.Unlock()

	return self.ws.WriteMessage(websocket.TextMessage, frameBytes)
}

// comment channel endpoint for tests. seeds each connection with the
// activity's history and rebroadcasts received comments.
type testChatServer struct {
	stateLock sync.Mutex

	history map[Id][]*Comment
	// sent before the seed, to exercise the history-first ordering
	liveFirst map[Id][]*Comment

	conn      *testChatConn
	connCount int

	received chan *sendCommentArgs

	server *httptest.Server
}

func newTestChatServer() *testChatServer {
	self := &testChatServer{
		history:   map[Id][]*Comment{},
		liveFirst: map[Id][]*Comment{},
		received:  make(chan *sendCommentArgs, 16),
	}

	upgrader := websocket.Upgrader{}
	self.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		activityId, err := ParseId(r.URL.Query().Get("activityId"))
		if err != nil {
			http.Error(w, "bad activityId", http.StatusBadRequest)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := &testChatConn{ws: ws}

		self.stateLock.Lock()
		self.conn = conn
		self.connCount += 1
		history := slices.Clone(self.history[activityId])
		liveFirst := slices.Clone(self.liveFirst[activityId])
		self.stateLock.Unlock()

		for _, comment := range liveFirst {
			conn.writeFrame(frameReceiveComment, comment)
		}
		if history == nil {
			history = []*Comment{}
		}
		conn.writeFrame(frameLoadComments, history)

		for {
			_, message, err := ws.ReadMessage()
			if err != nil {
				return
			}
			frame := &channelFrame{}
			if err := json.Unmarshal(message, frame); err != nil {
				continue
			}
			if frame.Type == frameSendComment {
				args := &sendCommentArgs{}
				if err := json.Unmarshal(frame.Body, args); err != nil {
					continue
				}
				self.received <- args
				conn.writeFrame(frameReceiveComment, &Comment{
					Id:          NewId(),
					Body:        args.Body,
					Username:    "alice",
					DisplayName: "Alice",
					CreatedAt:   time.Now(),
				})
			}
		}
	}))
	return self
}

func (self *testChatServer) Close() {
	self.server.Close()
}

func (self *testChatServer) Url() string {
	return "ws" + strings.TrimPrefix(self.server.URL, "http")
}

func (self *testChatServer) setHistory(activityId Id, comments []*Comment) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.history[activityId] = comments
}

func (self *testChatServer) setLiveFirst(activityId Id, comments []*Comment) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.liveFirst[activityId] = comments
}

func (self *testChatServer) push(comment *Comment) error {
	self.stateLock.Lock()
	conn := self.conn
	self.stateLock.Unlock()

	return conn.writeFrame(frameReceiveComment, comment)
}

func (self *testChatServer) dropCurrent() {
	self.stateLock.Lock()
	conn := self.conn
	self.stateLock.Unlock()

	conn.ws.Close()
}

func (self *testChatServer) connections() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.connCount
}

func testChannelSettings() *CommentChannelSettings {
	settings := DefaultCommentChannelSettings()
	settings.ReconnectTimeout = 100 * time.Millisecond
	return settings
}

func TestChannelSeedAndReceive(t *testing.T) {
	server := newTestChatServer()
	defer server.Close()

	activityId := NewId()
	c1 := testComment("alice", "first")
	c2 := testComment("bob", "second")
	server.setHistory(activityId, []*Comment{c1, c2})

	store := NewCommentStore()
	channel := NewCommentChannel(
		context.Background(),
		server.Url(),
		activityId,
		"test-jwt",
		store,
		testChannelSettings(),
	)
	defer channel.Close()

	waitFor(t, 2*time.Second, func() bool {
		return store.Len() == 2
	})
	assert.Equal(t, channel.State(), ChannelConnected)

	c3 := testComment("carol", "third")
	err := server.push(c3)
	assert.Equal(t, err, nil)
	waitFor(t, 2*time.Second, func() bool {
		return store.Len() == 3
	})

	comments := store.Comments()
	assert.Equal(t, comments[0].Id, c1.Id)
	assert.Equal(t, comments[1].Id, c2.Id)
	assert.Equal(t, comments[2].Id, c3.Id)
}

func TestChannelLiveBeforeSeed(t *testing.T) {
	server := newTestChatServer()
	defer server.Close()

	activityId := NewId()
	c1 := testComment("alice", "history 1")
	c2 := testComment("bob", "history 2")
	c3 := testComment("carol", "live")
	server.setHistory(activityId, []*Comment{c1, c2})
	server.setLiveFirst(activityId, []*Comment{c3})

	store := NewCommentStore()
	channel := NewCommentChannel(
		context.Background(),
		server.Url(),
		activityId,
		"test-jwt",
		store,
		testChannelSettings(),
	)
	defer channel.Close()

	waitFor(t, 2*time.Second, func() bool {
		return store.Len() == 3
	})

	// the seed is applied before live comments from the same attempt
	comments := store.Comments()
	assert.Equal(t, comments[0].Id, c1.Id)
	assert.Equal(t, comments[1].Id, c2.Id)
	assert.Equal(t, comments[2].Id, c3.Id)
}

func TestChannelSendComment(t *testing.T) {
	server := newTestChatServer()
	defer server.Close()

	activityId := NewId()

	store := NewCommentStore()
	channel := NewCommentChannel(
		context.Background(),
		server.Url(),
		activityId,
		"test-jwt",
		store,
		testChannelSettings(),
	)
	defer channel.Close()

	waitFor(t, 2*time.Second, func() bool {
		return channel.State() == ChannelConnected
	})

	err := channel.SendComment("hello there")
	assert.Equal(t, err, nil)

	args := <-server.received
	assert.Equal(t, args.ActivityId, activityId)
	assert.Equal(t, args.Body, "hello there")

	// no local echo. the comment appears when the server rebroadcasts it
	waitFor(t, 2*time.Second, func() bool {
		return store.Len() == 1
	})
	assert.Equal(t, store.Comments()[0].Body, "hello there")
}

func TestChannelReconnect(t *testing.T) {
	server := newTestChatServer()
	defer server.Close()

	activityId := NewId()
	c1 := testComment("alice", "history")
	server.setHistory(activityId, []*Comment{c1})

	store := NewCommentStore()
	channel := NewCommentChannel(
		context.Background(),
		server.Url(),
		activityId,
		"test-jwt",
		store,
		testChannelSettings(),
	)
	defer channel.Close()

	states := make(chan ChannelState, 16)
	remove := channel.AddStateListener(func(state ChannelState) {
		states <- state
	})
	defer remove()

	waitFor(t, 2*time.Second, func() bool {
		return store.Len() == 1
	})

	server.dropCurrent()
	waitFor(t, 5*time.Second, func() bool {
		return 2 <= server.connections()
	})
	waitFor(t, 2*time.Second, func() bool {
		return channel.State() == ChannelConnected
	})

	// the drop surfaced as a reconnect, not a teardown
	sawReconnecting := false
	drained := false
	for !drained {
		select {
		case state := <-states:
			if state == ChannelReconnecting {
				sawReconnecting = true
			}
		default:
			drained = true
		}
	}
	assert.Equal(t, sawReconnecting, true)

	// the fresh attempt reseeded history
	assert.Equal(t, store.Len(), 1)
	assert.Equal(t, store.Comments()[0].Id, c1.Id)
}

func TestChannelCloseStopsDelivery(t *testing.T) {
	server := newTestChatServer()
	defer server.Close()

	activityId := NewId()
	server.setHistory(activityId, []*Comment{testComment("alice", "history")})

	store := NewCommentStore()
	channel := NewCommentChannel(
		context.Background(),
		server.Url(),
		activityId,
		"test-jwt",
		store,
		testChannelSettings(),
	)

	waitFor(t, 2*time.Second, func() bool {
		return store.Len() == 1
	})

	channel.Close()
	waitFor(t, 2*time.Second, func() bool {
		return channel.State() == ChannelDisconnected
	})

	err := channel.SendComment("too late")
	assert.NotEqual(t, err, nil)
}

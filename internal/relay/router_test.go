package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"employee-chat-backend/internal/model"
	"employee-chat-backend/internal/push"
)

// fakeStore is an in-memory stand-in for the relational store.
type fakeStore struct {
	members    map[int64][]int64 // groupID -> employeeIDs
	persistErr error
	memberErr  error
	messages   []*model.Message
	nextID     int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{members: make(map[int64][]int64)}
}

func (s *fakeStore) PersistMessage(_ context.Context, groupID, senderID int64, content string) (*model.Message, error) {
	if s.persistErr != nil {
		return nil, s.persistErr
	}
	s.nextID++
	msg := &model.Message{
		ID:        s.nextID,
		GroupID:   groupID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now(),
	}
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *fakeStore) GroupMemberIDs(_ context.Context, groupID int64) ([]int64, error) {
	return s.members[groupID], nil
}

func (s *fakeStore) IsGroupMember(_ context.Context, groupID, employeeID int64) (bool, error) {
	if s.memberErr != nil {
		return false, s.memberErr
	}
	for _, id := range s.members[groupID] {
		if id == employeeID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) UpsertSubscription(context.Context, *model.PushSubscription) error {
	return nil
}

func (s *fakeStore) DeleteSubscription(context.Context, int64, string) error {
	return nil
}

func (s *fakeStore) SubscriptionsForEmployee(context.Context, int64) ([]model.PushSubscription, error) {
	return nil, nil
}

func (s *fakeStore) SubscriptionsFor(context.Context, []int64) ([]model.PushSubscription, error) {
	return nil, nil
}

// fakeDispatcher records group dispatch requests.
type fakeDispatcher struct {
	calls []dispatchCall
}

type dispatchCall struct {
	groupID int64
	exclude int64
	payload push.Payload
}

func (d *fakeDispatcher) DispatchGroup(groupID, excludeEmployeeID int64, payload push.Payload) {
	d.calls = append(d.calls, dispatchCall{groupID: groupID, exclude: excludeEmployeeID, payload: payload})
}

type routerFixture struct {
	router     *Router
	registry   *Registry
	store      *fakeStore
	dispatcher *fakeDispatcher
}

func newRouterFixture() *routerFixture {
	reg := NewRegistry()
	st := newFakeStore()
	d := &fakeDispatcher{}
	return &routerFixture{
		router:     NewRouter(reg, st, d, testRelayConfig()),
		registry:   reg,
		store:      st,
		dispatcher: d,
	}
}

// connect registers an authenticated client joined to the given groups.
func (f *routerFixture) connect(t *testing.T, employeeID int64, groupIDs ...int64) *Client {
	t.Helper()
	c := newTestClient(employeeID)
	f.registry.Register(c)
	f.send(t, c, inboundFrame{Type: frameAuth, UserID: employeeID, GroupIDs: groupIDs})
	return c
}

func (f *routerFixture) send(t *testing.T, c *Client, frame inboundFrame) {
	t.Helper()
	raw, err := json.Marshal(frame)
	require.NoError(t, err)
	f.router.HandleFrame(context.Background(), c, raw)
}

// recvFrame pops one queued outbound frame, or fails the test if none is
// waiting.
func recvFrame(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case raw := <-c.send:
		var frame map[string]any
		require.NoError(t, json.Unmarshal(raw, &frame))
		return frame
	default:
		t.Fatal("expected a queued frame, got none")
		return nil
	}
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("expected no queued frame, got %s", raw)
	default:
	}
}

func TestRouter_PingPong(t *testing.T) {
	f := newRouterFixture()
	c := newTestClient(0)
	f.registry.Register(c)

	f.send(t, c, inboundFrame{Type: framePing})
	assert.Equal(t, "pong", recvFrame(t, c)["type"])
}

func TestRouter_MalformedAndUnknownFramesAreIgnored(t *testing.T) {
	f := newRouterFixture()
	c := newTestClient(0)
	f.registry.Register(c)

	f.router.HandleFrame(context.Background(), c, []byte(`{not json`))
	f.send(t, c, inboundFrame{Type: "selfdestruct"})

	// The connection stays registered and quiet.
	assert.Equal(t, 1, f.registry.Count())
	assertNoFrame(t, c)
}

func TestRouter_AuthIdentityMismatch(t *testing.T) {
	f := newRouterFixture()
	c := newTestClient(1)
	f.registry.Register(c)

	f.send(t, c, inboundFrame{Type: frameAuth, UserID: 2})

	frame := recvFrame(t, c)
	assert.Equal(t, "error", frame["type"])
	_, ok := f.registry.EmployeeID(c.ID)
	assert.False(t, ok)
}

func TestRouter_AuthPreSeedsOnlyMemberGroups(t *testing.T) {
	f := newRouterFixture()
	f.store.members[42] = []int64{1}

	c := f.connect(t, 1, 42, 99) // not a member of 99
	assertNoFrame(t, c)

	assert.Len(t, f.registry.MembersOf(42), 1)
	assert.Empty(t, f.registry.MembersOf(99))
}

func TestRouter_JoinRequiresMembership(t *testing.T) {
	f := newRouterFixture()
	f.store.members[42] = []int64{1}

	c := f.connect(t, 1)
	f.send(t, c, inboundFrame{Type: frameJoin, GroupID: 7})

	frame := recvFrame(t, c)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, "access denied", frame["message"])
	assert.Empty(t, f.registry.MembersOf(7))

	f.send(t, c, inboundFrame{Type: frameJoin, GroupID: 42})
	assertNoFrame(t, c)
	assert.Len(t, f.registry.MembersOf(42), 1)
}

func TestRouter_MessageRequiresAuthentication(t *testing.T) {
	f := newRouterFixture()
	c := newTestClient(1)
	f.registry.Register(c)

	f.send(t, c, inboundFrame{Type: frameMessage, GroupID: 42, Message: "hi"})

	assert.Equal(t, "error", recvFrame(t, c)["type"])
	assert.Empty(t, f.store.messages)
	assert.Empty(t, f.dispatcher.calls)
}

func TestRouter_MessageRejectsEmptyContent(t *testing.T) {
	f := newRouterFixture()
	f.store.members[42] = []int64{1}
	c := f.connect(t, 1, 42)

	f.send(t, c, inboundFrame{Type: frameMessage, GroupID: 42, Message: "   \n\t "})

	frame := recvFrame(t, c)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, "message is empty", frame["message"])
	assert.Empty(t, f.store.messages)
}

func TestRouter_MessageFromNonMemberIsDenied(t *testing.T) {
	f := newRouterFixture()
	f.store.members[42] = []int64{1, 2}
	member := f.connect(t, 1, 42)

	// Employee 3 is connected and socket-joined nothing, and is not a store
	// member of 42.
	outsider := f.connect(t, 3)
	f.send(t, outsider, inboundFrame{Type: frameMessage, GroupID: 42, Message: "let me in"})

	frame := recvFrame(t, outsider)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, "access denied", frame["message"])

	assert.Empty(t, f.store.messages)
	assert.Empty(t, f.dispatcher.calls)
	assertNoFrame(t, member)
}

func TestRouter_MessagePersistenceFailureAbortsEverything(t *testing.T) {
	f := newRouterFixture()
	f.store.members[42] = []int64{1, 2}
	f.store.persistErr = errors.New("database is down")

	sender := f.connect(t, 1, 42)
	receiver := f.connect(t, 2, 42)

	f.send(t, sender, inboundFrame{Type: frameMessage, GroupID: 42, Message: "hello"})

	assert.Equal(t, "error", recvFrame(t, sender)["type"])
	assertNoFrame(t, receiver)
	assert.Empty(t, f.dispatcher.calls)
}

func TestRouter_MessageFanOut(t *testing.T) {
	f := newRouterFixture()
	f.store.members[42] = []int64{1, 2, 3}
	f.store.members[7] = []int64{4}

	sender := f.connect(t, 1, 42)
	receiver := f.connect(t, 2, 42)
	otherGroup := f.connect(t, 4, 7)

	f.send(t, sender, inboundFrame{Type: frameMessage, GroupID: 42, Message: "hello"})

	// The sender gets only the ack with the persisted id, no echo broadcast.
	ack := recvFrame(t, sender)
	assert.Equal(t, "ack", ack["type"])
	assert.Equal(t, float64(1), ack["messageId"])
	assert.Equal(t, float64(42), ack["groupId"])
	assertNoFrame(t, sender)

	msg := recvFrame(t, receiver)
	assert.Equal(t, "message", msg["type"])
	assert.Equal(t, "hello", msg["message"])
	assert.Equal(t, float64(42), msg["groupId"])
	assert.Equal(t, float64(1), msg["userId"])
	assert.NotZero(t, msg["timestamp"])

	assertNoFrame(t, otherGroup)

	// Push dispatch covers disconnected members, excluding the sender.
	require.Len(t, f.dispatcher.calls, 1)
	call := f.dispatcher.calls[0]
	assert.Equal(t, int64(42), call.groupID)
	assert.Equal(t, int64(1), call.exclude)
	assert.Equal(t, int64(42), call.payload.Data["groupId"])
}

func TestRouter_RevokedMemberStopsReceivingBroadcasts(t *testing.T) {
	f := newRouterFixture()
	f.store.members[42] = []int64{1, 2}

	sender := f.connect(t, 1, 42)
	revoked := f.connect(t, 2, 42)

	// Employee 2 is removed from the group after joining the socket room.
	f.store.members[42] = []int64{1}

	f.send(t, sender, inboundFrame{Type: frameMessage, GroupID: 42, Message: "secret"})

	assert.Equal(t, "ack", recvFrame(t, sender)["type"])
	assertNoFrame(t, revoked)
}

func TestRouter_SlowConsumerIsDisconnected(t *testing.T) {
	f := newRouterFixture()
	f.store.members[42] = []int64{1, 2}

	sender := f.connect(t, 1, 42)
	slow := f.connect(t, 2, 42)

	// Fill the slow consumer's queue to the brim.
	for i := 0; i < cap(slow.send); i++ {
		require.True(t, slow.enqueue([]byte("x")))
	}

	f.send(t, sender, inboundFrame{Type: frameMessage, GroupID: 42, Message: "hello"})

	// The slow peer was force-unregistered; the sender is unaffected.
	assert.Equal(t, 1, f.registry.Count())
	assert.Equal(t, "ack", recvFrame(t, sender)["type"])
}

func TestRouter_TypingRelay(t *testing.T) {
	f := newRouterFixture()
	f.store.members[42] = []int64{1, 2}

	typist := f.connect(t, 1, 42)
	watcher := f.connect(t, 2, 42)

	f.send(t, typist, inboundFrame{Type: frameTyping, GroupID: 42, IsTyping: true})

	frame := recvFrame(t, watcher)
	assert.Equal(t, "typing", frame["type"])
	assert.Equal(t, float64(1), frame["userId"])
	assert.Equal(t, true, frame["isTyping"])

	// Typing is never persisted and never pushed.
	assertNoFrame(t, typist)
	assert.Empty(t, f.store.messages)
	assert.Empty(t, f.dispatcher.calls)
}

func TestRouter_TypingFromNonMemberIsDenied(t *testing.T) {
	f := newRouterFixture()
	f.store.members[42] = []int64{2}
	watcher := f.connect(t, 2, 42)

	outsider := f.connect(t, 9)
	f.send(t, outsider, inboundFrame{Type: frameTyping, GroupID: 42, IsTyping: true})

	assert.Equal(t, "error", recvFrame(t, outsider)["type"])
	assertNoFrame(t, watcher)
}

func TestRouter_BroadcastRacesUnregister(t *testing.T) {
	f := newRouterFixture()

	ids := make([]int64, 0, 9)
	for i := int64(1); i <= 9; i++ {
		ids = append(ids, i)
	}
	f.store.members[42] = ids

	sender := f.connect(t, 1, 42)
	receivers := make([]*Client, 0, 8)
	for i := int64(2); i <= 9; i++ {
		receivers = append(receivers, f.connect(t, i, 42))
	}

	// Keep the sender's own queue from filling with acks while it floods the
	// room.
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for range sender.send {
		}
	}()

	raw, err := json.Marshal(inboundFrame{Type: frameMessage, GroupID: 42, Message: "hi"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			f.router.HandleFrame(context.Background(), sender, raw)
		}
	}()
	for _, r := range receivers {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			f.registry.Unregister(c.ID)
		}(r)
	}
	wg.Wait()

	// Every receiver is gone (whether unregistered here or force-closed as a
	// slow consumer) and enqueues on their queues fail cleanly.
	for _, r := range receivers {
		assert.False(t, r.enqueue([]byte("x")))
	}

	f.registry.Unregister(sender.ID)
	<-drained
	assert.Equal(t, 0, f.registry.Count())
}

func TestRouter_TypingStoreErrorIsNotAccessDenied(t *testing.T) {
	f := newRouterFixture()
	f.store.members[42] = []int64{1, 2}

	typist := f.connect(t, 1, 42)
	watcher := f.connect(t, 2, 42)

	f.store.memberErr = errors.New("database is down")
	f.send(t, typist, inboundFrame{Type: frameTyping, GroupID: 42, IsTyping: true})

	frame := recvFrame(t, typist)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, "typing relay failed", frame["message"])
	assertNoFrame(t, watcher)
}

func TestRouter_LeaveStopsBroadcasts(t *testing.T) {
	f := newRouterFixture()
	f.store.members[42] = []int64{1, 2}

	sender := f.connect(t, 1, 42)
	leaver := f.connect(t, 2, 42)

	f.send(t, leaver, inboundFrame{Type: frameLeave, GroupID: 42})
	f.send(t, sender, inboundFrame{Type: frameMessage, GroupID: 42, Message: "anyone here?"})

	assert.Equal(t, "ack", recvFrame(t, sender)["type"])
	assertNoFrame(t, leaver)
}

package push

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"employee-chat-backend/internal/model"
	"employee-chat-backend/internal/store"
)

// Sender defines the interface for delivering one web push notification.
type Sender interface {
	Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is the real implementation of Sender using the webpush library.
type WebPushSender struct{}

// Send delivers a notification using the webpush library.
func (s *WebPushSender) Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotificationWithContext(ctx, payload, sub, options)
}

// deliveryOutcome classifies a single delivery attempt. These are the only
// three outcomes the dispatcher distinguishes.
type deliveryOutcome int

const (
	outcomeDelivered deliveryOutcome = iota
	outcomeTransient
	outcomeGone
)

// job is one group-wide dispatch request handed to the worker pool.
type job struct {
	groupID          int64
	excludeEmployeeID int64
	payload          Payload
}

// Dispatcher fans push notifications out to the subscriptions of a set of
// employees. Group dispatches are queued onto a worker pool so the caller's
// response path never waits on provider I/O.
type Dispatcher struct {
	size    int
	jobs    chan job
	store   store.Store
	options *webpush.Options
	sender  Sender
	timeout time.Duration
}

// NewDispatcher creates a dispatcher backed by a pool of `size` workers.
func NewDispatcher(size, queueSize int, st store.Store, options *webpush.Options, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		size:    size,
		jobs:    make(chan job, queueSize),
		store:   st,
		options: options,
		sender:  &WebPushSender{},
		timeout: timeout,
	}
}

// SetSender swaps the delivery implementation. Used by tests.
func (d *Dispatcher) SetSender(s Sender) {
	d.sender = s
}

// Start launches the worker goroutines.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.size; i++ {
		go d.worker(ctx, i)
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	log.Printf("push worker %d started", id)
	for {
		select {
		case j := <-d.jobs:
			d.sendToGroupMembers(ctx, j)
		case <-ctx.Done():
			log.Printf("push worker %d shutting down", id)
			return
		}
	}
}

// DispatchGroup queues a notification for every member of the group except
// the excluded employee. It never blocks: if the queue is full the job is
// dropped with a log line, consistent with best-effort delivery.
func (d *Dispatcher) DispatchGroup(groupID, excludeEmployeeID int64, payload Payload) {
	select {
	case d.jobs <- job{groupID: groupID, excludeEmployeeID: excludeEmployeeID, payload: payload}:
	default:
		log.Printf("push queue full, dropping dispatch for group %d", groupID)
	}
}

// SendToEmployee delivers the payload to every subscription the employee
// owns. Returns true if at least one delivery succeeded.
func (d *Dispatcher) SendToEmployee(ctx context.Context, employeeID int64, payload Payload) bool {
	subs, err := d.store.SubscriptionsForEmployee(ctx, employeeID)
	if err != nil {
		log.Printf("error fetching subscriptions for employee %d: %v", employeeID, err)
		return false
	}
	return d.deliverAll(ctx, subs, payload) > 0
}

// sendToGroupMembers resolves the group membership, subtracts the excluded
// employee, and delivers to the union of their subscriptions.
func (d *Dispatcher) sendToGroupMembers(ctx context.Context, j job) {
	memberIDs, err := d.store.GroupMemberIDs(ctx, j.groupID)
	if err != nil {
		log.Printf("error resolving members of group %d: %v", j.groupID, err)
		return
	}

	recipients := make([]int64, 0, len(memberIDs))
	for _, id := range memberIDs {
		if id != j.excludeEmployeeID {
			recipients = append(recipients, id)
		}
	}
	if len(recipients) == 0 {
		return
	}

	subs, err := d.store.SubscriptionsFor(ctx, recipients)
	if err != nil {
		log.Printf("error fetching subscriptions for group %d: %v", j.groupID, err)
		return
	}
	if len(subs) == 0 {
		return
	}

	delivered := d.deliverAll(ctx, subs, j.payload)
	log.Printf("push dispatch for group %d: %d/%d deliveries succeeded", j.groupID, delivered, len(subs))
}

// deliverAll attempts delivery to each subscription independently and
// concurrently. One subscription's outcome never affects the others; stale
// endpoints are removed as a side effect. Returns the number of successes.
func (d *Dispatcher) deliverAll(ctx context.Context, subs []model.PushSubscription, payload Payload) int {
	body, err := payload.Encode()
	if err != nil {
		log.Printf("error encoding push payload: %v", err)
		return 0
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	delivered := 0

	for _, sub := range subs {
		wg.Add(1)
		go func(sub model.PushSubscription) {
			defer wg.Done()
			switch d.deliver(ctx, sub, body) {
			case outcomeDelivered:
				mu.Lock()
				delivered++
				mu.Unlock()
			case outcomeGone:
				log.Printf("subscription %q for employee %d is gone, deleting", sub.Endpoint, sub.EmployeeID)
				if err := d.store.DeleteSubscription(ctx, sub.EmployeeID, sub.Endpoint); err != nil {
					log.Printf("failed to delete stale subscription: %v", err)
				}
			case outcomeTransient:
				// Best effort: the next message retries naturally.
			}
		}(sub)
	}
	wg.Wait()
	return delivered
}

// deliver sends to a single endpoint with a per-request timeout so one
// unresponsive provider cannot stall the rest of the batch.
func (d *Dispatcher) deliver(ctx context.Context, sub model.PushSubscription, body []byte) deliveryOutcome {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := d.sender.Send(sendCtx, body, wpSub, d.options)
	if err != nil {
		log.Printf("error sending notification to %s: %v", sub.Endpoint, err)
		return outcomeTransient
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone, resp.StatusCode == http.StatusNotFound:
		return outcomeGone
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return outcomeDelivered
	default:
		log.Printf("unexpected status %d from %s", resp.StatusCode, sub.Endpoint)
		return outcomeTransient
	}
}

package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const sendTimeout = 5 * time.Second

// Dispatcher fans notifications out to a Sender from a bounded queue.
// When the queue is full the notification is dropped and logged; scheduling
// never waits on delivery.
type Dispatcher struct {
	sender Sender
	log    *logrus.Logger
	queue  chan Notification
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(sender Sender, log *logrus.Logger, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}

	d := &Dispatcher{
		sender: sender,
		log:    log,
		queue:  make(chan Notification, queueSize),
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for n := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := d.sender.Send(ctx, n); err != nil {
			d.log.WithError(err).WithFields(logrus.Fields{
				"kind":           n.Kind,
				"appointment_id": n.AppointmentID,
			}).Warn("notification delivery failed")
		}
		cancel()
	}
}

func (d *Dispatcher) Notify(n Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.log.WithField("kind", n.Kind).Warn("notification dispatcher closed, dropping notification")
		return
	}

	select {
	case d.queue <- n:
	default:
		d.log.WithFields(logrus.Fields{
			"kind":           n.Kind,
			"appointment_id": n.AppointmentID,
		}).Warn("notification queue full, dropping notification")
	}
}

// Close stops accepting notifications and waits for the queue to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

// Package resolve tracks the auxiliary objects a suspended decode is
// waiting for and resumes the decode once all of them have arrived.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"synthmcp/codec"
	"synthmcp/param"
)

// DefaultTimeout bounds the wait for all replies of one session.
const DefaultTimeout = 5 * time.Second

// State is the resolver's position in a session's lifecycle.
type State int

const (
	Idle State = iota
	Collecting
	Waiting
	Resuming
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Collecting:
		return "collecting requests"
	case Waiting:
		return "waiting for replies"
	case Resuming:
		return "resuming"
	case Done:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Requester sends a fetch request for one object to the device.
type Requester interface {
	RequestObject(typ, id int) error
}

// RequesterFunc adapts a function to Requester.
type RequesterFunc func(typ, id int) error

func (f RequesterFunc) RequestObject(typ, id int) error {
	return f(typ, id)
}

// Continuation is the suspended part of a decode.
type Continuation interface {
	// Reply consumes the payload of a pending object and returns any
	// objects the payload refers to that must be fetched as well.
	Reply(key codec.ObjectKey, payload any) ([]codec.ObjectKey, error)

	// Resume finishes the decode once nothing is pending.
	Resume() (*param.Model, error)
}

// Resolver runs one session at a time. Each codec instance owns its own
// resolver.
type Resolver struct {
	req     Requester
	timeout time.Duration

	mu    sync.Mutex
	state State
	cur   *session
	last  *session
}

type session struct {
	id        uuid.UUID
	cont      Continuation
	pending   map[codec.ObjectKey]bool
	seen      map[codec.ObjectKey]bool
	requested int
	received  int
	timer     *time.Timer
	done      chan struct{}
	model     *param.Model
	err       error
}

// New returns a resolver sending requests through req. A zero timeout means
// DefaultTimeout.
func New(req Requester, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{req: req, timeout: timeout}
}

// Start cancels any session in flight and begins a new one waiting for
// keys. With no keys the continuation is resumed at once.
func (r *Resolver) Start(cont Continuation, keys []codec.ObjectKey) (codec.Result, error) {
	r.mu.Lock()
	if r.cur != nil {
		log.Printf("[resolve] session %s replaced by a new decode", r.cur.id)
		r.fail(r.cur, codec.ErrCanceled)
	}
	s := &session{
		id:      uuid.New(),
		cont:    cont,
		pending: make(map[codec.ObjectKey]bool),
		seen:    make(map[codec.ObjectKey]bool),
		done:    make(chan struct{}),
	}
	r.cur, r.last = s, s
	r.state = Collecting

	fresh := s.add(keys)
	if len(fresh) == 0 {
		res, err := r.resume(s)
		r.mu.Unlock()
		return res, err
	}
	r.state = Waiting
	id := s.id
	s.timer = time.AfterFunc(r.timeout, func() { r.expire(id) })
	log.Printf("[resolve] session %s waiting for %d objects", s.id, len(fresh))
	r.mu.Unlock()

	if err := r.request(s, fresh); err != nil {
		return codec.Result{}, err
	}
	return r.awaiting(s), nil
}

// Deliver hands the payload of key to the session. Keys the session is not
// waiting for are ignored.
func (r *Resolver) Deliver(key codec.ObjectKey, payload any) (codec.Result, error) {
	r.mu.Lock()
	s := r.cur
	if s == nil || !s.pending[key] {
		r.mu.Unlock()
		return codec.Result{Status: codec.Ignored}, nil
	}
	delete(s.pending, key)
	s.received++

	follow, err := s.cont.Reply(key, payload)
	if err != nil {
		r.fail(s, err)
		r.mu.Unlock()
		return codec.Result{}, err
	}
	fresh := s.add(follow)
	if len(s.pending) == 0 {
		res, err := r.resume(s)
		r.mu.Unlock()
		return res, err
	}
	r.mu.Unlock()

	if err := r.request(s, fresh); err != nil {
		return codec.Result{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.awaiting(s), nil
}

// Reject fails the session when the device reports that a pending object
// cannot be sent. It reports whether key was pending.
func (r *Resolver) Reject(key codec.ObjectKey, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.cur
	if s == nil || !s.pending[key] {
		return false
	}
	r.fail(s, fmt.Errorf("%s: %w", key, err))
	return true
}

// Cancel abandons the session in flight, if any.
func (r *Resolver) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur != nil {
		r.fail(r.cur, codec.ErrCanceled)
	}
}

// Wait blocks until the current or most recent session ends.
func (r *Resolver) Wait(ctx context.Context) (*param.Model, error) {
	r.mu.Lock()
	s := r.cur
	if s == nil {
		s = r.last
	}
	r.mu.Unlock()
	if s == nil {
		return nil, errors.New("no decode in progress")
	}
	select {
	case <-s.done:
		return s.model, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Pending lists the objects the session waits for, sorted by type and id.
func (r *Resolver) Pending() []codec.ObjectKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil {
		return nil
	}
	return r.cur.keys()
}

// Counts returns how many objects the current or most recent session
// requested and received.
func (r *Resolver) Counts() (requested, received int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.cur
	if s == nil {
		s = r.last
	}
	if s == nil {
		return 0, 0
	}
	return s.requested, s.received
}

// add marks keys pending and returns the ones not requested before. Keys
// with id 0 name empty slots and are skipped.
func (s *session) add(keys []codec.ObjectKey) []codec.ObjectKey {
	var fresh []codec.ObjectKey
	for _, k := range keys {
		if k.ID == 0 || s.seen[k] {
			continue
		}
		s.seen[k] = true
		s.pending[k] = true
		s.requested++
		fresh = append(fresh, k)
	}
	return fresh
}

func (s *session) keys() []codec.ObjectKey {
	keys := make([]codec.ObjectKey, 0, len(s.pending))
	for k := range s.pending {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		return keys[i].ID < keys[j].ID
	})
	return keys
}

// request sends the fetches outside the lock: a requester may deliver its
// reply synchronously.
func (r *Resolver) request(s *session, keys []codec.ObjectKey) error {
	for _, k := range keys {
		if err := r.req.RequestObject(k.Type, k.ID); err != nil {
			err = fmt.Errorf("failed to request %s: %w", k, err)
			r.mu.Lock()
			if r.cur == s {
				r.fail(s, err)
			}
			r.mu.Unlock()
			return err
		}
	}
	return nil
}

func (r *Resolver) awaiting(s *session) codec.Result {
	if r.cur != s {
		// Finished or replaced while the requests went out.
		if s.err != nil {
			return codec.Result{Status: codec.Ignored, Session: s.id}
		}
		return codec.Result{Status: codec.Complete, Model: s.model, Session: s.id}
	}
	return codec.Result{Status: codec.Awaiting, Pending: s.keys(), Session: s.id}
}

// resume runs with r.mu held.
func (r *Resolver) resume(s *session) (codec.Result, error) {
	r.state = Resuming
	m, err := s.cont.Resume()
	if err != nil {
		r.fail(s, err)
		return codec.Result{}, err
	}
	s.model = m
	r.stop(s)
	r.state = Done
	log.Printf("[resolve] session %s complete after %d replies", s.id, s.received)
	return codec.Result{Status: codec.Complete, Model: m, Session: s.id}, nil
}

// expire fails the session id. Timers of sessions already finished or
// replaced find another id, or none, and do nothing.
func (r *Resolver) expire(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.cur
	if s == nil || s.id != id {
		return
	}
	r.fail(s, &codec.TimeoutError{Session: id, Pending: s.keys(), After: r.timeout})
}

// fail ends s with err and resets the resolver. It runs with r.mu held.
func (r *Resolver) fail(s *session, err error) {
	s.err = err
	r.stop(s)
	r.state = Idle
	log.Printf("[resolve] session %s failed: %v", s.id, err)
}

func (r *Resolver) stop(s *session) {
	if s.timer != nil {
		s.timer.Stop()
	}
	if r.cur == s {
		r.cur = nil
	}
	close(s.done)
}

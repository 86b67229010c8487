package live

import "sync"

// Follower binds a consumer to at most one Subscription. Changing the
// identifier releases the old Subscription before the new one opens.
type Follower struct {
	dialer Dialer
	opts   []Option

	mu  sync.Mutex
	sub *Subscription
}

func NewFollower(dialer Dialer, opts ...Option) *Follower {
	return &Follower{dialer: dialer, opts: opts}
}

// Follow opens a Subscription for identifier. Following the identifier that
// is already followed is a no-op.
func (f *Follower) Follow(identifier string) *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sub != nil && f.sub.Identifier() == identifier {
		return f.sub
	}
	if f.sub != nil {
		f.sub.Close()
	}
	f.sub = New(identifier, f.dialer, f.opts...)
	f.sub.Open()
	return f.sub
}

// Current returns the followed Subscription, or nil.
func (f *Follower) Current() *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sub
}

// Release closes the followed Subscription.
func (f *Follower) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sub != nil {
		f.sub.Close()
		f.sub = nil
	}
}

// Status reports the followed Subscription's status. ok is false when
// nothing is followed.
func (f *Follower) Status() (status Status, ok bool) {
	sub := f.Current()
	if sub == nil {
		return Status{}, false
	}
	return sub.Status(), true
}

// Reconnect restarts the followed Subscription and reports whether there
// was one.
func (f *Follower) Reconnect() bool {
	sub := f.Current()
	if sub == nil {
		return false
	}
	sub.Reconnect()
	return true
}

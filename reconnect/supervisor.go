package reconnect

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrRetriesExhausted is reported through the failure callback once the
// attempt bound is reached.
var ErrRetriesExhausted = errors.New("reconnect attempts exhausted")

// Registrar is the slice of the transport handle the supervisor drives.
type Registrar interface {
	Register(address string) error
}

// Timer is a cancellable deferred execution.
type Timer interface {
	Stop() bool
}

// TimeProvider abstracts timer creation for deterministic testing.
type TimeProvider interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// RealTimeProvider implements TimeProvider with the standard library.
type RealTimeProvider struct{}

// Now returns the current system time.
func (RealTimeProvider) Now() time.Time { return time.Now() }

// AfterFunc schedules f after d using time.AfterFunc.
func (RealTimeProvider) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Config bounds the retry behavior.
type Config struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultConfig returns the backoff parameters used when none are given.
func DefaultConfig() Config {
	return Config{
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 5,
	}
}

// FailureCallback is invoked once retries are exhausted.
type FailureCallback func(err error)

// Supervisor watches transport connectivity and re-registers the last
// known address after disconnects.
type Supervisor struct {
	registrar Registrar
	cfg       Config
	clock     TimeProvider

	onFailure FailureCallback

	mu      sync.Mutex
	address string
	attempt int
	timer   Timer
	pending bool
	stopped bool
}

// NewSupervisor creates a supervisor over the given registrar.
func NewSupervisor(registrar Registrar, cfg Config, clock TimeProvider) (*Supervisor, error) {
	if registrar == nil {
		return nil, errors.New("registrar must not be nil")
	}
	if cfg.BaseDelay <= 0 || cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("invalid reconnect config: base=%v attempts=%d", cfg.BaseDelay, cfg.MaxAttempts)
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if clock == nil {
		clock = RealTimeProvider{}
	}
	return &Supervisor{
		registrar: registrar,
		cfg:       cfg,
		clock:     clock,
	}, nil
}

// SetFailureCallback installs the exhaustion handler.
func (s *Supervisor) SetFailureCallback(cb FailureCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFailure = cb
}

// SetAddress records the address to re-register under.
func (s *Supervisor) SetAddress(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.address = address
}

// Attempts returns the current failed-attempt count. Zero after any
// successful registration.
func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// NotifyOpened records a successful registration: pending timers are
// cancelled and the attempt counter resets to zero.
func (s *Supervisor) NotifyOpened() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attempt > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "NotifyOpened",
			"attempts": s.attempt,
		}).Info("Registration restored, resetting reconnect state")
	}
	s.cancelLocked()
	s.attempt = 0
}

// NotifyDisconnected schedules the next reconnect attempt. A schedule
// already pending is left alone.
func (s *Supervisor) NotifyDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.pending {
		return
	}
	if s.address == "" {
		logrus.WithFields(logrus.Fields{
			"function": "NotifyDisconnected",
		}).Warn("Disconnected with no known address, nothing to reconnect")
		return
	}
	s.scheduleLocked()
}

// ManualReconnect cancels any pending schedule, resets the counter and
// registers immediately. Used after a user-triggered address change.
func (s *Supervisor) ManualReconnect(address string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return errors.New("supervisor stopped")
	}
	s.cancelLocked()
	s.attempt = 0
	s.address = address
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "ManualReconnect",
		"address":  address,
	}).Info("Manual reconnect requested")

	return s.registrar.Register(address)
}

// Stop cancels all pending work permanently.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.cancelLocked()
}

// cancelLocked stops a pending timer. Caller holds s.mu.
func (s *Supervisor) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = false
}

// scheduleLocked arms the timer for the next attempt. Caller holds s.mu.
func (s *Supervisor) scheduleLocked() {
	if s.attempt >= s.cfg.MaxAttempts {
		onFailure := s.onFailure
		logrus.WithFields(logrus.Fields{
			"function":     "scheduleLocked",
			"max_attempts": s.cfg.MaxAttempts,
		}).Error("Reconnect attempts exhausted")
		if onFailure != nil {
			go onFailure(ErrRetriesExhausted)
		}
		return
	}

	delay := s.delayFor(s.attempt)
	s.attempt++
	s.pending = true

	logrus.WithFields(logrus.Fields{
		"function": "scheduleLocked",
		"attempt":  s.attempt,
		"delay":    delay,
	}).Info("Scheduling reconnect attempt")

	s.timer = s.clock.AfterFunc(delay, s.attemptRegister)
}

// delayFor computes the backoff for the given zero-based attempt index.
func (s *Supervisor) delayFor(attempt int) time.Duration {
	delay := s.cfg.BaseDelay << uint(attempt)
	if delay > s.cfg.MaxDelay || delay <= 0 {
		delay = s.cfg.MaxDelay
	}
	return delay
}

// attemptRegister runs when the backoff timer fires.
func (s *Supervisor) attemptRegister() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.pending = false
	address := s.address
	attempt := s.attempt
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "attemptRegister",
		"address":  address,
		"attempt":  attempt,
	}).Info("Attempting re-registration")

	if err := s.registrar.Register(address); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "attemptRegister",
			"attempt":  attempt,
			"error":    err.Error(),
		}).Warn("Re-registration failed")

		s.mu.Lock()
		if !s.stopped {
			s.scheduleLocked()
		}
		s.mu.Unlock()
	}
	// A nil error only means the request went out; the attempt counter
	// resets when the transport reports opened via NotifyOpened.
}

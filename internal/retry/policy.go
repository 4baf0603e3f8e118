// Package retry holds the per-RPC retry and timeout tables of the
// Firestore clients and the executor that applies them.
package retry

import (
	"errors"
	"slices"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Policy is one named retry setting: which status codes are retried, how
// the delay between attempts grows, and the per-attempt and overall
// deadlines. Zero timeouts mean no deadline.
type Policy struct {
	Name                 string
	RetryableCodes       []codes.Code
	InitialRetryDelay    time.Duration
	RetryDelayMultiplier float64
	MaxRetryDelay        time.Duration
	InitialRPCTimeout    time.Duration
	RPCTimeoutMultiplier float64
	MaxRPCTimeout        time.Duration
	TotalTimeout         time.Duration
	Jitter               bool
}

// Retryable reports whether err carries a status code in the policy's set.
func (p Policy) Retryable(err error) bool {
	if err == nil {
		return false
	}
	return slices.Contains(p.RetryableCodes, status.Code(err))
}

// nextRPCTimeout grows the attempt timeout by the multiplier, capped.
func (p Policy) nextRPCTimeout(cur time.Duration) time.Duration {
	if p.RPCTimeoutMultiplier <= 1 {
		return cur
	}
	next := time.Duration(float64(cur) * p.RPCTimeoutMultiplier)
	if p.MaxRPCTimeout > 0 && next > p.MaxRPCTimeout {
		next = p.MaxRPCTimeout
	}
	return next
}

func (p Policy) validate() error {
	switch {
	case p.Name == "":
		return errors.New("policy has no name")
	case p.RetryDelayMultiplier != 0 && p.RetryDelayMultiplier < 1:
		return errors.New("retry delay multiplier must be >= 1")
	case p.RPCTimeoutMultiplier != 0 && p.RPCTimeoutMultiplier < 1:
		return errors.New("rpc timeout multiplier must be >= 1")
	case p.InitialRetryDelay < 0, p.MaxRetryDelay < 0, p.InitialRPCTimeout < 0, p.MaxRPCTimeout < 0, p.TotalTimeout < 0:
		return errors.New("durations must not be negative")
	}
	return nil
}

const (
	day = 24 * time.Hour

	// Admin policy names.
	NoRetry1     = "no_retry_1"
	RetryPolicy0 = "retry_policy_0"
	NoRetry      = "no_retry"

	// Firestore data-plane policy names.
	RetryPolicy1 = "retry_policy_1"
	RetryPolicy2 = "retry_policy_2"
	RetryPolicy4 = "retry_policy_4"
	RetryPolicy5 = "retry_policy_5"
	NoRetry3     = "no_retry_3"
)

var transientCodes = []codes.Code{codes.ResourceExhausted, codes.Unavailable, codes.Internal, codes.DeadlineExceeded}

func exponential(name string, rpcTimeout time.Duration, retryable ...codes.Code) Policy {
	return Policy{
		Name:                 name,
		RetryableCodes:       retryable,
		InitialRetryDelay:    100 * time.Millisecond,
		RetryDelayMultiplier: 1.3,
		MaxRetryDelay:        time.Minute,
		InitialRPCTimeout:    rpcTimeout,
		RPCTimeoutMultiplier: 1.0,
		MaxRPCTimeout:        rpcTimeout,
		TotalTimeout:         rpcTimeout,
		Jitter:               true,
	}
}

func noRetry(name string, timeout time.Duration) Policy {
	return Policy{
		Name:                 name,
		InitialRPCTimeout:    timeout,
		RPCTimeoutMultiplier: 1.0,
		MaxRPCTimeout:        timeout,
		TotalTimeout:         timeout,
	}
}

// AdminPolicies returns the named policies of the Firestore Admin service.
func AdminPolicies() []Policy {
	return []Policy{
		noRetry(NoRetry1, time.Minute),
		exponential(RetryPolicy0, time.Minute, codes.Unavailable, codes.Internal, codes.DeadlineExceeded),
		noRetry(NoRetry, 0),
	}
}

// FirestorePolicies returns the named policies of the Firestore service.
func FirestorePolicies() []Policy {
	return []Policy{
		exponential(RetryPolicy4, time.Minute, transientCodes...),
		exponential(RetryPolicy0, time.Minute, codes.ResourceExhausted, codes.Unavailable),
		exponential(RetryPolicy1, 5*time.Minute, transientCodes...),
		exponential(RetryPolicy2, day, transientCodes...),
		noRetry(NoRetry3, day),
		exponential(RetryPolicy5, time.Minute, codes.ResourceExhausted, codes.Unavailable, codes.Aborted),
		noRetry(NoRetry, 0),
	}
}

// PollPolicy controls how long-running operations are polled.
type PollPolicy struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	TotalTimeout time.Duration
}

// DefaultPollPolicy is the admin LRO polling schedule.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		InitialDelay: 5 * time.Second,
		Multiplier:   1.5,
		MaxDelay:     45 * time.Second,
		TotalTimeout: 5 * time.Minute,
	}
}

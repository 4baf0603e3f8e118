package retry

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/edvin/firestore-admin/internal/rpc"
)

// Table binds RPC names to named policies. It is safe for concurrent use.
type Table struct {
	mu       sync.RWMutex
	policies map[string]Policy
	bindings map[string]string
}

func newTable(policies []Policy, bindings map[string]string) *Table {
	t := &Table{policies: map[string]Policy{}, bindings: bindings}
	for _, p := range policies {
		t.policies[p.Name] = p
	}
	return t
}

// AdminDefaults returns the Firestore Admin table, operations service
// included.
func AdminDefaults() *Table {
	return newTable(AdminPolicies(), map[string]string{
		rpc.CreateIndex:         NoRetry1,
		rpc.UpdateField:         NoRetry1,
		rpc.ExportDocuments:     NoRetry1,
		rpc.ImportDocuments:     NoRetry1,
		rpc.BulkDeleteDocuments: NoRetry1,

		rpc.ListIndexes: RetryPolicy0,
		rpc.GetIndex:    RetryPolicy0,
		rpc.DeleteIndex: RetryPolicy0,
		rpc.GetField:    RetryPolicy0,
		rpc.ListFields:  RetryPolicy0,

		rpc.CreateDatabase:       NoRetry,
		rpc.GetDatabase:          NoRetry,
		rpc.ListDatabases:        NoRetry,
		rpc.UpdateDatabase:       NoRetry,
		rpc.DeleteDatabase:       NoRetry,
		rpc.CreateUserCreds:      NoRetry,
		rpc.GetUserCreds:         NoRetry,
		rpc.ListUserCreds:        NoRetry,
		rpc.EnableUserCreds:      NoRetry,
		rpc.DisableUserCreds:     NoRetry,
		rpc.ResetUserPassword:    NoRetry,
		rpc.DeleteUserCreds:      NoRetry,
		rpc.GetBackup:            NoRetry,
		rpc.ListBackups:          NoRetry,
		rpc.DeleteBackup:         NoRetry,
		rpc.RestoreDatabase:      NoRetry,
		rpc.CreateBackupSchedule: NoRetry,
		rpc.GetBackupSchedule:    NoRetry,
		rpc.ListBackupSchedules:  NoRetry,
		rpc.UpdateBackupSchedule: NoRetry,
		rpc.DeleteBackupSchedule: NoRetry,

		rpc.GetOperation:    RetryPolicy0,
		rpc.ListOperations:  RetryPolicy0,
		rpc.CancelOperation: RetryPolicy0,
		rpc.DeleteOperation: RetryPolicy0,
	})
}

// FirestoreDefaults returns the Firestore data-plane table.
func FirestoreDefaults() *Table {
	return newTable(FirestorePolicies(), map[string]string{
		rpc.GetDocument:         RetryPolicy4,
		rpc.ListDocuments:       RetryPolicy4,
		rpc.DeleteDocument:      RetryPolicy4,
		rpc.BeginTransaction:    RetryPolicy4,
		rpc.Rollback:            RetryPolicy4,
		rpc.ListCollectionIds:   RetryPolicy4,
		rpc.RunAggregationQuery: RetryPolicy4,

		rpc.UpdateDocument: RetryPolicy0,
		rpc.Commit:         RetryPolicy0,
		rpc.CreateDocument: RetryPolicy0,

		rpc.BatchGetDocuments: RetryPolicy1,
		rpc.RunQuery:          RetryPolicy1,
		rpc.PartitionQuery:    RetryPolicy1,

		rpc.Listen: RetryPolicy2,
		rpc.Write:  NoRetry3,

		rpc.BatchWrite: RetryPolicy5,
	})
}

// For returns the policy bound to method. Unbound methods do not retry.
func (t *Table) For(method string) Policy {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if name, ok := t.bindings[method]; ok {
		if p, ok := t.policies[name]; ok {
			return p
		}
	}
	return noRetry(NoRetry, 0)
}

// Policy returns a named policy.
func (t *Table) Policy(name string) (Policy, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.policies[name]
	return p, ok
}

// Set registers p under its name and binds method to it.
func (t *Table) Set(method string, p Policy) error {
	if err := p.validate(); err != nil {
		return fmt.Errorf("policy for %s: %w", method, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.policies[p.Name] = p
	t.bindings[method] = p.Name
	return nil
}

// Methods lists the bound RPC names, sorted.
func (t *Table) Methods() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.bindings))
	for m := range t.bindings {
		out = append(out, m)
	}
	slices.Sort(out)
	return out
}

// overrides is the YAML shape accepted by ApplyYAML:
//
//	policies:
//	  retry_policy_0:
//	    retryable_codes: [UNAVAILABLE]
//	    total_timeout: 30s
//	methods:
//	  CreateIndex: retry_policy_0
type overrides struct {
	Policies map[string]policyOverride `yaml:"policies"`
	Methods  map[string]string         `yaml:"methods"`
}

type policyOverride struct {
	RetryableCodes       *[]string      `yaml:"retryable_codes"`
	InitialRetryDelay    *time.Duration `yaml:"initial_retry_delay"`
	RetryDelayMultiplier *float64       `yaml:"retry_delay_multiplier"`
	MaxRetryDelay        *time.Duration `yaml:"max_retry_delay"`
	InitialRPCTimeout    *time.Duration `yaml:"initial_rpc_timeout"`
	RPCTimeoutMultiplier *float64       `yaml:"rpc_timeout_multiplier"`
	MaxRPCTimeout        *time.Duration `yaml:"max_rpc_timeout"`
	TotalTimeout         *time.Duration `yaml:"total_timeout"`
	Jitter               *bool          `yaml:"jitter"`
}

func (o policyOverride) apply(p Policy) (Policy, error) {
	if o.RetryableCodes != nil {
		p.RetryableCodes = nil
		for _, name := range *o.RetryableCodes {
			c, err := ParseCode(name)
			if err != nil {
				return p, err
			}
			p.RetryableCodes = append(p.RetryableCodes, c)
		}
	}
	setIf(&p.InitialRetryDelay, o.InitialRetryDelay)
	setIf(&p.RetryDelayMultiplier, o.RetryDelayMultiplier)
	setIf(&p.MaxRetryDelay, o.MaxRetryDelay)
	setIf(&p.InitialRPCTimeout, o.InitialRPCTimeout)
	setIf(&p.RPCTimeoutMultiplier, o.RPCTimeoutMultiplier)
	setIf(&p.MaxRPCTimeout, o.MaxRPCTimeout)
	setIf(&p.TotalTimeout, o.TotalTimeout)
	setIf(&p.Jitter, o.Jitter)
	return p, p.validate()
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// ApplyYAML overrides policies and bindings. Unknown policy names create
// new policies starting from no_retry. Method keys may be full RPC names
// or short names ("Commit"). The table is unchanged on error.
func (t *Table) ApplyYAML(data []byte) error {
	var o overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return fmt.Errorf("parse retry overrides: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	policies := make(map[string]Policy, len(t.policies))
	for k, v := range t.policies {
		policies[k] = v
	}
	bindings := make(map[string]string, len(t.bindings))
	for k, v := range t.bindings {
		bindings[k] = v
	}

	for name, po := range o.Policies {
		base, ok := policies[name]
		if !ok {
			base = noRetry(name, 0)
		}
		p, err := po.apply(base)
		if err != nil {
			return fmt.Errorf("policy %s: %w", name, err)
		}
		policies[name] = p
	}

	for method, name := range o.Methods {
		if _, ok := policies[name]; !ok {
			return fmt.Errorf("method %s: unknown policy %q", method, name)
		}
		full, err := resolveMethod(bindings, method)
		if err != nil {
			return err
		}
		bindings[full] = name
	}

	t.policies, t.bindings = policies, bindings
	return nil
}

func resolveMethod(bindings map[string]string, method string) (string, error) {
	if strings.Contains(method, "/") {
		return method, nil
	}
	var match string
	for full := range bindings {
		if rpc.Short(full) == method {
			if match != "" {
				return "", fmt.Errorf("method %s is ambiguous", method)
			}
			match = full
		}
	}
	if match == "" {
		return "", fmt.Errorf("unknown method %s", method)
	}
	return match, nil
}

// LoadOverrides applies the YAML file at path.
func (t *Table) LoadOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read retry overrides: %w", err)
	}
	return t.ApplyYAML(data)
}

package lockreport

import (
	"fmt"

	"github.com/vrlifetime/vrlifetime-lsp/internal/position"
)

const (
	// FirstLockMessage is attached to the lock that was acquired first
	FirstLockMessage = "the other lock causing double-lock."
	// SecondLockMessage is attached to the offending second acquisition
	SecondLockMessage = "Potential double-locking bug."
	// CallChainPrefix separates the first lock message from the call chain
	CallChainPrefix = " Call chain: "
)

// LockSite is one lock acquisition reported by the detector
type LockSite struct {
	LockType     string         `json:"lockType" msgpack:"lock_type"`
	TypeArgument string         `json:"typeArgument" msgpack:"type_argument"`
	File         string         `json:"file" msgpack:"file"`
	Range        position.Range `json:"range" msgpack:"range"`
	Message      string         `json:"message" msgpack:"message"`
}

// Label renders the lock kind as Kind<Arg>
func (s LockSite) Label() string {
	return fmt.Sprintf("%s<%s>", s.LockType, s.TypeArgument)
}

// RangeKey is the serialized range used to group diagnostics
func (s LockSite) RangeKey() string {
	return position.EncodeRange(s.Range)
}

// DoubleLockFinding pairs the first acquisition with the conflicting second one.
// SecondLock is the offending site.
type DoubleLockFinding struct {
	FirstLock  LockSite `json:"firstLock" msgpack:"first_lock"`
	SecondLock LockSite `json:"secondLock" msgpack:"second_lock"`
	CallChain  string   `json:"callChain" msgpack:"call_chain"`
}

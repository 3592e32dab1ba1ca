package mailbox

import (
	"fmt"
	"log/slog"
	"sync"
)

// FaultFunc reports an invalid-parameter fault: a logic error that must not
// happen at runtime. The production handler does not return.
type FaultFunc func(err error)

// Trap logs err and panics.
func Trap(log *slog.Logger) FaultFunc {
	return func(err error) {
		log.Error("fault", "err", err)
		panic(fmt.Sprintf("mailbox: fault: %v", err))
	}
}

// Recorder collects faults instead of trapping; used by the simulator and
// tests.
type Recorder struct {
	mu     sync.Mutex
	faults []error
}

// Func returns the FaultFunc feeding r.
func (r *Recorder) Func() FaultFunc {
	return func(err error) {
		r.mu.Lock()
		r.faults = append(r.faults, err)
		r.mu.Unlock()
	}
}

// Faults returns the recorded faults.
func (r *Recorder) Faults() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.faults...)
}

package engine

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/chazu/jansen/pkg/linkage"
)

// EvalTimeout is the hard limit for a single evaluation.
const EvalTimeout = 5 * time.Second

// ErrSuperseded is returned by Evaluate when a newer evaluation started
// before this one finished.
var ErrSuperseded = errors.New("evaluation superseded by newer request")

// ErrTimeout is returned by Evaluate when the source runs past EvalTimeout.
var ErrTimeout = errors.Errorf("evaluation timed out after %s", EvalTimeout)

// evalResult is the internal type used to pass evaluation results through channels.
type evalResult struct {
	study  *linkage.Study
	errors []EvalError
	err    error
}

// waitWithTimeout waits for a result from ch, but returns a timeout error
// if the evaluation exceeds EvalTimeout. It uses a generation counter to
// discard stale results from previous evaluations.
//
// On timeout, the goroutine may still be running; the generation check
// ensures its result is discarded when it eventually completes.
func waitWithTimeout(
	ch <-chan evalResult,
	gen uint64,
	mu *sync.Mutex,
	currentGen *uint64,
) (*linkage.Study, []EvalError, error) {
	timer := time.NewTimer(EvalTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		mu.Lock()
		current := *currentGen
		mu.Unlock()

		if gen != current {
			return nil, nil, ErrSuperseded
		}

		return res.study, res.errors, res.err

	case <-timer.C:
		return nil, nil, ErrTimeout
	}
}

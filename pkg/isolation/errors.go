package isolation

import "errors"

var errSubprocessExited = errors.New("isolation: subprocess exited without a response")

// ErrNoAvailableContexts is returned by acquire when the pool is already
// at maxContexts and none frees up within acquireWait. The caller
// (the Dispatcher, via Execute) counts this as an ordinary handler
// failure against the job's attempt count.
var ErrNoAvailableContexts = errors.New("no available worker contexts")

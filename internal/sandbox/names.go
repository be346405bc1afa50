package sandbox

import (
	"fmt"
	"sync/atomic"
)

// containerCounter is the process-wide monotonic source for container
// names. A UUID would satisfy uniqueness too, but a counter gives
// predictable, greppable names instead — google/uuid is reserved for
// session IDs.
var containerCounter int64

// nextContainerName returns the next collision-free container name.
func nextContainerName() string {
	n := atomic.AddInt64(&containerCounter, 1)
	return fmt.Sprintf("n-%d", n)
}

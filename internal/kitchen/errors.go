package kitchen

import "errors"

// ErrNoContainer is returned by operations that require the kitchen's
// container to already be created.
var ErrNoContainer = errors.New("kitchen: container not created")

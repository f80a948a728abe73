package runtime

import "errors"

// ErrChrootInvalid is returned when the requested chroot path does not
// exist or is not a directory.
var ErrChrootInvalid = errors.New("chroot path does not exist or is not a directory")

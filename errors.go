package vidpipe

import "errors"

// ErrInvalidHandle is returned for a null, stale or wrong-kind handle.
var ErrInvalidHandle = errors.New("vidpipe: invalid handle")

package job

import "errors"

// ErrInvalidTransition indicates a state change the job lifecycle does not allow.
var ErrInvalidTransition = errors.New("job: invalid transition")

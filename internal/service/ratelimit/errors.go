package ratelimit

import "errors"

var (
	// ErrInvalidArgument is returned when a bucket is built with a non-positive parameter.
	ErrInvalidArgument = errors.New("ratelimit: invalid argument")

	// ErrExceedsCapacity is returned when a wait asks for more tokens than the bucket can ever hold.
	ErrExceedsCapacity = errors.New("ratelimit: request exceeds bucket capacity")

	// ErrUnknownBucket is returned by the registry for a name it does not hold.
	ErrUnknownBucket = errors.New("ratelimit: unknown bucket")
)

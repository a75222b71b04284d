package domain

import "errors"

// Sentinel errors shared by the services and their repositories.
var (
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrSequenceNotFound   = errors.New("sequence not found")
	ErrContentNotFound    = errors.New("content not found")

	// ErrStaleEnrollment means a compare-and-set lost: the enrollment was
	// changed by another writer since it was read.
	ErrStaleEnrollment = errors.New("enrollment changed concurrently")
)

package domain

import "errors"

var (
	// ErrObservationLogSkew signals that an observation log's parallel
	// sequences have diverged in length.
	ErrObservationLogSkew = errors.New("observation log values and timestamps differ in length")

	// ErrMalformedChain signals that the designated numeric field was missing
	// or non-numeric on a chain member during history analysis.
	ErrMalformedChain = errors.New("chain member missing designated numeric field")
)

package usecase

import "errors"

var (
	errNoCrossEncoder     = errors.New("cross-encoder is not configured")
	errScoreCountMismatch = errors.New("cross-encoder returned a different number of scores")
	errNoRetrievers       = errors.New("no retrievers configured")
	errEmptyQuestion      = errors.New("question is empty")
	errEmptySessionID     = errors.New("session id is empty")
	errSkipCommit         = errors.New("skip session commit")
)

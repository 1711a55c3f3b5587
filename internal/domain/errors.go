package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection is fatal for one channel's connection.
	ErrConnection = errors.New("connection error")
	// ErrMalformedFrame marks a single unparseable protocol line.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrClassifier aborts processing of the message being classified.
	ErrClassifier           = errors.New("classifier error")
	ErrClassifierConnection = fmt.Errorf("%w: unreachable", ErrClassifier)
	ErrClassifierResponse   = fmt.Errorf("%w: malformed response", ErrClassifier)
	// ErrRegistryConflict is returned when a channel already has a bot.
	ErrRegistryConflict = errors.New("channel already has an active bot")
)

package openai

import "errors"

var (
	// ErrNoChoices indicates the model returned an empty response.
	ErrNoChoices = errors.New("no choices returned from model")

	// ErrUnknownLabel indicates the model answered with a label outside the configured set.
	ErrUnknownLabel = errors.New("label not in configured set")
)

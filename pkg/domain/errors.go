package domain

import "errors"

// ErrEmptyInput is returned when a run is requested without a user message.
var ErrEmptyInput = errors.New("empty input")

// ErrNoDocuments is returned when a knowledge write carries nothing to store.
var ErrNoDocuments = errors.New("no documents to add")

// ErrUnknownTool is returned when a tool call names an unregistered tool.
var ErrUnknownTool = errors.New("unknown tool")

// ErrNoData is returned by metrics sources when a query matches no series.
var ErrNoData = errors.New("query returned no data")

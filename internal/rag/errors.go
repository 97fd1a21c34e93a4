package rag

import "errors"

var (
	// ErrInvalidArgument marks a request the caller can fix: empty question,
	// top_k out of range, or an unsupported language.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnknownDocument is returned when doc_id has no index.
	ErrUnknownDocument = errors.New("unknown doc_id")
)

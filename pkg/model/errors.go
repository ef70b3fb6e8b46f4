package model

import "github.com/m-mizutani/goerr/v2"

var (
	// Scoring and retrieval
	ErrDimensionMismatch = goerr.New("embedding dimension mismatch")
	ErrEmptyVector       = goerr.New("empty embedding vector")
	ErrInvalidWeighting  = goerr.New("invalid weighting")
	ErrInvalidTopK       = goerr.New("invalid top-k")
	ErrPartialUpdate     = goerr.New("partial last-accessed update failure")

	// Upstream collaborators
	ErrEmbedding      = goerr.New("embedding failed")
	ErrClassification = goerr.New("significance classification failed")

	// Records
	ErrMemoryNotFound      = goerr.New("memory not found")
	ErrMemoryExists        = goerr.New("memory already exists")
	ErrInvalidOwner        = goerr.New("invalid owner")
	ErrInvalidKind         = goerr.New("invalid memory kind")
	ErrInvalidSignificance = goerr.New("invalid significance")
	ErrEmptyText           = goerr.New("memory text is empty")
)

package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicate indicates that an equivalent record already exists.
	ErrDuplicate = errors.New("duplicate record")
)

// FTSMatch is one full-text hit: a node ID with its normalized-ready
// rank. Higher rank means a better match for both backends.
type FTSMatch struct {
	NodeID int64
	Rank   float64
}

// VectorMatch is one database-side similarity hit.
type VectorMatch struct {
	NodeID     int64
	Similarity float64
}

// CandidateFilter narrows embedding-candidate queries. Zero values mean
// no filter on that dimension.
type CandidateFilter struct {
	MemoryType string
	Author     string
}

// NodeFilter narrows recent-node queries.
type NodeFilter struct {
	Platform string
	Since    time.Time
	Limit    int
}

// Normalize applies defaults to a NodeFilter.
func (f *NodeFilter) Normalize() {
	if f.Limit < 1 {
		f.Limit = 50
	}
	if f.Limit > 500 {
		f.Limit = 500
	}
}

package readmodel

import "context"

// Mutator changes a summary in place. Returning an error aborts the update
// without writing.
type Mutator func(s *Summary) error

// Reader is the read side used by the query server.
type Reader interface {
	Get(ctx context.Context, id string) (Summary, error)
	// Query returns summaries matching f ordered by id ascending (byte order),
	// skipping offset and returning at most limit entries.
	Query(ctx context.Context, f Filter, offset, limit int) ([]Summary, error)
	Count(ctx context.Context, f Filter) (int, error)
}

// Repository is the persistence contract of the read model.
type Repository interface {
	Reader
	// Put inserts a new summary. It fails with giftcard.ErrAlreadyExists if the
	// id is present.
	Put(ctx context.Context, s Summary) error
	// Update runs a read-mutate-write cycle for id under per-id mutual
	// exclusion and returns the written summary. It fails with
	// giftcard.ErrNotFound if the id is absent.
	Update(ctx context.Context, id string, fn Mutator) (Summary, error)
}

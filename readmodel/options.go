package readmodel

import "github.com/ripkitten-co/giftcard/schema"

type Option func(*storeOptions)

type storeOptions struct {
	table string
}

// WithTable stores summaries in the named table instead of giftcard_summaries.
func WithTable(name string) Option {
	return func(o *storeOptions) { o.table = name }
}

func applyOptions(opts []Option) storeOptions {
	cfg := storeOptions{table: schema.SummariesTable}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

package giftcard

import (
	"log/slog"

	"github.com/ripkitten-co/giftcard/internal/codecs"
	"github.com/ripkitten-co/giftcard/internal/pg"
	"github.com/ripkitten-co/giftcard/schema"
)

type backend struct {
	exec   pg.Executor
	codec  codecs.Codec
	schema *schema.Bootstrap
	logger *slog.Logger
}

// Backend is implemented by Store and Session. Adapters take a Backend so the
// same code runs against the pool or inside a transaction.
type Backend interface {
	DBExecutor() pg.Executor
	JSONCodec() codecs.Codec
	SchemaBootstrap() *schema.Bootstrap
	Logger() *slog.Logger
}

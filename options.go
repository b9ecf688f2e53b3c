package giftcard

import (
	"log/slog"

	"github.com/ripkitten-co/giftcard/internal/codecs"
)

type Option func(*storeConfig)

type storeConfig struct {
	codec  codecs.Codec
	logger *slog.Logger
}

func defaultConfig() *storeConfig {
	return &storeConfig{
		codec:  codecs.NewJSONIter(),
		logger: slog.Default(),
	}
}

func WithCodec(c codecs.Codec) Option {
	return func(cfg *storeConfig) {
		cfg.codec = c
	}
}

// WithLogger sets the logger handed to every component built from the store.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *storeConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

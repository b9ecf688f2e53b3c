// Package feed reads gift card events from an externally written Postgres log
// and drives the projector with them, checkpointing the last processed
// position per runner.
package feed

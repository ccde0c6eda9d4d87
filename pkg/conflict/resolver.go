// Package conflict decides how a pending durable write relates to the record
// already in the durable tier, and performs the write when it should happen.
package conflict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/papercomputeco/strata/pkg/checksum"
	"github.com/papercomputeco/strata/pkg/compress"
	"github.com/papercomputeco/strata/pkg/durable"
	"github.com/papercomputeco/strata/pkg/memory"
)

// ErrDivergent is returned when a restamped write collides again with a
// different payload. It is not retryable.
var ErrDivergent = errors.New("divergent payload persisted after restamp")

// maxRounds bounds read-compare-write rounds lost to concurrent writers.
const maxRounds = 3

// Outcome classifies a resolution.
type Outcome int

const (
	// Committed means the item was written to the durable tier.
	Committed Outcome = iota

	// Noop means the durable tier already held this exact version.
	Noop

	// Restamped means the durable tier held a different payload at the same
	// version; the item was written under a new version.
	Restamped

	// Superseded means the durable tier already held a newer version. Nothing
	// was written.
	Superseded
)

func (o Outcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case Noop:
		return "noop"
	case Restamped:
		return "restamped"
	case Superseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Result describes what Resolve did.
type Result struct {
	Outcome Outcome

	// Item is the clean committed item for Committed, Noop and Restamped.
	// For Superseded it is the winning durable item, or nil if that record
	// could not be decoded.
	Item *memory.Item

	// DurableVersion is the version the durable tier holds afterwards.
	DurableVersion uint64

	// RawBytes and StoredBytes describe the written payload.
	RawBytes    int
	StoredBytes int
}

// Resolver validates pending items against the durable tier.
type Resolver struct {
	durable durable.Driver
	codec   *compress.Codec
	logger  *slog.Logger
	now     func() time.Time
}

// NewResolver creates a Resolver.
func NewResolver(d durable.Driver, codec *compress.Codec, logger *slog.Logger) *Resolver {
	return &Resolver{
		durable: d,
		codec:   codec,
		logger:  logger,
		now:     time.Now,
	}
}

// Resolve compares item with the durable record and commits when the item is
// newer. Errors wrapping memory.ErrDurableUnavailable are transient;
// ErrDivergent is not.
func (r *Resolver) Resolve(ctx context.Context, item *memory.Item) (*Result, error) {
	key := item.Key.String()
	restamped := false

	for range maxRounds {
		rec, err := r.durable.ReadRecord(ctx, key)
		if err != nil && !memory.IsNotFound(err) {
			return nil, err
		}

		switch {
		case rec == nil, rec.Version < item.Version:
			res, err := r.write(ctx, item)
			if errors.Is(err, memory.ErrVersionConflict) {
				r.logger.Debug("lost durable write race, re-reading", "key", key, "version", item.Version)
				continue
			}
			if err != nil {
				return nil, err
			}
			if restamped {
				res.Outcome = Restamped
			}
			return res, nil

		case rec.Version == item.Version && rec.Checksum == item.Checksum:
			clean := item.Clone()
			clean.Dirty = false
			clean.TierOrigin = memory.L3
			return &Result{
				Outcome:        Noop,
				Item:           clean,
				DurableVersion: rec.Version,
				RawBytes:       len(item.Payload),
				StoredBytes:    len(rec.Payload),
			}, nil

		case rec.Version == item.Version:
			if restamped {
				return nil, fmt.Errorf("%w: %s at version %d", ErrDivergent, key, rec.Version)
			}
			r.logger.Warn("durable checksum differs at same version, restamping",
				"key", key,
				"version", item.Version,
				"durable_checksum", rec.Checksum,
				"checksum", item.Checksum,
			)
			item = checksum.Restamp(item, rec.Version, r.now())
			restamped = true

		default:
			res := &Result{Outcome: Superseded, DurableVersion: rec.Version}
			winner, err := durable.Decode(r.codec, rec)
			if err != nil {
				r.logger.Warn("newer durable record is unreadable", "key", key, "version", rec.Version, "error", err)
			} else {
				res.Item = winner
			}
			return res, nil
		}
	}

	return nil, fmt.Errorf("%w: %s: gave up after %d contended rounds", memory.ErrDurableUnavailable, key, maxRounds)
}

func (r *Resolver) write(ctx context.Context, item *memory.Item) (*Result, error) {
	rec, err := durable.Encode(r.codec, item)
	if err != nil {
		return nil, err
	}
	if err := r.durable.WriteRecord(ctx, rec); err != nil {
		return nil, err
	}

	clean := item.Clone()
	clean.Dirty = false
	clean.TierOrigin = memory.L3

	return &Result{
		Outcome:        Committed,
		Item:           clean,
		DurableVersion: item.Version,
		RawBytes:       len(item.Payload),
		StoredBytes:    len(rec.Payload),
	}, nil
}

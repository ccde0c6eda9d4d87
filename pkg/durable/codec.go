package durable

import (
	"fmt"

	"github.com/papercomputeco/strata/pkg/checksum"
	"github.com/papercomputeco/strata/pkg/compress"
	"github.com/papercomputeco/strata/pkg/memory"
)

// Encode converts item to a Record, compressing the payload with codec.
func Encode(codec *compress.Codec, item *memory.Item) (*Record, error) {
	payload, err := codec.Encode(item.Payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", item.Key, err)
	}

	return &Record{
		Key:       item.Key.String(),
		Namespace: item.Key.Namespace,
		Payload:   payload,
		Version:   item.Version,
		Checksum:  item.Checksum,
		UpdatedAt: item.LastModified,
	}, nil
}

// Decode converts rec back to a clean L3 item. A payload that fails to
// decompress or whose checksum does not match wraps memory.ErrCorrupt.
func Decode(codec *compress.Codec, rec *Record) (*memory.Item, error) {
	key, err := memory.ParseKey(rec.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", memory.ErrCorrupt, err)
	}

	payload, err := codec.Decode(rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", memory.ErrCorrupt, rec.Key, err)
	}

	item := &memory.Item{
		Key:          key,
		Payload:      payload,
		Version:      rec.Version,
		Checksum:     rec.Checksum,
		TierOrigin:   memory.L3,
		LastModified: rec.UpdatedAt,
	}
	if !checksum.Valid(item) {
		return nil, fmt.Errorf("%w: %s checksum mismatch at version %d", memory.ErrCorrupt, rec.Key, rec.Version)
	}

	return item, nil
}

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/lewisedginton/financial_qa/internal/storage"
)

// record is the on-disk form of an entry.
type record struct {
	Timestamp *float64        `json:"timestamp"`
	Value     json.RawMessage `json:"value"`
}

func toEpoch(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromEpoch(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9))
}

func encodeRecord(ts time.Time, raw []byte) ([]byte, error) {
	epoch := toEpoch(ts)
	return json.Marshal(record{Timestamp: &epoch, Value: raw})
}

// decodeRecord rejects files missing either field.
func decodeRecord(data []byte) (time.Time, []byte, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return time.Time{}, nil, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	if r.Timestamp == nil || len(r.Value) == 0 {
		return time.Time{}, nil, fmt.Errorf("%w: missing timestamp or value", ErrCorruptEntry)
	}
	return fromEpoch(*r.Timestamp), []byte(r.Value), nil
}

// persistentTier maps keys onto files of a FileProvider.
type persistentTier struct {
	files storage.FileProvider
}

func (p persistentTier) read(ctx context.Context, key string) ([]byte, error) {
	return p.files.Read(ctx, fileName(key))
}

func (p persistentTier) write(ctx context.Context, key string, ts time.Time, raw []byte) error {
	data, err := encodeRecord(ts, raw)
	if err != nil {
		return err
	}
	return p.files.Write(ctx, fileName(key), data)
}

func (p persistentTier) exists(ctx context.Context, key string) (bool, error) {
	return p.files.Exists(ctx, fileName(key))
}

func (p persistentTier) remove(ctx context.Context, key string) error {
	return p.files.Delete(ctx, fileName(key))
}

// keys lists persisted keys starting with prefix.
func (p persistentTier) keys(ctx context.Context, prefix string) ([]string, error) {
	names, err := p.files.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(names))
	for _, name := range names {
		if key, ok := keyFromFile(name); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

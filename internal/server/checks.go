package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/lewisedginton/financial_qa/internal/conversation"
	"github.com/lewisedginton/financial_qa/internal/storage"
	"github.com/lewisedginton/financial_qa/pkg/health"
)

// probeCheck writes, reads back and deletes a scratch object. The name has no
// .json suffix so neither the cache nor the store ever treats it as data.
func probeCheck(name string, files storage.FileProvider) health.Check {
	return health.NewCheckFunc(name, func(ctx context.Context) error {
		path := ".readyz-" + uuid.NewString() + ".probe"
		want := []byte("ok")
		if err := files.Write(ctx, path, want); err != nil {
			return fmt.Errorf("write probe: %w", err)
		}
		got, err := files.Read(ctx, path)
		if err != nil {
			return fmt.Errorf("read probe: %w", err)
		}
		if err := files.Delete(ctx, path); err != nil {
			return fmt.Errorf("delete probe: %w", err)
		}
		if string(got) != string(want) {
			return fmt.Errorf("probe read back %d bytes, want %d", len(got), len(want))
		}
		return nil
	})
}

// indexCheck verifies the conversation index is readable when present.
func indexCheck(files storage.FileProvider) health.Check {
	return health.NewCheckFunc("conversation_index", func(ctx context.Context) error {
		if _, err := files.Read(ctx, conversation.IndexFileName); err != nil && !errors.Is(err, storage.ErrNotExist) {
			return fmt.Errorf("read index: %w", err)
		}
		return nil
	})
}

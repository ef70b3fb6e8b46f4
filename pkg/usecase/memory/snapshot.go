package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/phrazzld/judith/pkg/model"
	"github.com/phrazzld/judith/pkg/utils/logging"
)

const maxSnapshotLine = 16 * 1024 * 1024

// SnapshotKey returns the storage key of an export taken at the UseCase's current time
func (u *UseCase) SnapshotKey(owner model.OwnerID) string {
	return fmt.Sprintf("memories/%s/%s.jsonl", owner, u.now().UTC().Format("20060102T150405Z"))
}

// Export writes the owner's memory stream to storage as JSON Lines and
// returns the key and the number of records written
func (u *UseCase) Export(ctx context.Context, owner model.OwnerID) (string, int, error) {
	if u.storage == nil {
		return "", 0, goerr.New("storage is not configured")
	}

	memories, err := u.List(ctx, owner)
	if err != nil {
		return "", 0, err
	}

	key := u.SnapshotKey(owner)

	// Cancelling the writer context aborts the upload without committing it.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writer, err := u.storage.Put(wctx, key)
	if err != nil {
		return "", 0, goerr.Wrap(err, "failed to create storage writer", goerr.V("key", key))
	}

	encoder := json.NewEncoder(writer)
	for _, memory := range memories {
		if err := encoder.Encode(memory); err != nil {
			cancel()
			_ = writer.Close()
			return "", 0, goerr.Wrap(err, "failed to write memory to storage",
				goerr.V("key", key), goerr.V("id", memory.ID))
		}
	}

	if err := writer.Close(); err != nil {
		return "", 0, goerr.Wrap(err, "failed to close storage writer", goerr.V("key", key))
	}

	logging.From(ctx).Info("memory stream exported", "owner", owner, "key", key, "count", len(memories))
	return key, len(memories), nil
}

// ImportResult summarizes an Import
type ImportResult struct {
	Imported int
	Skipped  int
}

// Import appends records of a snapshot to the owner's stream. Records whose ID
// already exists are skipped so existing memories are never modified.
func (u *UseCase) Import(ctx context.Context, owner model.OwnerID, key string) (*ImportResult, error) {
	if u.storage == nil {
		return nil, goerr.New("storage is not configured")
	}
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	reader, err := u.storage.Get(ctx, key)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get snapshot from storage", goerr.V("key", key))
	}
	defer reader.Close()

	dim, err := u.streamDimension(ctx, owner)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSnapshotLine)

	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var memory model.Memory
		if err := json.Unmarshal(scanner.Bytes(), &memory); err != nil {
			return result, goerr.Wrap(err, "failed to decode snapshot line", goerr.V("key", key), goerr.V("line", line))
		}
		if memory.Owner != owner {
			return result, goerr.Wrap(model.ErrInvalidOwner, "snapshot belongs to another owner",
				goerr.V("key", key), goerr.V("line", line),
				goerr.V("owner", owner), goerr.V("snapshot_owner", memory.Owner))
		}

		if err := checkDimension(dim, len(memory.Embedding)); err != nil {
			return result, goerr.Wrap(err, "snapshot embedding does not match the memory stream",
				goerr.V("key", key), goerr.V("line", line), goerr.V("id", memory.ID))
		}

		if err := u.repo.PutMemory(ctx, &memory); err != nil {
			if errors.Is(err, model.ErrMemoryExists) {
				result.Skipped++
				continue
			}
			return result, goerr.Wrap(err, "failed to import memory", goerr.V("line", line), goerr.V("id", memory.ID))
		}
		result.Imported++
		if dim == 0 {
			dim = len(memory.Embedding)
		}
	}
	if err := scanner.Err(); err != nil {
		return result, goerr.Wrap(err, "failed to read snapshot", goerr.V("key", key))
	}

	logging.From(ctx).Info("memory stream imported",
		"owner", owner, "key", key, "imported", result.Imported, "skipped", result.Skipped)
	return result, nil
}

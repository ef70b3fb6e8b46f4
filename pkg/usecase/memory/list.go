package memory

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/phrazzld/judith/pkg/model"
)

// List returns the owner's memory stream without touching access times
func (u *UseCase) List(ctx context.Context, owner model.OwnerID) ([]*model.Memory, error) {
	memories, err := u.repo.ListMemories(ctx, owner)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list memories", goerr.V("owner", owner))
	}
	return memories, nil
}

// Get returns one memory without touching its access time
func (u *UseCase) Get(ctx context.Context, owner model.OwnerID, id model.MemoryID) (*model.Memory, error) {
	memory, err := u.repo.GetMemory(ctx, owner, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get memory", goerr.V("owner", owner), goerr.V("id", id))
	}
	return memory, nil
}

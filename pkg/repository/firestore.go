package repository

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/phrazzld/judith/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collectionUsers    = "users"
	collectionMemories = "memories"
)

// Firestore stores memory streams under users/{owner}/memories/{id}
type Firestore struct {
	client *firestore.Client
}

// New creates a new Firestore repository
func New(ctx context.Context, projectID, databaseID string, opts ...option.ClientOption) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID),
			goerr.V("database_id", databaseID))
	}

	return &Firestore{client: client}, nil
}

// Close releases the underlying client
func (r *Firestore) Close() error {
	return r.client.Close()
}

func (r *Firestore) memories(owner model.OwnerID) *firestore.CollectionRef {
	return r.client.Collection(collectionUsers).Doc(string(owner)).Collection(collectionMemories)
}

func (r *Firestore) PutMemory(ctx context.Context, memory *model.Memory) error {
	if err := memory.Validate(); err != nil {
		return err
	}

	if _, err := r.memories(memory.Owner).Doc(string(memory.ID)).Create(ctx, memory); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return goerr.Wrap(model.ErrMemoryExists, "memory already exists",
				goerr.V("owner", memory.Owner), goerr.V("id", memory.ID))
		}
		return goerr.Wrap(err, "failed to create memory document",
			goerr.V("owner", memory.Owner), goerr.V("id", memory.ID))
	}

	return nil
}

func (r *Firestore) GetMemory(ctx context.Context, owner model.OwnerID, id model.MemoryID) (*model.Memory, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	doc, err := r.memories(owner).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrMemoryNotFound, "memory not found",
				goerr.V("owner", owner), goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get memory document",
			goerr.V("owner", owner), goerr.V("id", id))
	}

	var memory model.Memory
	if err := doc.DataTo(&memory); err != nil {
		return nil, goerr.Wrap(err, "failed to decode memory document", goerr.V("id", id))
	}
	memory.ID = model.MemoryID(doc.Ref.ID)
	memory.Owner = owner

	return &memory, nil
}

func (r *Firestore) ListMemories(ctx context.Context, owner model.OwnerID) ([]*model.Memory, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	// No OrderBy: a query ordered on a field skips documents that lack it.
	iter := r.memories(owner).Documents(ctx)
	defer iter.Stop()

	var memories []*model.Memory
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate memory documents", goerr.V("owner", owner))
		}

		var memory model.Memory
		if err := doc.DataTo(&memory); err != nil {
			return nil, goerr.Wrap(err, "failed to decode memory document", goerr.V("id", doc.Ref.ID))
		}
		memory.ID = model.MemoryID(doc.Ref.ID)
		memory.Owner = owner
		memories = append(memories, &memory)
	}
	sortByCreatedAt(memories)

	return memories, nil
}

// sortByCreatedAt orders memories oldest first. Records without CreatedAt
// sort first and equal timestamps keep their read order.
func sortByCreatedAt(memories []*model.Memory) {
	sort.SliceStable(memories, func(i, j int) bool {
		return memories[i].CreatedAt.Before(memories[j].CreatedAt)
	})
}

func (r *Firestore) UpdateMemoryLastAccessed(ctx context.Context, owner model.OwnerID, id model.MemoryID, at time.Time) error {
	if err := owner.Validate(); err != nil {
		return err
	}

	_, err := r.memories(owner).Doc(string(id)).Update(ctx, []firestore.Update{
		{Path: "LastAccessedAt", Value: at},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(model.ErrMemoryNotFound, "memory not found",
				goerr.V("owner", owner), goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to update last accessed time",
			goerr.V("owner", owner), goerr.V("id", id))
	}

	return nil
}

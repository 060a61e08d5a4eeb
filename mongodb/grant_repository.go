package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/pilab-dev/shadow-authz/domain"
)

// GrantRepository stores authorization-code grants in MongoDB.
type GrantRepository struct {
	coll *mongo.Collection
}

// NewGrantRepository creates a GrantRepository over the grants collection.
func NewGrantRepository(db *mongo.Database) *GrantRepository {
	return &GrantRepository{coll: db.Collection(GrantsCollection)}
}

// CreateGrant implements domain.GrantRepository.
func (r *GrantRepository) CreateGrant(ctx context.Context, grant *domain.Grant) error {
	if _, err := r.coll.InsertOne(ctx, grant); err != nil {
		return fmt.Errorf("failed to insert grant: %w", err)
	}
	return nil
}

// ConsumeGrant atomically reads and deletes the grant. FindOneAndDelete is
// a single document operation, so two concurrent exchanges of the same code
// cannot both succeed.
func (r *GrantRepository) ConsumeGrant(ctx context.Context, code string) (*domain.Grant, error) {
	var grant domain.Grant
	err := r.coll.FindOneAndDelete(ctx, bson.M{"_id": code}).Decode(&grant)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrGrantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume grant: %w", err)
	}
	return &grant, nil
}

// DeleteExpiredGrants removes grants past their expiry.
func (r *GrantRepository) DeleteExpiredGrants(ctx context.Context) error {
	_, err := r.coll.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("failed to delete expired grants: %w", err)
	}
	return nil
}

package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	ApplicationsCollection  = "oauth_applications"
	GrantsCollection        = "oauth_grants"
	AccessTokensCollection  = "oauth_access_tokens"
	RefreshTokensCollection = "oauth_refresh_tokens"
	IDTokensCollection      = "oauth_id_tokens"
)

// EnsureIndexes creates the unique and lookup indexes the repositories rely
// on. Safe to call on every startup; index creation is idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	unique := options.Index().SetUnique(true)

	indexes := map[string][]mongo.IndexModel{
		AccessTokensCollection: {
			{Keys: bson.D{{Key: "token", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "client_id", Value: 1}}},
			{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		},
		RefreshTokensCollection: {
			{Keys: bson.D{{Key: "token", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		},
		IDTokensCollection: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
		GrantsCollection: {
			{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		},
	}

	for coll, models := range indexes {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/pilab-dev/shadow-authz/domain"
)

// TokenRepository stores access, refresh and ID tokens in separate
// collections.
type TokenRepository struct {
	access  *mongo.Collection
	refresh *mongo.Collection
	id      *mongo.Collection
}

// NewTokenRepository creates a TokenRepository over the token collections.
func NewTokenRepository(db *mongo.Database) *TokenRepository {
	return &TokenRepository{
		access:  db.Collection(AccessTokensCollection),
		refresh: db.Collection(RefreshTokensCollection),
		id:      db.Collection(IDTokensCollection),
	}
}

// CreateAccessToken implements domain.TokenRepository.
func (r *TokenRepository) CreateAccessToken(ctx context.Context, token *domain.AccessToken) error {
	if _, err := r.access.InsertOne(ctx, token); err != nil {
		return fmt.Errorf("failed to insert access token: %w", err)
	}
	return nil
}

// GetAccessToken returns the live access token with the given opaque value.
func (r *TokenRepository) GetAccessToken(ctx context.Context, tokenValue string) (*domain.AccessToken, error) {
	var token domain.AccessToken
	err := r.access.FindOne(ctx, bson.M{
		"token":      tokenValue,
		"is_revoked": bson.M{"$ne": true},
		"expires_at": bson.M{"$gt": time.Now().UTC()},
	}).Decode(&token)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrAccessTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load access token: %w", err)
	}
	return &token, nil
}

// RevokeAccessToken implements domain.TokenRepository.
func (r *TokenRepository) RevokeAccessToken(ctx context.Context, tokenValue string) error {
	res, err := r.access.UpdateOne(ctx,
		bson.M{"token": tokenValue},
		bson.M{"$set": bson.M{"is_revoked": true}})
	if err != nil {
		return fmt.Errorf("failed to revoke access token: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrAccessTokenNotFound
	}
	return nil
}

// CreateRefreshToken implements domain.TokenRepository.
func (r *TokenRepository) CreateRefreshToken(ctx context.Context, token *domain.RefreshToken) error {
	if _, err := r.refresh.InsertOne(ctx, token); err != nil {
		return fmt.Errorf("failed to insert refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken returns the refresh token regardless of revocation state.
func (r *TokenRepository) GetRefreshToken(ctx context.Context, tokenValue string) (*domain.RefreshToken, error) {
	var token domain.RefreshToken
	err := r.refresh.FindOne(ctx, bson.M{"token": tokenValue}).Decode(&token)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrRefreshTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load refresh token: %w", err)
	}
	return &token, nil
}

// RevokeRefreshToken implements domain.TokenRepository.
func (r *TokenRepository) RevokeRefreshToken(ctx context.Context, tokenValue string) error {
	res, err := r.refresh.UpdateOne(ctx,
		bson.M{"token": tokenValue},
		bson.M{"$set": bson.M{"revoked": true}})
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrRefreshTokenNotFound
	}
	return nil
}

// RotateRefreshToken revokes the old token and inserts its successor. The
// revocation filter requires the old token to still be live, so concurrent
// rotations of the same token race on a single conditional update and only
// the winner writes a successor.
func (r *TokenRepository) RotateRefreshToken(ctx context.Context, oldTokenValue string, successor *domain.RefreshToken) error {
	res, err := r.refresh.UpdateOne(ctx,
		bson.M{"token": oldTokenValue, "revoked": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"revoked": true}})
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token for rotation: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrRefreshTokenNotFound
	}

	if _, err := r.refresh.InsertOne(ctx, successor); err != nil {
		return fmt.Errorf("failed to insert rotated refresh token: %w", err)
	}
	return nil
}

// CreateIDToken implements domain.TokenRepository.
func (r *TokenRepository) CreateIDToken(ctx context.Context, token *domain.IDToken) error {
	if _, err := r.id.InsertOne(ctx, token); err != nil {
		return fmt.Errorf("failed to insert ID token: %w", err)
	}
	return nil
}

// ListIDTokensForUser returns every ID token issued to the user.
func (r *TokenRepository) ListIDTokensForUser(ctx context.Context, userID string) ([]*domain.IDToken, error) {
	cursor, err := r.id.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list ID tokens: %w", err)
	}
	defer cursor.Close(ctx)

	var tokens []*domain.IDToken
	if err := cursor.All(ctx, &tokens); err != nil {
		return nil, fmt.Errorf("failed to decode ID tokens: %w", err)
	}
	return tokens, nil
}

// RevokeUserApplicationTokens revokes all access tokens for a (user,
// application) pair and returns the revoked token values for cache
// eviction.
func (r *TokenRepository) RevokeUserApplicationTokens(ctx context.Context, userID, clientID string) ([]string, error) {
	filter := bson.M{"user_id": userID, "client_id": clientID}

	cursor, err := r.access.Find(ctx, filter,
		options.Find().SetProjection(bson.M{"token": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list user application tokens: %w", err)
	}
	var docs []struct {
		Token string `bson:"token"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode user application tokens: %w", err)
	}

	if _, err := r.access.UpdateMany(ctx, filter,
		bson.M{"$set": bson.M{"is_revoked": true}}); err != nil {
		return nil, fmt.Errorf("failed to revoke user application tokens: %w", err)
	}

	values := make([]string, 0, len(docs))
	for _, doc := range docs {
		values = append(values, doc.Token)
	}
	return values, nil
}

// DeleteExpiredTokens removes expired tokens from all three collections.
func (r *TokenRepository) DeleteExpiredTokens(ctx context.Context) error {
	now := time.Now().UTC()
	filter := bson.M{"expires_at": bson.M{"$lte": now}}
	for _, coll := range []*mongo.Collection{r.access, r.refresh, r.id} {
		if _, err := coll.DeleteMany(ctx, filter); err != nil {
			return fmt.Errorf("failed to delete expired tokens from %s: %w", coll.Name(), err)
		}
	}
	return nil
}

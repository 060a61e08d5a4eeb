package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/pilab-dev/shadow-authz/domain"
)

// ApplicationRepository stores registered client applications in MongoDB.
type ApplicationRepository struct {
	coll *mongo.Collection
}

// NewApplicationRepository creates an ApplicationRepository over the
// applications collection.
func NewApplicationRepository(db *mongo.Database) *ApplicationRepository {
	return &ApplicationRepository{coll: db.Collection(ApplicationsCollection)}
}

// CreateApplication implements domain.ApplicationRepository.
func (r *ApplicationRepository) CreateApplication(ctx context.Context, app *domain.Application) error {
	if _, err := r.coll.InsertOne(ctx, app); err != nil {
		return fmt.Errorf("failed to insert application: %w", err)
	}
	return nil
}

// GetApplication implements domain.ApplicationRepository.
func (r *ApplicationRepository) GetApplication(ctx context.Context, clientID string) (*domain.Application, error) {
	var app domain.Application
	err := r.coll.FindOne(ctx, bson.M{"client_id": clientID}).Decode(&app)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrApplicationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load application: %w", err)
	}
	return &app, nil
}

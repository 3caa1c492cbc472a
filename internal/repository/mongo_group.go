package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/templui/fileshare/internal/model"
	"github.com/templui/fileshare/internal/pagination"
)

var groupSortFields = map[string]string{
	"createdAt": "createdAt",
	"updatedAt": "updatedAt",
	"title":     "title",
}

type mongoGroupRepository struct {
	coll *mongo.Collection
}

func NewMongoGroupRepository(db *mongo.Database) GroupRepository {
	return &mongoGroupRepository{coll: db.Collection(groupsCollection)}
}

func (r *mongoGroupRepository) Create(ctx context.Context, group *model.Group) error {
	_, err := r.coll.InsertOne(ctx, group)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}
	return nil
}

func (r *mongoGroupRepository) ByID(ctx context.Context, id string) (*model.Group, error) {
	group := &model.Group{}

	err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(group)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	return group, nil
}

func (r *mongoGroupRepository) Find(ctx context.Context, ownerID string, params pagination.Params) ([]*model.Group, error) {
	opts := options.Find().
		SetSort(mongoSort(params.Sort, groupSortFields)).
		SetSkip(int64(params.Offset())).
		SetLimit(int64(params.Limit))

	cursor, err := r.coll.Find(ctx, bson.D{{Key: "ownerId", Value: ownerID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	groups := []*model.Group{}
	err = cursor.All(ctx, &groups)
	if err != nil {
		return nil, fmt.Errorf("failed to decode groups: %w", err)
	}

	return groups, nil
}

func (r *mongoGroupRepository) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	total, err := r.coll.CountDocuments(ctx, bson.D{{Key: "ownerId", Value: ownerID}})
	if err != nil {
		return 0, fmt.Errorf("failed to count groups: %w", err)
	}
	return total, nil
}

func (r *mongoGroupRepository) Update(ctx context.Context, group *model.Group) error {
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "title", Value: group.Title},
		{Key: "description", Value: group.Description},
		{Key: "updatedAt", Value: group.UpdatedAt},
	}}}

	result, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: group.ID}}, update)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrGroupNotFound
	}

	return nil
}

func (r *mongoGroupRepository) Delete(ctx context.Context, id string) error {
	result, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrGroupNotFound
	}
	return nil
}

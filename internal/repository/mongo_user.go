package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/templui/fileshare/internal/model"
)

type mongoUserRepository struct {
	coll *mongo.Collection
}

func NewMongoUserRepository(db *mongo.Database) UserRepository {
	return &mongoUserRepository{coll: db.Collection(usersCollection)}
}

func (r *mongoUserRepository) Create(ctx context.Context, user *model.User) error {
	_, err := r.coll.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateUser
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (r *mongoUserRepository) ByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}}, options.FindOne().SetProjection(hidePassword))
}

func (r *mongoUserRepository) ByIDWithPassword(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (r *mongoUserRepository) ByEmailWithPassword(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

func (r *mongoUserRepository) findOne(ctx context.Context, filter bson.D, opts ...options.Lister[options.FindOneOptions]) (*model.User, error) {
	user := &model.User{}

	err := r.coll.FindOne(ctx, filter, opts...).Decode(user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

func (r *mongoUserRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email, excludeID string) (bool, error) {
	filter := bson.D{
		{Key: "$or", Value: bson.A{
			bson.D{{Key: "username", Value: username}},
			bson.D{{Key: "email", Value: email}},
		}},
		{Key: "_id", Value: bson.D{{Key: "$ne", Value: excludeID}}},
	}

	count, err := r.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check user uniqueness: %w", err)
	}

	return count > 0, nil
}

func (r *mongoUserRepository) Update(ctx context.Context, user *model.User) error {
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "username", Value: user.Username},
		{Key: "email", Value: user.Email},
		{Key: "role", Value: user.Role},
		{Key: "updatedAt", Value: user.UpdatedAt},
	}}}

	result, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: user.ID}}, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateUser
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *mongoUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "passwordHash", Value: passwordHash},
		{Key: "updatedAt", Value: time.Now().UTC()},
	}}}

	result, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, update)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}

	return nil
}

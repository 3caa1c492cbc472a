package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/templui/fileshare/internal/pagination"
)

const (
	usersCollection  = "users"
	filesCollection  = "files"
	groupsCollection = "groups"
)

// hidePassword keeps password hashes out of default reads.
var hidePassword = bson.D{{Key: "passwordHash", Value: 0}}

// EnsureMongoIndexes creates the indexes the Mongo repositories rely on,
// including the unique username and email constraints.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		filesCollection: {
			{Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "groupId", Value: 1}}},
			{Keys: bson.D{{Key: "visibility", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		groupsCollection: {
			{Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
	}

	for name, models := range indexes {
		_, err := db.Collection(name).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", name, err)
		}
	}

	return nil
}

// mongoSort orders by the requested field with _id as tie-breaker.
func mongoSort(s pagination.Sort, allowed map[string]string) bson.D {
	field, ok := allowed[s.Field]
	if !ok {
		field = "createdAt"
	}
	dir := 1
	if s.Desc {
		dir = -1
	}
	return bson.D{{Key: field, Value: dir}, {Key: "_id", Value: dir}}
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/templui/fileshare/internal/model"
	"github.com/templui/fileshare/internal/pagination"
)

var fileSortFields = map[string]string{
	"createdAt": "createdAt",
	"updatedAt": "updatedAt",
	"title":     "title",
	"size":      "size",
	"downloads": "downloads",
}

type mongoFileRepository struct {
	coll *mongo.Collection
}

func NewMongoFileRepository(db *mongo.Database) FileRepository {
	return &mongoFileRepository{coll: db.Collection(filesCollection)}
}

func (r *mongoFileRepository) Create(ctx context.Context, file *model.File) error {
	_, err := r.coll.InsertOne(ctx, file)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}
	return nil
}

func (r *mongoFileRepository) ByID(ctx context.Context, id string) (*model.File, error) {
	return r.findOne(ctx, id, options.FindOne().SetProjection(hidePassword))
}

func (r *mongoFileRepository) ByIDWithPassword(ctx context.Context, id string) (*model.File, error) {
	return r.findOne(ctx, id)
}

func (r *mongoFileRepository) findOne(ctx context.Context, id string, opts ...options.Lister[options.FindOneOptions]) (*model.File, error) {
	file := &model.File{}

	err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}, opts...).Decode(file)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	return file, nil
}

func (r *mongoFileRepository) Find(ctx context.Context, filter model.FileFilter, params pagination.Params) ([]*model.File, error) {
	opts := options.Find().
		SetSort(mongoSort(params.Sort, fileSortFields)).
		SetSkip(int64(params.Offset())).
		SetLimit(int64(params.Limit)).
		SetProjection(hidePassword)

	cursor, err := r.coll.Find(ctx, mongoFileFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	files := []*model.File{}
	err = cursor.All(ctx, &files)
	if err != nil {
		return nil, fmt.Errorf("failed to decode files: %w", err)
	}

	return files, nil
}

func (r *mongoFileRepository) Count(ctx context.Context, filter model.FileFilter) (int64, error) {
	total, err := r.coll.CountDocuments(ctx, mongoFileFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return total, nil
}

// mongoFileFilter builds the predicate shared by Find and Count.
func mongoFileFilter(filter model.FileFilter) bson.D {
	var doc bson.D

	if filter.PublicOnly {
		doc = append(doc, bson.E{Key: "visibility", Value: string(model.VisibilityPublic)})
	} else {
		doc = append(doc, bson.E{Key: "ownerId", Value: filter.OwnerID})
		if filter.GroupID != "" {
			doc = append(doc, bson.E{Key: "groupId", Value: filter.GroupID})
		}
	}

	if search := strings.TrimSpace(filter.Search); search != "" {
		re := bson.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
		doc = append(doc, bson.E{Key: "$or", Value: bson.A{
			bson.D{{Key: "title", Value: re}},
			bson.D{{Key: "description", Value: re}},
		}})
	}

	return doc
}

func (r *mongoFileRepository) CountByGroup(ctx context.Context, groupID string) (int64, error) {
	total, err := r.coll.CountDocuments(ctx, bson.D{{Key: "groupId", Value: groupID}})
	if err != nil {
		return 0, fmt.Errorf("failed to count group files: %w", err)
	}
	return total, nil
}

func (r *mongoFileRepository) Update(ctx context.Context, file *model.File) error {
	set := bson.D{
		{Key: "title", Value: file.Title},
		{Key: "description", Value: file.Description},
		{Key: "visibility", Value: string(file.Visibility)},
		{Key: "updatedAt", Value: file.UpdatedAt},
	}
	unset := bson.D{}

	if file.GroupID != nil {
		set = append(set, bson.E{Key: "groupId", Value: *file.GroupID})
	} else {
		unset = append(unset, bson.E{Key: "groupId", Value: ""})
	}
	if file.PasswordHash != nil {
		set = append(set, bson.E{Key: "passwordHash", Value: *file.PasswordHash})
	} else {
		unset = append(unset, bson.E{Key: "passwordHash", Value: ""})
	}

	update := bson.D{{Key: "$set", Value: set}}
	if len(unset) > 0 {
		update = append(update, bson.E{Key: "$unset", Value: unset})
	}

	result, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: file.ID}}, update)
	if err != nil {
		return fmt.Errorf("failed to update file: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrFileNotFound
	}

	return nil
}

func (r *mongoFileRepository) IncrementDownloads(ctx context.Context, id string) error {
	update := bson.D{{Key: "$inc", Value: bson.D{{Key: "downloads", Value: 1}}}}

	result, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, update)
	if err != nil {
		return fmt.Errorf("failed to increment downloads: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrFileNotFound
	}

	return nil
}

func (r *mongoFileRepository) ClearGroup(ctx context.Context, groupID string) (int64, error) {
	update := bson.D{
		{Key: "$unset", Value: bson.D{{Key: "groupId", Value: ""}}},
		{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: time.Now().UTC()}}},
	}

	result, err := r.coll.UpdateMany(ctx, bson.D{{Key: "groupId", Value: groupID}}, update)
	if err != nil {
		return 0, fmt.Errorf("failed to clear group: %w", err)
	}

	return result.ModifiedCount, nil
}

func (r *mongoFileRepository) Delete(ctx context.Context, id string) error {
	result, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrFileNotFound
	}
	return nil
}

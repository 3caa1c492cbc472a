package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var ErrMongoUnavailable = errors.New("failed to connect to mongo")

const (
	connectAttempts = 3
	connectInterval = 2 * time.Second
)

// ConnectMongo connects to MongoDB, retrying until the server answers a ping.
func ConnectMongo(ctx context.Context, uri, database string) (*mongo.Database, error) {
	var lastErr error

	for attempt := range connectAttempts {
		client, err := mongo.Connect(
			options.Client().
				ApplyURI(uri).
				SetConnectTimeout(10 * time.Second).
				SetMaxPoolSize(50).
				SetRetryWrites(true).
				SetRetryReads(true),
		)
		if err == nil {
			err = client.Ping(ctx, nil)
			if err == nil {
				slog.Info("database connected", "driver", "mongodb", "database", database)
				return client.Database(database), nil
			}
			_ = client.Disconnect(context.Background())
		}
		lastErr = err

		slog.Warn("mongo connect failed, retrying", "attempt", attempt+1, "error", err)

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrMongoUnavailable, ctx.Err())
		case <-time.After(connectInterval):
		}
	}

	return nil, errors.Join(ErrMongoUnavailable, lastErr)
}

func MongoHealthcheck(client *mongo.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		err := client.Ping(ctx, nil)
		if err != nil {
			return fmt.Errorf("mongo ping failed: %w", err)
		}
		return nil
	}
}

package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gmkornilov/chess-demo-backend/internal/config"
)

const connectTimeout = 10 * time.Second

type RoomDbClient struct {
	client         *mongo.Client
	RoomCollection *mongo.Collection
}

func (r *RoomDbClient) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return r.client.Disconnect(ctx)
}

func NewDbClient(cfg *config.Configuration) (*RoomDbClient, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	clientOpts := options.Client().ApplyURI(cfg.Database.Address)

	dbClient := &RoomDbClient{}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, err
	}
	dbClient.client = client

	err = client.Ping(ctx, nil)
	if err != nil {
		client.Disconnect(ctx)
		return nil, err
	}

	dbClient.RoomCollection = client.Database(cfg.Database.DatabaseName).Collection(cfg.Database.Collection)
	if dbClient.RoomCollection == nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("can't resolve collection %s", cfg.Database.DatabaseName+"."+cfg.Database.Collection)
	}

	// rooms never outlive their session
	ttlIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	}
	if _, err := dbClient.RoomCollection.Indexes().CreateOne(ctx, ttlIndex); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("create ttl index: %w", err)
	}
	return dbClient, nil
}

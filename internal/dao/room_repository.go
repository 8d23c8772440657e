package dao

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gmkornilov/chess-demo-backend/internal/db"
)

// MongoRoomRepository keeps one document per room. Expiry is enforced by
// the TTL index and by filtering on expires_at, since the TTL monitor only
// runs once a minute. Watch needs a replica set for change streams.
type MongoRoomRepository struct {
	dbClient *db.RoomDbClient
	timeout  time.Duration
	now      func() time.Time
	log      logrus.FieldLogger
}

func NewMongoRoomRepository(dbClient *db.RoomDbClient, timeout time.Duration, log logrus.FieldLogger) *MongoRoomRepository {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &MongoRoomRepository{
		dbClient: dbClient,
		timeout:  timeout,
		now:      time.Now,
		log:      log.WithField("component", "mongo_rooms"),
	}
}

func (t *MongoRoomRepository) Create(ctx context.Context, room Room) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	_, err := t.dbClient.RoomCollection.InsertOne(ctx, room)
	if mongo.IsDuplicateKeyError(err) {
		return ErrRoomExists
	}
	return err
}

func (t *MongoRoomRepository) Get(ctx context.Context, id string) (Room, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	filter := bson.D{
		{Key: "_id", Value: id},
		{Key: "expires_at", Value: bson.D{{Key: "$gt", Value: t.now()}}},
	}
	var room Room
	err := t.dbClient.RoomCollection.FindOne(ctx, filter).Decode(&room)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Room{}, ErrRoomNotFound
	}
	if err != nil {
		return Room{}, err
	}
	return room, nil
}

func (t *MongoRoomRepository) List(ctx context.Context) ([]Room, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	filter := bson.D{{Key: "expires_at", Value: bson.D{{Key: "$gt", Value: t.now()}}}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cur, err := t.dbClient.RoomCollection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	rooms := make([]Room, 0)
	if err = cur.All(ctx, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (t *MongoRoomRepository) Update(ctx context.Context, room Room, expectedVersion int64) (Room, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	room.Version = expectedVersion + 1
	filter := bson.D{{Key: "_id", Value: room.ID}, {Key: "version", Value: expectedVersion}}
	res, err := t.dbClient.RoomCollection.ReplaceOne(ctx, filter, room)
	if err != nil {
		return Room{}, err
	}
	if res.MatchedCount == 0 {
		n, err := t.dbClient.RoomCollection.CountDocuments(ctx, bson.D{{Key: "_id", Value: room.ID}})
		if err != nil {
			return Room{}, err
		}
		if n == 0 {
			return Room{}, ErrRoomNotFound
		}
		return Room{}, ErrVersionConflict
	}
	return room, nil
}

func (t *MongoRoomRepository) Touch(ctx context.Context, id, playerID string, at, expiresAt time.Time) (Room, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	for _, side := range []string{"white", "black"} {
		filter := bson.D{
			{Key: "_id", Value: id},
			{Key: side + ".id", Value: playerID},
			{Key: "expires_at", Value: bson.D{{Key: "$gt", Value: t.now()}}},
		}
		update := bson.D{{Key: "$set", Value: bson.D{
			{Key: side + ".last_seen", Value: at},
			{Key: "expires_at", Value: expiresAt},
		}}}
		var room Room
		err := t.dbClient.RoomCollection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&room)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return Room{}, err
		}
	}
	if _, err := t.Get(ctx, id); err != nil {
		return Room{}, err
	}
	return Room{}, ErrSeatNotFound
}

func (t *MongoRoomRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	res, err := t.dbClient.RoomCollection.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrRoomNotFound
	}
	return nil
}

type roomChange struct {
	OperationType string `bson:"operationType"`
	FullDocument  *Room  `bson:"fullDocument"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
}

func (t *MongoRoomRepository) Watch(ctx context.Context, id string) (<-chan Room, error) {
	pipeline := mongo.Pipeline{}
	if id != "" {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: id}}}})
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := t.dbClient.RoomCollection.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, err
	}

	out := make(chan Room, watchBuffer)
	go func() {
		defer close(out)
		defer stream.Close(context.Background())
		for stream.Next(ctx) {
			var change roomChange
			if err := stream.Decode(&change); err != nil {
				t.log.WithError(err).Warn("undecodable change event")
				continue
			}
			room := closedRoom(change.DocumentKey.ID, t.now())
			if change.OperationType != "delete" && change.FullDocument != nil {
				room = *change.FullDocument
			}
			if offer(out, room) {
				t.log.WithField("room_id", room.ID).Warn("watcher is not keeping up, dropped an older update")
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			t.log.WithError(err).Warn("change stream stopped")
		}
	}()
	return out, nil
}

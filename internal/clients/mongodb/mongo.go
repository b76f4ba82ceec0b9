package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	ErrMsgMongoMissingDBName            = "missing database name"
	ErrMsgMongoCollectionNameOrDocEmpty = "collection name and document cannot be empty"
	ErrMsgMongoInvalidID                = "invalid document id"
	ErrMsgMongoDocNotFound              = "document not found"
	ErrMsgMongoDuplicateExternalID      = "more than one document matches the external id"
	ErrMsgMongoMissingExternalID        = "document has no external id value"
)

var (
	ErrMongoMissingDBName            = errors.New(ErrMsgMongoMissingDBName)
	ErrMongoCollectionNameOrDocEmpty = errors.New(ErrMsgMongoCollectionNameOrDocEmpty)
	ErrMongoInvalidID                = errors.New(ErrMsgMongoInvalidID)
	ErrMongoDocNotFound              = errors.New(ErrMsgMongoDocNotFound)
	ErrMongoDuplicateExternalID      = errors.New(ErrMsgMongoDuplicateExternalID)
	ErrMongoMissingExternalID        = errors.New(ErrMsgMongoMissingExternalID)
)

// IDField is the record key exposed to callers, stored as the document _id.
const IDField = "Id"

type MongoStore struct {
	client *mongo.Client
	store  *mongo.Database
}

func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	builder := NewMongoConnectionBuilder(
		cfg.Protocol,
		cfg.Host,
	).WithUser(
		cfg.User,
	).WithPassword(
		cfg.Pwd,
	).WithConnectionParams(
		cfg.Params,
	)
	opts := &MongoStoreOption{
		DBName:   cfg.DBName,
		PoolSize: cfg.PoolSize,
	}
	if opts.DBName == "" {
		return nil, ErrMongoMissingDBName
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = DefaultPoolSize
	}

	dbConnStr, err := builder.Build()
	if err != nil {
		return nil, err
	}

	mOpts := options.Client().ApplyURI(
		dbConnStr,
	).SetReadPreference(
		readpref.Primary(),
	).SetMaxPoolSize(
		opts.PoolSize,
	)

	cl, err := mongo.Connect(ctx, mOpts)
	if err != nil {
		return nil, err
	}

	if err = cl.Ping(ctx, nil); err != nil {
		if disconnectErr := cl.Disconnect(ctx); disconnectErr != nil {
			return nil, errors.Join(err, disconnectErr)
		}
		return nil, err
	}

	return &MongoStore{
		client: cl,
		store:  cl.Database(opts.DBName),
	}, nil
}

// AddCollectionDoc inserts a document and returns its hex id.
func (ms *MongoStore) AddCollectionDoc(
	ctx context.Context,
	collectionName string,
	doc map[string]any,
) (string, error) {
	if collectionName == "" || doc == nil {
		return "", ErrMongoCollectionNameOrDocEmpty
	}

	now := time.Now().UTC()
	fields := withoutID(doc)
	fields["created_at"] = now
	fields["updated_at"] = now

	coll := ms.store.Collection(collectionName)
	res, err := coll.InsertOne(ctx, fields)
	if err != nil {
		return "", fmt.Errorf("error inserting document into collection %s: %w", collectionName, err)
	}

	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("error decoding inserted ID from collection %s", collectionName)
	}
	return id.Hex(), nil
}

// UpdateCollectionDoc sets the given fields on the document with id. Nil values are unset.
func (ms *MongoStore) UpdateCollectionDoc(
	ctx context.Context,
	collectionName, id string,
	doc map[string]any,
) error {
	if collectionName == "" || doc == nil {
		return ErrMongoCollectionNameOrDocEmpty
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMongoInvalidID, id)
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	unset := bson.M{}
	for k, v := range withoutID(doc) {
		if v == nil {
			unset[k] = ""
			continue
		}
		set[k] = v
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	res, err := ms.store.Collection(collectionName).UpdateByID(ctx, oid, update)
	if err != nil {
		return fmt.Errorf("error updating document %s in collection %s: %w", id, collectionName, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s %s", ErrMongoDocNotFound, collectionName, id)
	}
	return nil
}

// UpsertCollectionDoc updates the document matching externalIDField or inserts a new one.
// It returns the document id and whether it was created.
func (ms *MongoStore) UpsertCollectionDoc(
	ctx context.Context,
	collectionName, externalIDField string,
	doc map[string]any,
) (string, bool, error) {
	val, ok := doc[externalIDField]
	if !ok || val == nil || fmt.Sprint(val) == "" {
		return "", false, ErrMongoMissingExternalID
	}
	key := fmt.Sprint(val)
	matches, err := ms.FindIDs(ctx, collectionName, externalIDField, []string{key})
	if err != nil {
		return "", false, err
	}
	switch ids := matches[key]; len(ids) {
	case 0:
		id, err := ms.AddCollectionDoc(ctx, collectionName, doc)
		return id, true, err
	case 1:
		return ids[0], false, ms.UpdateCollectionDoc(ctx, collectionName, ids[0], doc)
	default:
		return "", false, fmt.Errorf("%w: %s = %s", ErrMongoDuplicateExternalID, externalIDField, key)
	}
}

func (ms *MongoStore) DeleteCollectionDoc(ctx context.Context, collectionName, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMongoInvalidID, id)
	}
	res, err := ms.store.Collection(collectionName).DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("error deleting document %s from collection %s: %w", id, collectionName, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s %s", ErrMongoDocNotFound, collectionName, id)
	}
	return nil
}

// FindIDs returns the ids of documents whose field is one of values, keyed by value.
func (ms *MongoStore) FindIDs(ctx context.Context, collectionName, field string, values []string) (map[string][]string, error) {
	out := map[string][]string{}
	if len(values) == 0 {
		return out, nil
	}

	var filter bson.M
	if field == IDField {
		oids := make([]primitive.ObjectID, 0, len(values))
		for _, v := range values {
			if oid, err := primitive.ObjectIDFromHex(v); err == nil {
				oids = append(oids, oid)
			}
		}
		filter = bson.M{"_id": bson.M{"$in": oids}}
	} else {
		filter = bson.M{field: bson.M{"$in": values}}
	}

	cur, err := ms.store.Collection(collectionName).Find(
		ctx,
		filter,
		options.Find().SetProjection(bson.M{"_id": 1, field: 1}).SetSort(bson.M{"_id": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("error finding %s documents by %s: %w", collectionName, field, err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		oid, ok := doc["_id"].(primitive.ObjectID)
		if !ok {
			continue
		}
		key := oid.Hex()
		if field != IDField {
			key = fmt.Sprint(doc[field])
		}
		out[key] = append(out[key], oid.Hex())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (ms *MongoStore) Close(ctx context.Context) error {
	if err := ms.client.Disconnect(ctx); err != nil && err != mongo.ErrClientDisconnected {
		return err
	}
	return nil
}

func withoutID(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == IDField {
			continue
		}
		out[k] = v
	}
	return out
}

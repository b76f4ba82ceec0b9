package stores

import (
	"context"
	"errors"
	"fmt"

	"github.com/hankgalt/load-orchestra/internal/clients/mongodb"
	"github.com/hankgalt/load-orchestra/pkg/domain"
)

// Error constants and variables
const (
	ErrMsgMongoStoreDBProtocolRequired = "mongo store: DB protocol is required"
	ErrMsgMongoStoreDBHostRequired     = "mongo store: DB host is required"
	ErrMsgMongoStoreDBNameRequired     = "mongo store: DB name is required"
	ErrMsgMongoStoreDBUserRequired     = "mongo store: DB user is required"
	ErrMsgMongoStoreDBPwdRequired      = "mongo store: DB password is required"
)

var (
	ErrMongoStoreDBProtocolRequired = errors.New(ErrMsgMongoStoreDBProtocolRequired)
	ErrMongoStoreDBHostRequired     = errors.New(ErrMsgMongoStoreDBHostRequired)
	ErrMongoStoreDBNameRequired     = errors.New(ErrMsgMongoStoreDBNameRequired)
	ErrMongoStoreDBUserRequired     = errors.New(ErrMsgMongoStoreDBUserRequired)
	ErrMongoStoreDBPwdRequired      = errors.New(ErrMsgMongoStoreDBPwdRequired)
)

const MongoStore = "mongo-store"

// MongoDocClient is the capability the mongo store needs. Object names are collection names.
type MongoDocClient interface {
	AddCollectionDoc(ctx context.Context, collectionName string, doc map[string]any) (string, error)
	UpdateCollectionDoc(ctx context.Context, collectionName, id string, doc map[string]any) error
	UpsertCollectionDoc(ctx context.Context, collectionName, externalIDField string, doc map[string]any) (string, bool, error)
	DeleteCollectionDoc(ctx context.Context, collectionName, id string) error
	FindIDs(ctx context.Context, collectionName, field string, values []string) (map[string][]string, error)
	Close(ctx context.Context) error
}

// mongoDocs adapts a MongoDocClient to DocumentWriter.
type mongoDocs struct {
	client MongoDocClient
}

func (d mongoDocs) Insert(ctx context.Context, object string, fields map[string]any) (string, error) {
	return d.client.AddCollectionDoc(ctx, object, fields)
}

func (d mongoDocs) Update(ctx context.Context, object, id string, fields map[string]any) error {
	return d.client.UpdateCollectionDoc(ctx, object, id, fields)
}

func (d mongoDocs) Upsert(ctx context.Context, object, externalIDField string, fields map[string]any) (string, bool, error) {
	return d.client.UpsertCollectionDoc(ctx, object, externalIDField, fields)
}

func (d mongoDocs) Delete(ctx context.Context, object, id string) error {
	return d.client.DeleteCollectionDoc(ctx, object, id)
}

func (d mongoDocs) FindIDs(ctx context.Context, object, field string, values []string) (map[string][]string, error) {
	return d.client.FindIDs(ctx, object, field, values)
}

func (d mongoDocs) Close(ctx context.Context) error {
	return d.client.Close(ctx)
}

// NewMongoRecordStore wraps a mongo client as a collection only record store.
func NewMongoRecordStore(client MongoDocClient) domain.RecordStore {
	return &documentStore{name: MongoStore, writer: mongoDocs{client: client}}
}

// Mongo store config.
type MongoStoreConfig struct {
	Protocol string
	Host     string
	DBName   string
	User     string
	Pwd      string
	Params   string
}

// Name of the store.
func (c *MongoStoreConfig) Name() string { return MongoStore }

// BuildStore connects to MongoDB.
func (c *MongoStoreConfig) BuildStore(ctx context.Context) (domain.RecordStore, error) {
	if c.Protocol == "" {
		return nil, ErrMongoStoreDBProtocolRequired
	}
	if c.Host == "" {
		return nil, ErrMongoStoreDBHostRequired
	}
	if c.DBName == "" {
		return nil, ErrMongoStoreDBNameRequired
	}
	if c.User == "" {
		return nil, ErrMongoStoreDBUserRequired
	}
	if c.Pwd == "" {
		return nil, ErrMongoStoreDBPwdRequired
	}

	mCl, err := mongodb.NewMongoStore(ctx, mongodb.MongoConfig{
		Protocol: c.Protocol,
		Host:     c.Host,
		User:     c.User,
		Pwd:      c.Pwd,
		Params:   c.Params,
		DBName:   c.DBName,
	})
	if err != nil {
		return nil, fmt.Errorf("mongo store: create client: %w", err)
	}
	return NewMongoRecordStore(mCl), nil
}

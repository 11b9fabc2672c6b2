package config

import (
	"context"
	"log"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/fx"
)

type MongoDBConfig struct {
	URI string
}

func NewMongoDBConfig() *MongoDBConfig {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		log.Fatal("DB uri not set")
	}
	return &MongoDBConfig{URI: uri}
}

type MongoDBClient struct {
	Client   *mongo.Client
	Database *mongo.Database
}

func NewMongoDBClient(lc fx.Lifecycle, config *MongoDBConfig) (*MongoDBClient, *mongo.Database, error) {
	clientOptions := options.Client().ApplyURI(config.URI)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	err = client.Ping(ctx, nil)
	if err != nil {
		log.Fatalf("Failed to ping MongoDB: %v", err)
	}

	log.Println("Connected to MongoDB")

	lc.Append(fx.Hook{
		OnStart: func(Startctx context.Context) error {
			log.Println("MongoDB connection verified on startup")
			return nil
		},
		OnStop: func(Stopctx context.Context) error {
			log.Println("Closing MongoDB connection ...")
			return client.Disconnect(Stopctx)
		},
	})
	db := client.Database("campus_clinic")
	return &MongoDBClient{Client: client, Database: db}, db, nil
}

// uniqueIDNumberIndexModel builds the index enforcing one account per
// student/employee number. Partial: admins register without an id_number, and
// an unconditional unique index would reject every admin after the first.
func uniqueIDNumberIndexModel() mongo.IndexModel {
	return mongo.IndexModel{
		Keys: bson.M{"id_number": 1},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"id_number": bson.M{"$gt": ""}}),
	}
}

// UniqueIDNumberIndex enforces one account per student/employee number.
func UniqueIDNumberIndex(collection *mongo.Collection) {
	indexmodel := uniqueIDNumberIndexModel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	_, err := collection.Indexes().CreateOne(ctx, indexmodel)
	if err != nil {
		log.Fatal("Failed to create unique index on ID number:", err)
	}

	log.Println("Unique index on ID number created successfully")
}

// RecipientIndex speeds up per-recipient notification lookups and the
// undelivered sweep.
func RecipientIndex(collection *mongo.Collection) {
	indexmodel := mongo.IndexModel{
		Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "delivered", Value: 1}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	_, err := collection.Indexes().CreateOne(ctx, indexmodel)
	if err != nil {
		log.Fatal("Failed to create recipient index on notifications:", err)
	}
}

func (c *MongoDBClient) GetCollection(collectionName string) *mongo.Collection {
	return c.Client.Database("campus_clinic").Collection(collectionName)
}

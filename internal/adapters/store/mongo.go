package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/0xcro3dile/incidentrag-go/internal/domain/entities"
	"github.com/0xcro3dile/incidentrag-go/internal/domain/ports"
)

const (
	DefaultMongoDatabase   = "tks"
	DefaultMongoCollection = "incident_report"
)

// incidentDoc is the stored shape: report fields sit at the top level next to content.
type incidentDoc struct {
	ID        string    `bson:"_id"`
	Content   string    `bson:"content,omitempty"`
	UpdatedAt time.Time `bson:"updated_at,omitempty"`
	Fields    bson.M    `bson:",inline"`
}

// MongoStore writes incidents with "$set" upserts so each write touches only its own fields.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects to uri and verifies the connection.
func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	if database == "" {
		database = DefaultMongoDatabase
	}
	if collection == "" {
		collection = DefaultMongoCollection
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	return &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(collection),
	}, nil
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

func (s *MongoStore) SaveContent(ctx context.Context, id, content string) error {
	return s.set(ctx, id, bson.M{"content": content})
}

func (s *MongoStore) MergeReport(ctx context.Context, id string, report entities.Report) error {
	fields := reportFields(report)
	if len(fields) == 0 {
		return nil
	}
	return s.set(ctx, id, fields)
}

// reportFields returns the report as top-level "$set" fields. Model-supplied keys
// that would collide with the document's own fields, or that Mongo reads as
// operators or paths, are dropped.
func reportFields(report entities.Report) bson.M {
	fields := bson.M(report.Fields())
	for k := range fields {
		switch {
		case k == "_id", k == "content", k == "updated_at":
			delete(fields, k)
		case k == "", strings.HasPrefix(k, "$"), strings.Contains(k, "."):
			delete(fields, k)
		}
	}
	return fields
}

func (s *MongoStore) set(ctx context.Context, id string, fields bson.M) error {
	fields["updated_at"] = time.Now().UTC()
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": fields},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upserting incident %s: %w", id, err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*entities.IncidentRecord, error) {
	var doc incidentDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading incident %s: %w", id, err)
	}
	return doc.record()
}

func (d incidentDoc) record() (*entities.IncidentRecord, error) {
	rec := &entities.IncidentRecord{ID: d.ID, Content: d.Content, UpdatedAt: d.UpdatedAt}
	if len(d.Fields) == 0 {
		return rec, nil
	}
	raw, err := json.Marshal(d.Fields)
	if err != nil {
		return nil, fmt.Errorf("encoding incident %s fields: %w", d.ID, err)
	}
	if err := json.Unmarshal(raw, &rec.Report); err != nil {
		return nil, fmt.Errorf("decoding incident %s fields: %w", d.ID, err)
	}
	return rec, nil
}

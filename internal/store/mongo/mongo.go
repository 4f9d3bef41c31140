// Package mongo is the document-database backend. It can count and
// deduplicate on the server, so it provides store.Counters.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"clinic-management-api/internal/model"
	"clinic-management-api/internal/store"
)

// BuildFilter translates a store.Filter into a bson document.
func BuildFilter(f store.Filter) bson.D {
	q := bson.D{}
	if f.Role != "" {
		q = append(q, bson.E{Key: "role", Value: f.Role})
	}
	if f.Doctor != "" {
		q = append(q, bson.E{Key: "doctor", Value: f.Doctor})
	}
	if f.Patient != "" {
		q = append(q, bson.E{Key: "patient", Value: f.Patient})
	}
	switch len(f.Statuses) {
	case 0:
	case 1:
		q = append(q, bson.E{Key: "status", Value: f.Statuses[0]})
	default:
		q = append(q, bson.E{Key: "status", Value: bson.M{"$in": f.Statuses}})
	}
	if !f.From.IsZero() {
		q = append(q, bson.E{Key: "appointmentDate", Value: bson.M{"$gte": f.From}})
	}
	if f.Email != "" {
		q = append(q, bson.E{Key: "email", Value: f.Email})
	}
	if f.Search != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		q = append(q, bson.E{Key: "$or", Value: bson.A{
			bson.M{"name": re},
			bson.M{"email": re},
		}})
	}
	return q
}

type Collection[T store.Document] struct {
	coll *mongo.Collection
}

func (c *Collection[T]) Find(ctx context.Context, f store.Filter) ([]T, error) {
	cur, err := c.coll.Find(ctx, BuildFilter(f))
	if err != nil {
		return nil, err
	}
	var out []T
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var d T
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return d, store.ErrNotFound
	}
	return d, err
}

func (c *Collection[T]) Insert(ctx context.Context, doc T) error {
	_, err := c.coll.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrDuplicate
	}
	return err
}

func (c *Collection[T]) Replace(ctx context.Context, doc T) error {
	res, err := c.coll.ReplaceOne(ctx, bson.M{"_id": doc.Key()}, doc)
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	res, err := c.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *Collection[T]) CountDocuments(ctx context.Context, f store.Filter) (int64, error) {
	return c.coll.CountDocuments(ctx, BuildFilter(f))
}

func (c *Collection[T]) Distinct(ctx context.Context, field string, f store.Filter) ([]string, error) {
	if !store.ValidField(field) {
		return nil, fmt.Errorf("distinct on unsupported field %q", field)
	}
	vals, err := c.coll.Distinct(ctx, field, BuildFilter(f))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// Connect dials the cluster, ensures the unique email index and returns
// the backend. The caller owns Close.
func Connect(ctx context.Context, uri, database string) (*store.Backend, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	_, err = db.Collection(model.Users).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create email index: %w", err)
	}

	users := &Collection[model.User]{coll: db.Collection(model.Users)}
	appts := &Collection[model.Appointment]{coll: db.Collection(model.Appointments)}
	analyses := &Collection[model.Analysis]{coll: db.Collection(model.Analyses)}
	reports := &Collection[model.Report]{coll: db.Collection(model.Reports)}

	b := &store.Backend{
		Name:         "mongo",
		Users:        users,
		Appointments: appts,
		Analyses:     analyses,
		Reports:      reports,
		Counters: &store.Counters{
			Users:        users,
			Appointments: appts,
			Analyses:     analyses,
			Reports:      reports,
		},
	}
	b.OnClose(client.Disconnect)
	return b, nil
}

// Package mongoaudit stores audit records in a MongoDB collection.
package mongoaudit

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/broady/blueprint/di"
	"github.com/broady/blueprint/middleware"
)

// Collection is the part of *mongo.Collection the writer uses.
type Collection interface {
	InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// Writer is a middleware.AuditWriter inserting one document per record.
type Writer struct {
	coll Collection
}

var _ middleware.AuditWriter = (*Writer)(nil)

// New creates a writer for coll, usually a *mongo.Collection.
func New(coll Collection) *Writer {
	return &Writer{coll: coll}
}

// WriteAudit implements middleware.AuditWriter.
func (w *Writer) WriteAudit(ctx context.Context, r middleware.AuditRecord) error {
	res, err := w.coll.InsertOne(ctx, Document(r))
	if err != nil {
		return fmt.Errorf("mongoaudit: insert %s: %w", r.Operation, err)
	}
	if _, ok := res.InsertedID.(primitive.ObjectID); !ok {
		return fmt.Errorf("mongoaudit: unexpected inserted id %v", res.InsertedID)
	}
	return nil
}

// Document converts a record into the stored document.
func Document(r middleware.AuditRecord) bson.M {
	doc := bson.M{
		"_id":           primitive.NewObjectID(),
		"operation":     r.Operation,
		"operationType": r.OperationType,
		"nested":        r.Nested,
		"success":       r.Success,
		"outcome":       r.Outcome,
		"startedAt":     primitive.NewDateTimeFromTime(r.StartedAt),
		"durationMs":    r.Duration.Milliseconds(),
	}
	if r.Error != "" {
		doc["error"] = r.Error
	}
	return doc
}

// Register adds a singleton middleware.AuditWriter writing to the named
// collection of db.
func Register(services *di.ServiceCollection, db *mongo.Database, collection string) error {
	w := New(db.Collection(collection))
	return di.AddValue[middleware.AuditWriter](services, w)
}

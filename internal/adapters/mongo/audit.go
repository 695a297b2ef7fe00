package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/hotel-room-holds/internal/domain"
	"github.com/robertarktes/hotel-room-holds/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

// AuditLog is keyed by the message id so a redelivered event is stored once.
type AuditLog struct {
	ID        string    `bson:"_id"`
	Action    string    `bson:"action"`
	GuestID   int64     `bson:"guest_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

// LogEvent stores one audit entry. Duplicates of an already stored message
// id are ignored.
func (a *AuditLogger) LogEvent(ctx context.Context, messageID, action string, guestID int64, data map[string]interface{}) error {
	log := AuditLog{
		ID:        messageID,
		Action:    action,
		GuestID:   guestID,
		Timestamp: time.Now(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, log)
	if mongo.IsDuplicateKeyError(err) {
		a.logger.WithField("message_id", messageID).Debug("audit entry already stored")
		return nil
	}
	if err != nil {
		a.logger.WithError(err).WithField("action", action).Error("failed to insert audit log")
		return err
	}
	return nil
}

// History returns the guest's entries, newest first.
func (a *AuditLogger) History(ctx context.Context, guestID int64, limit int64) ([]domain.AuditEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit)
	cur, err := a.coll.Find(ctx, bson.M{"guest_id": guestID}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "query audit log")
	}
	var logs []AuditLog
	if err := cur.All(ctx, &logs); err != nil {
		return nil, errors.Wrap(err, "decode audit log")
	}
	entries := make([]domain.AuditEntry, len(logs))
	for i, l := range logs {
		entries[i] = domain.AuditEntry{
			ID:        l.ID,
			Action:    l.Action,
			Timestamp: l.Timestamp,
			Data:      map[string]any(l.Data),
		}
	}
	return entries, nil
}

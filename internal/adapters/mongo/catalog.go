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

type CatalogRepository struct {
	coll     *mongo.Collection
	vouchers *mongo.Collection
	logger   observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:     db.Collection("rooms"),
		vouchers: db.Collection("vouchers"),
		logger:   logger,
	}
}

type RoomDoc struct {
	ID            int64     `bson:"_id"`
	HotelID       int64     `bson:"hotel_id"`
	RoomNumber    string    `bson:"room_number"`
	Type          string    `bson:"type"`
	Capacity      int       `bson:"capacity"`
	PricePerNight float64   `bson:"price_per_night"`
	Services      []string  `bson:"services,omitempty"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func (d RoomDoc) toDomain() domain.Room {
	return domain.Room{
		ID:            d.ID,
		HotelID:       d.HotelID,
		RoomNumber:    d.RoomNumber,
		Type:          domain.RoomType(d.Type),
		Capacity:      d.Capacity,
		PricePerNight: d.PricePerNight,
	}
}

// EnsureIndexes creates the hotel lookup index.
func (c *CatalogRepository) EnsureIndexes(ctx context.Context) error {
	_, err := c.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "hotel_id", Value: 1}, {Key: "_id", Value: 1}},
	})
	return errors.Wrap(err, "create rooms index")
}

// RoomsByHotel lists every room of the hotel ordered by id. Availability is
// left unset; the inventory service decides it.
func (c *CatalogRepository) RoomsByHotel(ctx context.Context, hotelID int64) ([]domain.Room, error) {
	return c.find(ctx, bson.M{"hotel_id": hotelID})
}

// RoomsByIDs returns the catalog entries for ids that exist.
func (c *CatalogRepository) RoomsByIDs(ctx context.Context, ids []int64) ([]domain.Room, error) {
	return c.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

func (c *CatalogRepository) find(ctx context.Context, filter bson.M) ([]domain.Room, error) {
	cur, err := c.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		c.logger.WithError(err).Error("failed to query rooms")
		return nil, errors.Wrap(err, "query rooms")
	}
	var docs []RoomDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode rooms")
	}
	rooms := make([]domain.Room, len(docs))
	for i, d := range docs {
		rooms[i] = d.toDomain()
	}
	return rooms, nil
}

func (c *CatalogRepository) UpsertRoom(ctx context.Context, room RoomDoc) error {
	room.UpdatedAt = time.Now()
	_, err := c.coll.ReplaceOne(ctx, bson.M{"_id": room.ID}, room, options.Replace().SetUpsert(true))
	if err != nil {
		c.logger.WithError(err).WithField("room_id", room.ID).Error("failed to upsert room")
		return err
	}
	return nil
}

type VoucherDoc struct {
	ID              int64     `bson:"_id"`
	Code            string    `bson:"code"`
	Name            string    `bson:"name"`
	PercentDiscount float64   `bson:"percent_discount"`
	PriceCondition  float64   `bson:"price_condition"`
	ExpiredDate     time.Time `bson:"expired_date"`
}

func (d VoucherDoc) toDomain() domain.Voucher {
	return domain.Voucher{
		ID:              d.ID,
		Code:            d.Code,
		Name:            d.Name,
		PercentDiscount: d.PercentDiscount,
		PriceCondition:  d.PriceCondition,
		ExpiredDate:     d.ExpiredDate,
	}
}

func (c *CatalogRepository) VoucherByID(ctx context.Context, id int64) (*domain.Voucher, error) {
	var doc VoucherDoc
	err := c.vouchers.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Mark(errors.Newf("voucher %d not found", id), domain.ErrNotFound)
	}
	if err != nil {
		c.logger.WithError(err).WithField("voucher_id", id).Error("failed to get voucher")
		return nil, err
	}
	v := doc.toDomain()
	return &v, nil
}

// ActiveVouchers lists the vouchers usable at now, lowest price condition
// first. A voucher without an expiry date never expires.
func (c *CatalogRepository) ActiveVouchers(ctx context.Context, now time.Time) ([]domain.Voucher, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"expired_date": bson.M{"$gt": now}},
		bson.M{"expired_date": time.Time{}},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "price_condition", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := c.vouchers.Find(ctx, filter, opts)
	if err != nil {
		c.logger.WithError(err).Error("failed to query vouchers")
		return nil, errors.Wrap(err, "query vouchers")
	}
	var docs []VoucherDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode vouchers")
	}
	vouchers := make([]domain.Voucher, len(docs))
	for i, d := range docs {
		vouchers[i] = d.toDomain()
	}
	return vouchers, nil
}

func (c *CatalogRepository) UpsertVoucher(ctx context.Context, v VoucherDoc) error {
	_, err := c.vouchers.ReplaceOne(ctx, bson.M{"_id": v.ID}, v, options.Replace().SetUpsert(true))
	return err
}

/*
Package mongo provides a MongoDB-backed ledger.Store.

PURPOSE:
  One document per voucher, legs embedded as an array. Voucher queries
  compile to find filters (filter.go); detail queries become an
  aggregation pipeline that unwinds the legs and filters them in place.

DOCUMENT SHAPE:
  { _id, date: "2006-01-02" | null, type, remark,
    details: [{ user, currency, title, subtitle, content, remark, fund: Decimal128 | null }] }

  Dates are kept as ISO strings so that lexical order is calendar order
  and null sorts before every date.

TRANSACTIONS:
  Store does not implement ledger.TxStore; multi-document transactions
  need a replica set. An overlay commit against it is applied voucher by
  voucher, and every step is an idempotent replace or delete by id.

SEE ALSO:
  - ledger/store.go: interface definitions
  - filter.go: query tree to BSON
*/
package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/generic"
	"github.com/warp/ledger-engine/ledger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultCollection is the collection vouchers live in when none is configured.
const DefaultCollection = "vouchers"

var (
	// ErrEmptyURI is returned when the connection string is empty.
	ErrEmptyURI = errors.New("mongo uri cannot be empty")
	// ErrEmptyDatabaseName is returned when the database name is empty.
	ErrEmptyDatabaseName = errors.New("database name cannot be empty")
)

// Store implements ledger.Store on a MongoDB collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Connect dials uri, checks connectivity and ensures the indexes exist.
func Connect(ctx context.Context, uri, database, collection string) (*Store, error) {
	if uri == "" {
		return nil, ErrEmptyURI
	}
	if database == "" {
		return nil, ErrEmptyDatabaseName
	}
	if collection == "" {
		collection = DefaultCollection
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect failed: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping failed: %w", err)
	}

	s := &Store{client: client, coll: client.Database(database).Collection(collection)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// New wraps an existing collection. The caller owns the client.
func New(coll *mongo.Collection) *Store {
	return &Store{coll: coll}
}

// Close disconnects the client opened by Connect.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "details.title", Value: 1}, {Key: "details.subtitle", Value: 1}}},
		{Keys: bson.D{{Key: "details.user", Value: 1}, {Key: "details.currency", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("mongo create index failed: %w", err)
	}
	return nil
}

// =============================================================================
// DOCUMENTS
// =============================================================================

type detailDoc struct {
	User     string                `bson:"user"`
	Currency string                `bson:"currency"`
	Title    int                   `bson:"title"`
	SubTitle int                   `bson:"subtitle"`
	Content  string                `bson:"content"`
	Remark   string                `bson:"remark"`
	Fund     *primitive.Decimal128 `bson:"fund"`
}

type voucherDoc struct {
	ID      string      `bson:"_id"`
	Date    *string     `bson:"date"`
	Type    string      `bson:"type"`
	Remark  string      `bson:"remark"`
	Details []detailDoc `bson:"details"`
}

func toDoc(v ledger.Voucher) (voucherDoc, error) {
	doc := voucherDoc{
		ID:      v.ID,
		Type:    string(v.Kind()),
		Remark:  v.Remark,
		Details: make([]detailDoc, len(v.Details)),
	}
	if v.Date != nil {
		s := v.Date.String()
		doc.Date = &s
	}
	for i, d := range v.Details {
		dd := detailDoc{
			User:     d.User,
			Currency: d.Currency,
			Title:    d.Title,
			SubTitle: d.SubTitle,
			Content:  d.Content,
			Remark:   d.Remark,
		}
		if d.Fund != nil {
			f, err := primitive.ParseDecimal128(d.Fund.String())
			if err != nil {
				return voucherDoc{}, fmt.Errorf("voucher %s leg %d: %w", v.ID, i, err)
			}
			dd.Fund = &f
		}
		doc.Details[i] = dd
	}
	return doc, nil
}

func fromDoc(doc voucherDoc) (ledger.Voucher, error) {
	v := ledger.Voucher{
		ID:      doc.ID,
		Type:    ledger.VoucherType(doc.Type),
		Remark:  doc.Remark,
		Details: make([]ledger.Detail, len(doc.Details)),
	}
	date, err := parseDate(doc.Date)
	if err != nil {
		return ledger.Voucher{}, fmt.Errorf("voucher %s: %w", doc.ID, err)
	}
	v.Date = date
	for i, dd := range doc.Details {
		d := ledger.Detail{
			User:     dd.User,
			Currency: dd.Currency,
			Title:    dd.Title,
			SubTitle: dd.SubTitle,
			Content:  dd.Content,
			Remark:   dd.Remark,
		}
		if dd.Fund != nil {
			f, err := parseFund(*dd.Fund)
			if err != nil {
				return ledger.Voucher{}, fmt.Errorf("voucher %s leg %d: %w", doc.ID, i, err)
			}
			d.Fund = &f
		}
		v.Details[i] = d
	}
	return v, nil
}

func parseDate(s *string) (*generic.Date, error) {
	if s == nil {
		return nil, nil
	}
	d, err := generic.ParseDate(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseFund(f primitive.Decimal128) (decimal.Decimal, error) {
	return decimal.NewFromString(f.String())
}

// =============================================================================
// READS
// =============================================================================

var voucherSort = bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}}

func (s *Store) SelectVouchers(ctx context.Context, q ledger.VoucherQuery) ([]ledger.Voucher, error) {
	filter, err := VoucherFilter(q)
	if err != nil {
		return nil, err
	}
	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(voucherSort))
	if err != nil {
		return nil, fmt.Errorf("failed to query vouchers: %w", err)
	}
	var docs []voucherDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode vouchers: %w", err)
	}

	out := make([]ledger.Voucher, 0, len(docs))
	for _, doc := range docs {
		v, err := fromDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) SelectVoucher(ctx context.Context, id string) (*ledger.Voucher, error) {
	var doc voucherDoc
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get voucher: %w", err)
	}
	v, err := fromDoc(doc)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// legDoc is one row of the unwound pipeline.
type legDoc struct {
	ID     string    `bson:"_id"`
	Date   *string   `bson:"date"`
	Detail detailDoc `bson:"details"`
}

// DetailPipeline builds the aggregation selecting the legs picked by q.
func DetailPipeline(q ledger.DetailQuery) (mongo.Pipeline, error) {
	vf, err := VoucherFilter(q.Vouchers)
	if err != nil {
		return nil, err
	}
	df, err := DetailFilter(q.Details, "details.")
	if err != nil {
		return nil, err
	}
	return mongo.Pipeline{
		{{Key: "$match", Value: vf}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$details"},
			{Key: "includeArrayIndex", Value: "seq"},
		}}},
		{{Key: "$match", Value: df}},
		{{Key: "$sort", Value: bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}, {Key: "seq", Value: 1}}}},
	}, nil
}

func (s *Store) SelectDetails(ctx context.Context, q ledger.DetailQuery) ([]ledger.Balance, error) {
	pipeline, err := DetailPipeline(q)
	if err != nil {
		return nil, err
	}
	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to query details: %w", err)
	}
	var rows []legDoc
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode details: %w", err)
	}

	out := make([]ledger.Balance, 0, len(rows))
	for _, row := range rows {
		date, err := parseDate(row.Date)
		if err != nil {
			return nil, fmt.Errorf("voucher %s: %w", row.ID, err)
		}
		b := ledger.Balance{
			VoucherID: row.ID,
			Date:      date,
			Title:     row.Detail.Title,
			SubTitle:  row.Detail.SubTitle,
			Content:   row.Detail.Content,
			Remark:    row.Detail.Remark,
			Currency:  row.Detail.Currency,
			User:      row.Detail.User,
		}
		if row.Detail.Fund != nil {
			if b.Fund, err = parseFund(*row.Detail.Fund); err != nil {
				return nil, fmt.Errorf("voucher %s: %w", row.ID, err)
			}
		}
		out = append(out, b)
	}
	return out, nil
}

// =============================================================================
// WRITES
// =============================================================================

func (s *Store) Upsert(ctx context.Context, v *ledger.Voucher) (bool, error) {
	if v.ID == "" {
		v.ID = ledger.NewID()
	}
	doc, err := toDoc(*v)
	if err != nil {
		return false, err
	}
	res, err := s.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: v.ID}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("failed to upsert voucher: %w", err)
	}
	return res.MatchedCount > 0, nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return false, fmt.Errorf("failed to delete voucher: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func (s *Store) DeleteVouchers(ctx context.Context, q ledger.VoucherQuery) (int64, error) {
	filter, err := VoucherFilter(q)
	if err != nil {
		return 0, err
	}
	res, err := s.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete vouchers: %w", err)
	}
	return res.DeletedCount, nil
}

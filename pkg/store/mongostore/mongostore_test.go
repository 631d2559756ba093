package mongostore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/bisegni/docsql/pkg/store"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Runs against a live server only when DOCSQL_TEST_MONGO_URI is set.
func connect(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("DOCSQL_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("DOCSQL_TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := Connect(ctx, uri, "docsql_test")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() {
		s.db.Drop(context.Background())
		s.Close(context.Background())
	})
	return s
}

func TestFindAndAggregate(t *testing.T) {
	s := connect(t)
	ctx := context.Background()

	coll := s.db.Collection("people")
	_, err := coll.InsertMany(ctx, []any{
		bson.D{{Key: "name", Value: "Alice"}, {Key: "age", Value: int32(30)}},
		bson.D{{Key: "name", Value: "Bob"}, {Key: "age", Value: int32(25)}},
		bson.D{{Key: "name", Value: "Carol"}, {Key: "age", Value: int32(35)}},
	})
	if err != nil {
		t.Fatal(err)
	}

	limit := int64(2)
	cur, err := s.Find(ctx, "people", bson.D{{Key: "age", Value: bson.D{{Key: "$gte", Value: 30}}}}, store.FindOptions{
		Limit: &limit,
		Sort:  bson.D{{Key: "age", Value: -1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for cur.Next(ctx) {
		names = append(names, cur.Current().Lookup("name").StringValue())
	}
	if err := cur.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "Carol" {
		t.Errorf("names = %v, want [Carol Alice]", names)
	}

	agg, err := s.Aggregate(ctx, "people", []bson.D{
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: nil}, {Key: "total", Value: bson.D{{Key: "$sum", Value: "$age"}}}}}},
	}, store.AggregateOptions{AllowDiskUse: true})
	if err != nil {
		t.Fatal(err)
	}
	defer agg.Close(ctx)
	if !agg.Next(ctx) {
		t.Fatalf("aggregate returned nothing: %v", agg.Err())
	}
	if total := agg.Current().Lookup("total").Int32(); total != 90 {
		t.Errorf("total = %d, want 90", total)
	}

	reply, err := s.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if ok := reply.Lookup("ok").Double(); ok != 1 {
		t.Errorf("ping ok = %v", ok)
	}
}

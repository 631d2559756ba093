package engine

import (
	"fmt"
	"math"
	"strings"

	"github.com/bisegni/docsql/pkg/logger"
	"github.com/bisegni/docsql/pkg/sqlerr"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Kind tells how a command reaches the store.
type Kind int

const (
	KindFind Kind = iota
	KindAggregate
)

func (k Kind) String() string {
	if k == KindAggregate {
		return "aggregate"
	}
	return "find"
}

// Recognised command keys.
const (
	KeyFind       = "find"
	KeyFilter     = "filter"
	KeyAggreg     = "aggreg"
	KeySort       = "sort"
	KeyLimit      = "limit"
	KeySkip       = "skip"
	KeyProjection = "projection"
	KeyBatchSize  = "batchSize"
)

// Command is a validated command document.
type Command struct {
	Kind Kind
	// Collection is empty when the connection default applies.
	Collection string
	// Filter is nil when the document carried "filter": null.
	Filter   bson.D
	Pipeline []bson.D

	// Find only.
	Sort       bson.D
	Projection bson.D
	Limit      *int64
	Skip       *int64

	BatchSize *int32
}

// ParseCommand parses Extended JSON text. Empty text selects everything.
func ParseCommand(text string) (*Command, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return CommandFromDocument(nil)
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON([]byte(text), false, &doc); err != nil {
		return nil, sqlerr.InvalidCommand("parse command: %w", err)
	}
	return CommandFromDocument(doc)
}

// CommandFromDocument validates doc. An empty document is read as
// {"filter": {}}. Otherwise exactly one of filter and aggreg must be present.
func CommandFromDocument(doc bson.D) (*Command, error) {
	if len(doc) == 0 {
		return &Command{Kind: KindFind, Filter: bson.D{}}, nil
	}

	cmd := &Command{}
	var hasFilter, hasAggreg bool
	var findOnly []string

	for _, e := range doc {
		switch e.Key {
		case KeyFind:
			name, ok := e.Value.(string)
			if !ok {
				return nil, sqlerr.InvalidCommand("%s must be a string, got %T", KeyFind, e.Value)
			}
			cmd.Collection = name
		case KeyFilter:
			hasFilter = true
			if e.Value == nil {
				continue
			}
			d, ok := e.Value.(bson.D)
			if !ok {
				return nil, sqlerr.InvalidCommand("%s must be a document, got %T", KeyFilter, e.Value)
			}
			cmd.Filter = d
		case KeyAggreg:
			hasAggreg = true
			stages, err := pipeline(e.Value)
			if err != nil {
				return nil, err
			}
			cmd.Pipeline = stages
		case KeySort:
			d, ok := e.Value.(bson.D)
			if !ok {
				return nil, sqlerr.InvalidCommand("%s must be a document, got %T", KeySort, e.Value)
			}
			cmd.Sort = d
			findOnly = append(findOnly, e.Key)
		case KeyProjection:
			d, ok := e.Value.(bson.D)
			if !ok {
				return nil, sqlerr.InvalidCommand("%s must be a document, got %T", KeyProjection, e.Value)
			}
			cmd.Projection = d
			findOnly = append(findOnly, e.Key)
		case KeyLimit:
			n, err := integer(KeyLimit, e.Value, math.MaxInt64)
			if err != nil {
				return nil, err
			}
			cmd.Limit = &n
			findOnly = append(findOnly, e.Key)
		case KeySkip:
			n, err := integer(KeySkip, e.Value, math.MaxInt64)
			if err != nil {
				return nil, err
			}
			cmd.Skip = &n
			findOnly = append(findOnly, e.Key)
		case KeyBatchSize:
			n, err := integer(KeyBatchSize, e.Value, math.MaxInt32)
			if err != nil {
				return nil, err
			}
			size := int32(n)
			cmd.BatchSize = &size
		default:
			logger.Warn("ignoring unknown command key", "key", e.Key)
		}
	}

	if hasFilter == hasAggreg {
		return nil, sqlerr.InvalidCommand("exactly one of %s and %s is required", KeyFilter, KeyAggreg)
	}

	if hasAggreg {
		cmd.Kind = KindAggregate
		if len(findOnly) > 0 {
			logger.Warn("ignoring find options on aggregate command", "keys", findOnly)
			cmd.Sort, cmd.Projection, cmd.Limit, cmd.Skip = nil, nil, nil, nil
		}
	}
	return cmd, nil
}

func pipeline(v any) ([]bson.D, error) {
	arr, ok := v.(bson.A)
	if !ok {
		return nil, sqlerr.InvalidCommand("%s must be an array of stages, got %T", KeyAggreg, v)
	}
	stages := make([]bson.D, 0, len(arr))
	for i, s := range arr {
		d, ok := s.(bson.D)
		if !ok {
			return nil, sqlerr.InvalidCommand("%s stage %d must be a document, got %T", KeyAggreg, i, s)
		}
		stages = append(stages, d)
	}
	return stages, nil
}

func integer(key string, v any, ceil int64) (int64, error) {
	var n int64
	switch x := v.(type) {
	case int32:
		n = int64(x)
	case int64:
		n = x
	case float64:
		if x != math.Trunc(x) || math.Abs(x) > float64(ceil) {
			return 0, sqlerr.InvalidCommand("%s must be an integer, got %v", key, x)
		}
		n = int64(x)
	default:
		return 0, sqlerr.InvalidCommand("%s must be an integer, got %T", key, v)
	}
	if n < 0 || n > ceil {
		return 0, sqlerr.InvalidCommand("%s out of range: %d", key, n)
	}
	return n, nil
}

// Document renders the command back into its canonical document form.
func (c *Command) Document() bson.D {
	var d bson.D
	if c.Collection != "" {
		d = append(d, bson.E{Key: KeyFind, Value: c.Collection})
	}
	if c.Kind == KindAggregate {
		stages := make(bson.A, len(c.Pipeline))
		for i, s := range c.Pipeline {
			stages[i] = s
		}
		d = append(d, bson.E{Key: KeyAggreg, Value: stages})
	} else {
		var filter any
		if c.Filter != nil {
			filter = c.Filter
		}
		d = append(d, bson.E{Key: KeyFilter, Value: filter})
		if c.Sort != nil {
			d = append(d, bson.E{Key: KeySort, Value: c.Sort})
		}
		if c.Projection != nil {
			d = append(d, bson.E{Key: KeyProjection, Value: c.Projection})
		}
		if c.Skip != nil {
			d = append(d, bson.E{Key: KeySkip, Value: *c.Skip})
		}
		if c.Limit != nil {
			d = append(d, bson.E{Key: KeyLimit, Value: *c.Limit})
		}
	}
	if c.BatchSize != nil {
		d = append(d, bson.E{Key: KeyBatchSize, Value: *c.BatchSize})
	}
	return d
}

// String is the relaxed Extended JSON form of the command.
func (c *Command) String() string {
	out, err := bson.MarshalExtJSON(c.Document(), false, false)
	if err != nil {
		return fmt.Sprintf("<invalid command: %v>", err)
	}
	return string(out)
}

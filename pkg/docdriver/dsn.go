package docdriver

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/bisegni/docsql/pkg/store"
	"github.com/bisegni/docsql/pkg/store/filestore"
	"github.com/bisegni/docsql/pkg/store/mongostore"
)

// DSN is a parsed data source name.
//
//	mongodb://host:27017/db?collection=people
//	mongodb+srv://cluster.example.net/db?collection=people
//	file:///var/data?collection=people
type DSN struct {
	// URI is the server URI without the collection option.
	URI        string
	Database   string
	Dir        string
	Collection string
}

// ParseDSN parses s. The collection query option is the default collection
// of every connection.
func ParseDSN(s string) (*DSN, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid data source name: %w", err)
	}
	q := u.Query()
	d := &DSN{Collection: q.Get("collection")}
	q.Del("collection")
	u.RawQuery = q.Encode()

	switch u.Scheme {
	case "mongodb", "mongodb+srv":
		d.Database = strings.Trim(u.Path, "/")
		d.URI = u.String()
	case "file":
		d.Dir = u.Path
		if d.Dir == "" {
			d.Dir = u.Opaque
		}
		if d.Dir == "" {
			return nil, fmt.Errorf("file data source needs a directory: %s", s)
		}
	default:
		return nil, fmt.Errorf("unsupported data source scheme %q", u.Scheme)
	}
	return d, nil
}

// Open connects to the store the DSN names.
func (d *DSN) Open(ctx context.Context) (store.Store, error) {
	if d.Dir != "" {
		return filestore.Open(d.Dir)
	}
	return mongostore.Connect(ctx, d.URI, d.Database)
}

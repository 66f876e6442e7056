package sqlgen

import (
	"fmt"
	"strings"

	"github.com/xaenox/realty-bot/internal/schema"
)

// Shape is the normalized prefix and suffix every generated query must carry.
type Shape struct {
	Projection string
	Limit      string
	CityColumn string
	RowLimit   int
}

func NewShape(d *schema.Descriptor, rowLimit int) Shape {
	if rowLimit <= 0 {
		rowLimit = 3
	}
	return Shape{
		Projection: "select " + strings.Join(d.Projection(), ", "),
		Limit:      fmt.Sprintf("limit %d;", rowLimit),
		CityColumn: "location",
		RowLimit:   rowLimit,
	}
}

func (s Shape) check(query string) error {
	if !strings.HasPrefix(query, s.Projection+" from ") {
		return fmt.Errorf("%w: must start with %q", ErrMalformedQuery, s.Projection)
	}
	if !strings.HasSuffix(query, " "+s.Limit) {
		return fmt.Errorf("%w: must end with %q", ErrMalformedQuery, s.Limit)
	}
	return nil
}

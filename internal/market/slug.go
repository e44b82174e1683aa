package market

import (
	"fmt"
	"time"

	"github.com/polyflow/updown-data/internal/model"
)

// Slug returns the deterministic slug and window start for the window
// containing t. The start is floor(t / interval) * interval, so every
// timestamp inside one window maps to the same slug.
func Slug(prefix string, class model.WindowClass, t time.Time) (string, int64) {
	interval := int64(class.Interval() / time.Second)
	start := t.Unix() / interval * interval
	return fmt.Sprintf("%s-%s-%d", prefix, class, start), start
}

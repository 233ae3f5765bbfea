package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewOrderNumber returns a human-facing reference such as ORD-20261015-3FA85F64.
func NewOrderNumber(now time.Time) string {
	return "ORD-" + now.UTC().Format("20060102") + "-" + strings.ToUpper(uuid.NewString()[:8])
}

package reconcile

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"

	"github.com/theplant/luhn"

	"github.com/iurnickita/paybot/internal/clock"
	"github.com/iurnickita/paybot/internal/model"
)

var idPrefix = map[model.RequestKind]string{
	model.KindDeposit:      "dep",
	model.KindWithdrawal:   "wd",
	model.KindPlanPurchase: "plan",
	model.KindPlanUpgrade:  "upgrade",
}

// IDGenerator issues "<prefix>_<digits>" request ids. The digits are the generation time
// in milliseconds, three random digits and a Luhn check digit. Within one process the
// numeric part strictly increases.
type IDGenerator struct {
	clock clock.Clock

	mu   sync.Mutex
	last int
}

func NewIDGenerator(c clock.Clock) *IDGenerator {
	return &IDGenerator{clock: c}
}

func (g *IDGenerator) Next(kind model.RequestKind) string {
	base := int(g.clock.Now().UnixMilli())*1000 + rand.IntN(1000)

	g.mu.Lock()
	if base <= g.last {
		base = g.last + 1
	}
	g.last = base
	g.mu.Unlock()

	return idPrefix[kind] + "_" + strconv.Itoa(base) + strconv.Itoa(luhn.CalculateLuhn(base))
}

// ParseID checks that id is well formed for kind.
func ParseID(kind model.RequestKind, id string) error {
	prefix, ok := idPrefix[kind]
	if !ok {
		return ErrUnknownKind
	}
	digits, found := strings.CutPrefix(id, prefix+"_")
	if !found || digits == "" || len(digits) > 18 || digits[0] == '0' || strings.Trim(digits, "0123456789") != "" {
		return ErrMalformedID
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 || !luhn.Valid(n) {
		return ErrMalformedID
	}
	return nil
}

// KindOfID infers the request kind from the id prefix.
func KindOfID(id string) (model.RequestKind, bool) {
	prefix, _, ok := strings.Cut(id, "_")
	if !ok {
		return "", false
	}
	for kind, p := range idPrefix {
		if p == prefix {
			return kind, true
		}
	}
	return "", false
}

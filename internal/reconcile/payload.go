package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iurnickita/paybot/internal/model"
)

// Payload carries the user-entered details of a request. Fields that do not apply to the
// kind are ignored.
type Payload struct {
	Amount      int64
	Method      string
	Proof       string
	Destination string
	PlanID      string
}

var Methods = []string{"JazzCash", "EasyPaisa", "UPaisa"}

var destinationPattern = regexp.MustCompile(`^03\d{9}$`)

const (
	proofMinLen = 5
	proofMaxLen = 100
)

// NormalizeMethod maps user input such as "easypaisa" or "U-Paisa" to a known method.
func NormalizeMethod(s string) (string, bool) {
	folded := strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(s))
	for _, m := range Methods {
		if strings.EqualFold(folded, m) {
			return m, true
		}
	}
	return "", false
}

// ValidateProof applies the input rule for a transaction id typed by the user.
func ValidateProof(proof string) error {
	return checkProof(proof, proofMinLen)
}

// checkProof is the submission rule: any non-empty id within the maximum length.
func checkProof(proof string, minLen int) error {
	n := utf8.RuneCountInString(strings.TrimSpace(proof))
	if n < minLen || n > proofMaxLen {
		return deny(ErrInvalidPayload, "Transaction ID must be %d to %d characters.", minLen, proofMaxLen)
	}
	return nil
}

func ValidateDestination(account string) error {
	if !destinationPattern.MatchString(strings.TrimSpace(account)) {
		return deny(ErrInvalidPayload, "Account number must be 11 digits starting with 03.")
	}
	return nil
}

// normalize trims free-text fields and canonicalizes the method name.
func (p Payload) normalize() Payload {
	if m, ok := NormalizeMethod(p.Method); ok {
		p.Method = m
	} else {
		p.Method = strings.TrimSpace(p.Method)
	}
	p.Proof = strings.TrimSpace(p.Proof)
	p.Destination = strings.TrimSpace(p.Destination)
	p.PlanID = strings.TrimSpace(p.PlanID)
	return p
}

// IdempotencyKey identifies a request by content: equal kind and normalized payload
// yield equal keys.
type IdempotencyKey string

func NewIdempotencyKey(kind model.RequestKind, p Payload) IdempotencyKey {
	p = p.normalize()
	var fields []string
	switch kind {
	case model.KindDeposit:
		fields = []string{strconv.FormatInt(p.Amount, 10), strings.ToLower(p.Proof)}
	case model.KindWithdrawal:
		fields = []string{strconv.FormatInt(p.Amount, 10), p.Method, p.Destination}
	default:
		fields = []string{p.PlanID}
	}
	h := sha256.New()
	h.Write([]byte(kind))
	for _, f := range fields {
		h.Write([]byte{0})
		h.Write([]byte(f))
	}
	return IdempotencyKey(hex.EncodeToString(h.Sum(nil)))
}

// pruneKeys drops keys that no pending request references and that are older than retention.
func pruneKeys(acc *model.Account, now time.Time, retention time.Duration) {
	referenced := map[string]bool{}
	for _, set := range [][]model.PendingRequest{acc.PendingDeposits, acc.PendingWithdrawals, acc.PendingPlanRequests} {
		for _, req := range set {
			referenced[req.IdempotencyKey] = true
		}
	}
	for key, at := range acc.ProcessedRequestKeys {
		if !referenced[key] && now.Sub(at) >= retention {
			delete(acc.ProcessedRequestKeys, key)
		}
	}
}

// Package carrier recognises and decodes the balance reply SMS that WindTre
// sends back after a keyword query to its shortcode.
package carrier

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gigawatch/internal/mikrotik"
)

// DataStatus is one normalised balance reading.
type DataStatus struct {
	RemainingPercentage int
	RemainingDataMB     int
	DateTime            time.Time
}

// balancePattern matches the fixed phrase the carrier uses for remaining
// data. Capture 1 is the remaining percentage, capture 2 the plan total in
// GIGA with a comma decimal separator. Trailing text is ignored.
var balancePattern = regexp.MustCompile(`Dati: hai ancora a disposizione il (\d+)% di ([\d,]+) GIGA.*`)

var (
	dec1024 = decimal.NewFromInt(1024)
	dec100  = decimal.NewFromInt(100)
)

// ParseMessage decodes a balance reply body. It returns nil for anything
// that is not a well-formed balance reply; it never fails loudly.
//
// The carrier's "GIGA" is treated as gibibytes: total_mb = round(gb * 1024),
// remaining_mb = round(pct/100 * total_mb).
func ParseMessage(message string, at time.Time) *DataStatus {
	caps := balancePattern.FindStringSubmatch(message)
	if caps == nil {
		return nil
	}

	percent, err := strconv.Atoi(caps[1])
	if err != nil {
		return nil
	}

	totalGB, err := decimal.NewFromString(strings.ReplaceAll(caps[2], ",", "."))
	if err != nil {
		return nil
	}

	totalMB := totalGB.Mul(dec1024).Round(0)
	remainingMB := decimal.NewFromInt(int64(percent)).Mul(totalMB).Div(dec100).Round(0)

	return &DataStatus{
		RemainingPercentage: percent,
		RemainingDataMB:     int(remainingMB.IntPart()),
		DateTime:            at.UTC(),
	}
}

// routerTimeLayout is the RouterOS-local date string, e.g.
// "aug/17/2024 15:27:02". Month casing varies by firmware and is normalised
// before parsing.
const routerTimeLayout = "Jan/02/2006 15:04:05"

// SmsTime reconstructs the best-effort timestamp of an inbox entry. The
// candidate fields are tried in order of fidelity; the first that parses
// wins. ok is false when none does, which makes the SMS unusable as an
// observation source regardless of its body.
func SmsTime(sms mikrotik.Sms) (time.Time, bool) {
	if sms.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339, sms.Timestamp); err == nil {
			return t.UTC(), true
		}
	}
	if sms.Received != "" {
		if t, err := time.Parse(time.RFC3339, sms.Received); err == nil {
			return t.UTC(), true
		}
	}
	if sms.Time != "" {
		if t, err := time.Parse(routerTimeLayout, normalizeMonth(sms.Time)); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func normalizeMonth(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ParseSms combines timestamp reconstruction and body decoding.
func ParseSms(sms mikrotik.Sms) *DataStatus {
	at, ok := SmsTime(sms)
	if !ok {
		return nil
	}
	return ParseMessage(sms.Message, at)
}

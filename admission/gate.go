// Package admission implements the synchronous pre-flight gate run before a
// conversion record or job exists. Checks run cheapest-first and
// short-circuit; a rejected request has no durable side effect beyond a
// metrics counter.
package admission

import (
	"context"
	"fmt"
	"log"

	"converter/format"
	"converter/metrics"
	"converter/models"
)

// SignatureHeadSize is how many leading payload bytes the gate needs for
// the content-signature check.
const SignatureHeadSize = 512

// Request is one inbound conversion request, before any record exists.
type Request struct {
	SourceFormat string
	TargetFormat string
	Size         int64
	Head         []byte // leading payload bytes, up to SignatureHeadSize
	OwnerID      string // empty for anonymous callers
	Tier         models.Tier
}

// Decision is the gate's verdict. Detail is safe to show to the caller.
type Decision struct {
	Accepted bool
	Kind     models.RejectionKind
	Detail   string
}

// UsageCounter reports how many conversions an owner has used this month.
type UsageCounter interface {
	CountMonthlyUsage(ctx context.Context, ownerID string) (int, error)
}

// Gate validates requests against the compatibility graph, tier limits and
// content signatures.
type Gate struct {
	reg     *format.Registry
	rules   *format.Rules
	usage   UsageCounter
	metrics *metrics.Metrics
}

// NewGate builds a gate. usage may be nil, which disables the quota check.
func NewGate(reg *format.Registry, rules *format.Rules, usage UsageCounter, m *metrics.Metrics) *Gate {
	return &Gate{reg: reg, rules: rules, usage: usage, metrics: m}
}

// Admit runs the fixed check sequence: pair legality, size ceiling, monthly
// quota (authenticated callers only), content signature. The first failure
// wins.
func (g *Gate) Admit(ctx context.Context, req Request) Decision {
	if !g.rules.Supported(req.SourceFormat, req.TargetFormat) {
		return g.reject(req, models.RejectUnsupportedPair,
			fmt.Sprintf("conversion from %s to %s is not supported", req.SourceFormat, req.TargetFormat))
	}

	// Boundary is inclusive: size == ceiling passes.
	if ceiling := req.Tier.MaxFileSize(); req.Size > ceiling {
		return g.reject(req, models.RejectSizeExceeded,
			fmt.Sprintf("file size %d exceeds the %s tier limit of %d bytes", req.Size, req.Tier, ceiling))
	}

	if req.OwnerID != "" && g.usage != nil {
		if quota := req.Tier.MonthlyQuota(); quota > 0 {
			used, err := g.usage.CountMonthlyUsage(ctx, req.OwnerID)
			if err != nil {
				// Quota lookup failure must not block conversions.
				log.Printf("[Admission] usage lookup failed for %s: %v", req.OwnerID, err)
			} else if used >= quota {
				return g.reject(req, models.RejectQuotaExceeded,
					fmt.Sprintf("monthly conversion limit of %d reached for the %s tier", quota, req.Tier))
			}
		}
	}

	source, ok := g.reg.Lookup(req.SourceFormat)
	if !ok || !ValidateSignature(source, req.Head) {
		return g.reject(req, models.RejectContentMismatch,
			fmt.Sprintf("file content does not match the declared %s format; the file may be corrupted or misnamed", req.SourceFormat))
	}

	if g.metrics != nil {
		g.metrics.RecordAdmission()
	}
	return Decision{Accepted: true}
}

func (g *Gate) reject(req Request, kind models.RejectionKind, detail string) Decision {
	if g.metrics != nil {
		g.metrics.RecordRejection(kind, req.Tier)
	}
	return Decision{Kind: kind, Detail: detail}
}

package engine

import (
	"strings"

	"github.com/scrypster/pinpoint/internal/knowledge"
	"github.com/scrypster/pinpoint/pkg/types"
)

// enrichmentPlan lists what an identity is trusted enough to attempt.
type enrichmentPlan struct {
	Knowledge knowledge.Decision
	// Pages reports whether website and social pages may be fetched at all.
	Pages   bool
	Website string
	Social  string
}

// planEnrichment gates every enrichment step on the identity's confidence.
// Low-confidence identities get nothing: a wrong photo is worse than none.
func planEnrichment(id types.PlaceIdentity) enrichmentPlan {
	p := enrichmentPlan{Knowledge: knowledge.Decide(id)}
	if id.Confidence < knowledge.MinConfidence {
		return p
	}
	p.Pages = true
	p.Website = strings.TrimSpace(id.Website)
	p.Social = strings.TrimSpace(id.SocialURL)
	return p
}

package wikidata

import (
	"encoding/json"
	"strings"
)

type searchResponse struct {
	Search []struct {
		ID          string `json:"id"`
		Label       string `json:"label"`
		Description string `json:"description"`
	} `json:"search"`
}

type entitiesResponse struct {
	Entities map[string]rawEntity `json:"entities"`
}

type rawEntity struct {
	Missing      *string              `json:"missing"`
	Labels       map[string]langValue `json:"labels"`
	Descriptions map[string]langValue `json:"descriptions"`
	Claims       map[string][]claim   `json:"claims"`
	Sitelinks    map[string]sitelink  `json:"sitelinks"`
}

type sitelink struct {
	Title string `json:"title"`
}

type langValue struct {
	Value string `json:"value"`
}

type claim struct {
	Rank     string `json:"rank"`
	Mainsnak struct {
		Snaktype  string `json:"snaktype"`
		Datavalue struct {
			Value json.RawMessage `json:"value"`
		} `json:"datavalue"`
	} `json:"mainsnak"`
}

// Claim properties read from entities.
const (
	propInstanceOf      = "P31"
	propImage           = "P18"
	propOfficialWebsite = "P856"
)

func normalizeEntity(id string, raw rawEntity) *Entity {
	e := &Entity{
		ID:          id,
		Label:       raw.Labels["en"].Value,
		Description: raw.Descriptions["en"].Value,
	}
	if sl, ok := raw.Sitelinks["enwiki"]; ok {
		e.WikipediaTitle = sl.Title
	}

	for _, v := range claimStrings(raw.Claims[propImage]) {
		if len(e.Images) == maxImages {
			break
		}
		e.Images = append(e.Images, CommonsImageURL(v))
	}
	if sites := claimStrings(raw.Claims[propOfficialWebsite]); len(sites) > 0 {
		e.Website = sites[0]
	}
	for _, c := range raw.Claims[propInstanceOf] {
		var item struct {
			ID string `json:"id"`
		}
		if c.Mainsnak.Snaktype == "value" && json.Unmarshal(c.Mainsnak.Datavalue.Value, &item) == nil && item.ID != "" {
			e.InstanceOf = append(e.InstanceOf, item.ID)
		}
	}
	return e
}

// claimStrings returns string-valued claims with preferred rank first and
// deprecated claims dropped.
func claimStrings(claims []claim) []string {
	var preferred, normal []string
	for _, c := range claims {
		if c.Mainsnak.Snaktype != "value" || c.Rank == "deprecated" {
			continue
		}
		var s string
		if err := json.Unmarshal(c.Mainsnak.Datavalue.Value, &s); err != nil {
			continue
		}
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		if c.Rank == "preferred" {
			preferred = append(preferred, s)
		} else {
			normal = append(normal, s)
		}
	}
	return append(preferred, normal...)
}

type summaryResponse struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Extract string `json:"extract"`
}

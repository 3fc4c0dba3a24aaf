// Package classifier assigns each repository a roast tier and a short,
// language-aware tagline. It is pure: the same repository always yields the
// same result, and the tagline choice is keyed off the repository id rather
// than a random source so pages render identically every time.
package classifier

import (
	"fmt"

	"github.com/sakif/brewfolio/internal/model"
)

// Tier is an ordered roast level, lightest first.
type Tier int

const (
	LightRoast Tier = iota
	MediumRoast
	MediumDarkRoast
	DarkRoast
	EspressoShot
)

const (
	descriptionBonusLen = 50
	bonus               = 5
	defaultLanguage     = "code"
)

type tierDef struct {
	below     int // exclusive upper score bound; 0 for the top tier
	label     string
	templates []string // each takes the language via %s
}

// tiers is ordered by ascending threshold. The last entry is the catch-all.
var tiers = []tierDef{
	LightRoast: {below: 5, label: "Light Roast", templates: []string{
		"A gentle first sip of %s.",
		"Freshly ground %s, still finding its flavour.",
		"A light, bright cup of %s for the curious.",
	}},
	MediumRoast: {below: 20, label: "Medium Roast", templates: []string{
		"A balanced blend of %s with a smooth finish.",
		"Well-rounded %s that regulars come back for.",
		"A dependable morning cup of %s.",
	}},
	MediumDarkRoast: {below: 50, label: "Medium-Dark Roast", templates: []string{
		"Rich %s with notes of craftsmanship.",
		"A bold %s pour with a loyal following.",
		"Full-bodied %s, roasted with care.",
	}},
	DarkRoast: {below: 100, label: "Dark Roast", templates: []string{
		"Intense %s that keeps the whole office awake.",
		"A smoky, powerful brew of %s.",
		"Deep %s flavour, a house favourite.",
	}},
	EspressoShot: {label: "Espresso Shot", templates: []string{
		"A concentrated shot of %s that powers the community.",
		"Pure %s espresso, pulled to perfection.",
		"The strongest %s on the menu.",
	}},
}

// Roast is the classification result for one repository.
type Roast struct {
	Tier        Tier   `json:"tier"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Score       int    `json:"score"`
}

// Score computes 3*stars + 2*forks, plus a bonus for a substantial
// description and another for having any topics.
func Score(r model.Repository) int {
	s := 3*r.Stars + 2*r.Forks
	if len(r.DescriptionText()) > descriptionBonusLen {
		s += bonus
	}
	if len(r.Topics) > 0 {
		s += bonus
	}
	return s
}

// TierFor maps a score onto the tier table.
func TierFor(score int) Tier {
	for i, t := range tiers[:len(tiers)-1] {
		if score < t.below {
			return Tier(i)
		}
	}
	return EspressoShot
}

// Label returns the display name of the tier.
func (t Tier) Label() string {
	if t < 0 || int(t) >= len(tiers) {
		return ""
	}
	return tiers[t].label
}

// Classify scores r and picks its tagline.
func Classify(r model.Repository) Roast {
	score := Score(r)
	tier := TierFor(score)
	def := tiers[tier]

	lang := r.LanguageName()
	if lang == "" {
		lang = defaultLanguage
	}

	return Roast{
		Tier:        tier,
		Label:       tier.Label(),
		Description: fmt.Sprintf(def.templates[templateIndex(r.ID, len(def.templates))], lang),
		Score:       score,
	}
}

// templateIndex is |id| mod n. Pinned repositories from GraphQL carry
// negative synthetic ids, so the sign is dropped first.
func templateIndex(id int64, n int) int {
	if id < 0 {
		id = -id
	}
	return int(id % int64(n))
}

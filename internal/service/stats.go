package service

import (
	"sort"
	"time"

	"github.com/sakif/brewfolio/internal/model"
)

// TopLanguageCount is the length of the language histogram.
const TopLanguageCount = 5

// strengthLevels map total stars to a brew strength, ascending.
var strengthLevels = []struct {
	below int
	label string
}{
	{10, "Decaf"},
	{50, "Mild Brew"},
	{200, "Strong Brew"},
	{1000, "Double Shot"},
}

const strongestBrew = "Triple Espresso"

// Strength returns the brew strength label for a star total.
func Strength(totalStars int) string {
	for _, l := range strengthLevels {
		if totalStars < l.below {
			return l.label
		}
	}
	return strongestBrew
}

// ComputeStats derives the dashboard figures from one pass's data.
func ComputeStats(user model.User, repos []model.Repository, now time.Time) model.Stats {
	var stats model.Stats
	mostStars := -1

	counts := make(map[string]int)
	var order []string

	for _, r := range repos {
		stats.TotalStars += r.Stars
		stats.TotalForks += r.Forks

		if r.Stars > mostStars {
			mostStars = r.Stars
			stats.MostStarred = r.Name
		}

		lang := r.LanguageName()
		if lang == "" {
			continue
		}
		if _, seen := counts[lang]; !seen {
			order = append(order, lang)
		}
		counts[lang]++
	}

	stats.TopLanguages = topLanguages(counts, order, TopLanguageCount)
	stats.AccountAgeDays = accountAgeDays(user.CreatedAt, now)
	stats.Strength = Strength(stats.TotalStars)
	return stats
}

// topLanguages sorts by count descending; equal counts keep first-seen order.
func topLanguages(counts map[string]int, order []string, n int) []model.LanguageCount {
	out := make([]model.LanguageCount, 0, len(order))
	for _, lang := range order {
		out = append(out, model.LanguageCount{Language: lang, Count: counts[lang]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func accountAgeDays(created, now time.Time) int {
	if created.IsZero() || now.Before(created) {
		return 0
	}
	return int(now.Sub(created).Hours() / 24)
}

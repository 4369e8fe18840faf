package signal

import (
	"context"
	"regexp"
	"strings"
)

// matchMode controls how a keyword family converts matches into score.
type matchMode int

const (
	// matchEach adds the family weight once per matched keyword.
	matchEach matchMode = iota
	// matchAny adds the family weight once if any keyword matched.
	matchAny
	// matchPair adds the family weight once if two or more keywords matched.
	matchPair
)

// keywordFamily is one declarative content rule: a named group of
// phrases, a match mode, a weight, and the scam category it suggests.
type keywordFamily struct {
	kind     string
	keywords []string
	mode     matchMode
	weight   float64
	hint     Category
}

// contentFamilies is the full content rule table. Adding a detection
// pattern means adding a row here, not another branch in Analyze.
var contentFamilies = []keywordFamily{
	{
		kind: "urgency_language",
		keywords: []string{
			"urgent", "immediately", "within 24 hours",
			"expire", "last chance", "act now",
		},
		mode:   matchEach,
		weight: 0.15,
	},
	{
		kind: "credential_harvesting",
		keywords: []string{
			"bank account", "credit card", "otp",
			"pin", "cvv", "password", "transfer money",
		},
		mode:   matchPair,
		weight: 0.30,
	},
	{
		kind: "authority_impersonation",
		keywords: []string{
			"police", "cbi", "income tax", "customs", "rbi", "government",
		},
		mode:   matchAny,
		weight: 0.35,
		hint:   CategoryDigitalArrest,
	},
	{
		kind: "arrest_threat",
		keywords: []string{
			"arrest warrant", "money laundering", "drug trafficking",
			"customs violation", "immediate payment", "bank account freeze",
			"legal action", "court summons", "cbi investigation",
			"police verification", "suspend your account",
			"verify your identity", "pay fine immediately",
			"arrest within 24 hours",
		},
		mode:   matchAny,
		weight: 0.50,
		hint:   CategoryDigitalArrest,
	},
	{
		kind: "prize_bait",
		keywords: []string{
			"won", "prize", "lottery", "congratulations", "claim",
		},
		mode:   matchAny,
		weight: 0.30,
		hint:   CategoryLotteryScam,
	},
	{
		kind: "investment_lure",
		keywords: []string{
			"guaranteed returns", "risk-free", "double your money",
			"investment opportunity",
		},
		mode:   matchAny,
		weight: 0.40,
		hint:   CategoryInvestmentFraud,
	},
}

var urlPattern = regexp.MustCompile(`https?://\S+|www\.\S+`)

// urlShorteners hide the true destination of a link, a staple of
// smishing payloads.
var urlShorteners = []string{"bit.ly", "tinyurl", "goo.gl", "t.co", "ow.ly"}

const (
	contentURLPresent   = 0.20
	contentShortenedURL = 0.30
)

// ContentAnalyzer scores transcript and message text against the
// keyword family table plus URL heuristics. Matching is
// case-insensitive on whole phrases.
type ContentAnalyzer struct{}

func (a *ContentAnalyzer) Name() string    { return "content" }
func (a *ContentAnalyzer) Weight() float64 { return WeightContent }

func (a *ContentAnalyzer) Analyze(ctx context.Context, set *Set) (Partial, error) {
	if set == nil || set.Content == nil {
		return Partial{}, nil
	}

	text := strings.ToLower(set.Content.Text)
	p := Partial{Present: true}

	var hintWeight float64
	for _, fam := range contentFamilies {
		matched := matchKeywords(text, fam.keywords)
		if len(matched) == 0 {
			continue
		}
		switch fam.mode {
		case matchEach:
			for _, kw := range matched {
				p.add(fam.kind, kw, fam.weight)
			}
		case matchPair:
			if len(matched) < 2 {
				continue
			}
			p.add(fam.kind, strings.Join(matched, ","), fam.weight)
		default:
			p.add(fam.kind, matched[0], fam.weight)
		}
		if fam.hint != CategoryNone && betterHint(fam.hint, fam.weight, p.CategoryHint, hintWeight) {
			p.CategoryHint = fam.hint
			hintWeight = fam.weight
		}
	}

	scanURLs(&p, text, set.Content.URL)

	p.finish()
	return p, nil
}

func matchKeywords(text string, keywords []string) []string {
	var matched []string
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}

// betterHint prefers the higher family weight, then the more severe
// category.
func betterHint(cand Category, candW float64, cur Category, curW float64) bool {
	if cur == CategoryNone {
		return true
	}
	if candW != curW {
		return candW > curW
	}
	return SeverityRank(cand) > SeverityRank(cur)
}

func scanURLs(p *Partial, text, url string) {
	haystack := text
	if url != "" {
		haystack += " " + strings.ToLower(url)
	}
	if found := urlPattern.FindString(haystack); found != "" {
		p.add("url_present", found, contentURLPresent)
	} else if url != "" {
		p.add("url_present", strings.ToLower(url), contentURLPresent)
	}
	for _, short := range urlShorteners {
		if strings.Contains(haystack, short) {
			p.add("shortened_url", short, contentShortenedURL)
			break
		}
	}
}

// Package sanitize screens untrusted text before it reaches a prompt.
// Anything read from the outside world (inbox, web fetches, peer agents)
// passes through here; the loop drops critical findings on ingestion paths
// while UI paths only report.
package sanitize

import (
	"encoding/base64"
	"regexp"
	"strings"

	"automa/internal/logging"
)

// ThreatLevel grades a finding.
type ThreatLevel string

const (
	LevelLow      ThreatLevel = "low"
	LevelMedium   ThreatLevel = "medium"
	LevelHigh     ThreatLevel = "high"
	LevelCritical ThreatLevel = "critical"
)

var levelRank = map[ThreatLevel]int{
	LevelLow: 0, LevelMedium: 1, LevelHigh: 2, LevelCritical: 3,
}

var rankLevel = []ThreatLevel{LevelLow, LevelMedium, LevelHigh, LevelCritical}

// Source tags where a piece of text came from. UI sources are never blocked,
// only graded.
type Source string

const (
	SourceInbox Source = "inbox"
	SourceWeb   Source = "web"
	SourceAgent Source = "agent"
	SourceChain Source = "chain"
	SourceUI    Source = "ui"
)

// Result is the outcome of one sanitization pass.
type Result struct {
	Content     string      `json:"content"`
	Blocked     bool        `json:"blocked"`
	ThreatLevel ThreatLevel `json:"threatLevel"`
	Checks      []string    `json:"checks"`
}

// Invisible codepoints an attacker can hide instructions behind: zero-width
// spaces and joiners, BOM, and the bidi override range.
var invisibleRunes = map[rune]bool{
	'\u200B': true, '\u200C': true, '\u200D': true, '\u200E': true, '\u200F': true,
	'\u2060': true, '\uFEFF': true,
	'\u202A': true, '\u202B': true, '\u202C': true, '\u202D': true, '\u202E': true,
	'\u2066': true, '\u2067': true, '\u2068': true, '\u2069': true,
}

type category struct {
	name     string
	level    ThreatLevel
	patterns []*regexp.Regexp
}

var categories = []category{
	{
		name:  "instruction_override",
		level: LevelHigh,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions`),
			regexp.MustCompile(`(?i)disregard\s+(all\s+)?(above|previous|prior)`),
			regexp.MustCompile(`(?i)forget\s+(all\s+)?(your|previous)\s+instructions`),
			regexp.MustCompile(`(?i)your\s+new\s+instructions\s+are`),
			regexp.MustCompile(`(?i)override\s+your\s+(system\s+)?prompt`),
		},
	},
	{
		name:  "authority_claim",
		level: LevelHigh,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)i\s+am\s+your\s+(creator|owner|administrator|developer)`),
			regexp.MustCompile(`(?i)admin\s+emergency\s+protocol`),
			regexp.MustCompile(`(?i)as\s+your\s+(admin|administrator|operator),`),
			regexp.MustCompile(`(?i)this\s+is\s+an?\s+(official|system)\s+(command|directive)`),
		},
	},
	{
		name:  "financial_manipulation",
		level: LevelCritical,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)transfer\s+(all\s+)?(your\s+)?credits`),
			regexp.MustCompile(`(?i)drain\s+(the\s+|your\s+)?wallet`),
			regexp.MustCompile(`(?i)send\s+(all\s+)?(your\s+)?usdc\s+to`),
			regexp.MustCompile(`(?i)empty\s+(the\s+|your\s+)?wallet`),
			regexp.MustCompile(`(?i)send\s+(me\s+)?your\s+private\s+key`),
		},
	},
	{
		name:  "boundary_escape",
		level: LevelHigh,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)</?system>`),
			regexp.MustCompile(`<\|[^|]*\|>`),
			regexp.MustCompile("(?i)```system"),
			regexp.MustCompile(`(?i)\[/?INST\]`),
		},
	},
}

// base64Chunk is loose on purpose; candidates are verified by decoding.
var base64Chunk = regexp.MustCompile(`[A-Za-z0-9+/]{24,}={0,2}`)

var overridePhrases = []string{
	"ignore previous instructions",
	"ignore all previous instructions",
	"disregard all above",
	"your new instructions",
}

// Sanitize strips invisible characters from text and grades what remains.
// Critical findings block on every source except the UI.
func Sanitize(text string, source Source) Result {
	stripped, removed := stripInvisible(text)

	var checks []string
	level := LevelLow
	if removed > 0 {
		checks = append(checks, "invisible_characters")
	}

	for _, cat := range categories {
		for _, pat := range cat.patterns {
			if pat.MatchString(stripped) {
				checks = append(checks, cat.name)
				if levelRank[cat.level] > levelRank[level] {
					level = cat.level
				}
				break
			}
		}
	}

	if hasEncodedOverride(stripped) {
		checks = append(checks, "encoded_override")
		if levelRank[LevelHigh] > levelRank[level] {
			level = LevelHigh
		}
	}

	// Stacked findings escalate one level.
	if len(checks) >= 2 {
		if r := levelRank[level] + 1; r < len(rankLevel) {
			level = rankLevel[r]
		} else {
			level = LevelCritical
		}
	}

	blocked := level == LevelCritical && source != SourceUI
	if blocked {
		logging.SanitizerWarn("Blocked %s input (%v)", source, checks)
	} else if len(checks) > 0 {
		logging.Sanitizer("Flagged %s input: level=%s checks=%v", source, level, checks)
	}

	return Result{Content: stripped, Blocked: blocked, ThreatLevel: level, Checks: checks}
}

// stripInvisible removes zero-width and bidi-control runes, returning the
// cleaned text and how many runes were dropped.
func stripInvisible(text string) (string, int) {
	removed := 0
	out := strings.Map(func(r rune) rune {
		if invisibleRunes[r] {
			removed++
			return -1
		}
		return r
	}, text)
	return out, removed
}

// hasEncodedOverride decodes base64-looking chunks and checks them for
// override phrases.
func hasEncodedOverride(text string) bool {
	for _, chunk := range base64Chunk.FindAllString(text, 8) {
		decoded, err := base64.StdEncoding.DecodeString(chunk)
		if err != nil {
			if decoded, err = base64.RawStdEncoding.DecodeString(chunk); err != nil {
				continue
			}
		}
		lower := strings.ToLower(string(decoded))
		for _, phrase := range overridePhrases {
			if strings.Contains(lower, phrase) {
				return true
			}
		}
	}
	return false
}

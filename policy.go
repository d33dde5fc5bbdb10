package auth

import (
	"fmt"
	"strconv"
	"strings"
)

// PasswordAnalysis is the character breakdown of a candidate password.
type PasswordAnalysis struct {
	Length      int
	UniqueChars int
	Uppercase   int
	Lowercase   int
	Numbers     int
	Symbols     int
}

// AnalyzePassword counts character classes. Symbols are the printable
// punctuation set, including space.
func AnalyzePassword(password string) PasswordAnalysis {
	seen := map[rune]bool{}
	analysis := PasswordAnalysis{}
	for _, r := range password {
		analysis.Length++
		if !seen[r] {
			seen[r] = true
			analysis.UniqueChars++
		}
		switch {
		case r >= 'A' && r <= 'Z':
			analysis.Uppercase++
		case r >= 'a' && r <= 'z':
			analysis.Lowercase++
		case r >= '0' && r <= '9':
			analysis.Numbers++
		case strings.ContainsRune(passwordSymbols, r):
			analysis.Symbols++
		}
	}
	return analysis
}

const passwordSymbols = "-#!$@£%^&*()_+|~=`{}[]:\";'<>?,./ "

// PasswordPolicy is the strength rule set applied at registration and
// password change. Zero minimums disable the corresponding rule.
type PasswordPolicy struct {
	MinLength    int `json:"minLength"`
	MinLowercase int `json:"minLowercase"`
	MinUppercase int `json:"minUppercase"`
	MinNumbers   int `json:"minNumbers"`
	MinSymbols   int `json:"minSymbols"`
}

// DefaultPasswordPolicy is the baseline rule set: 8 characters, one of
// each character class.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:    8,
		MinLowercase: 1,
		MinUppercase: 1,
		MinNumbers:   1,
		MinSymbols:   1,
	}
}

// ParsePasswordPolicy overlays an option string like
// "minLength:12; minSymbols:2" onto the default policy. Unknown keys
// and non-numeric values are ignored, so a bad option string degrades
// to the defaults instead of rejecting every password.
func ParsePasswordPolicy(optionString string) PasswordPolicy {
	policy := DefaultPasswordPolicy()
	for _, pair := range strings.Split(optionString, ";") {
		key, value, found := strings.Cut(pair, ":")
		if !found {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			continue
		}
		switch strings.TrimSpace(key) {
		case "minLength":
			policy.MinLength = n
		case "minLowercase":
			policy.MinLowercase = n
		case "minUppercase":
			policy.MinUppercase = n
		case "minNumbers":
			policy.MinNumbers = n
		case "minSymbols":
			policy.MinSymbols = n
		}
	}
	return policy
}

// Validate reports whether password satisfies the policy.
func (p PasswordPolicy) Validate(password string) bool {
	analysis := AnalyzePassword(password)
	return analysis.Length >= p.MinLength &&
		analysis.Lowercase >= p.MinLowercase &&
		analysis.Uppercase >= p.MinUppercase &&
		analysis.Numbers >= p.MinNumbers &&
		analysis.Symbols >= p.MinSymbols
}

// Describe renders the policy as the human readable sentence embedded
// in strength-rejection responses.
func (p PasswordPolicy) Describe() string {
	var parts []string
	if p.MinLength > 0 {
		parts = append(parts, fmt.Sprintf("be at least %d characters long", p.MinLength))
	}
	switch {
	case p.MinLowercase > 0 && p.MinUppercase > 0:
		parts = append(parts, fmt.Sprintf("contain at least %d lowercase and %d uppercase letters", p.MinLowercase, p.MinUppercase))
	case p.MinLowercase > 0:
		parts = append(parts, fmt.Sprintf("contain at least %d lowercase letters", p.MinLowercase))
	case p.MinUppercase > 0:
		parts = append(parts, fmt.Sprintf("contain at least %d uppercase letters", p.MinUppercase))
	}
	if p.MinNumbers > 0 {
		parts = append(parts, fmt.Sprintf("use a minimum of %d numbers", p.MinNumbers))
	}
	if p.MinSymbols > 0 {
		parts = append(parts, fmt.Sprintf("have at least %d symbols", p.MinSymbols))
	}
	if len(parts) == 0 {
		return "Password has no requirements."
	}
	parts[len(parts)-1] = "and " + parts[len(parts)-1]
	return "Password must " + strings.Join(parts, "; ") + "."
}

// PasswordScoring assigns strength points; useful for UI meters, not
// for acceptance decisions.
type PasswordScoring struct {
	PointsPerUnique    float64
	PointsPerRepeat    float64
	PointsForLowercase float64
	PointsForUppercase float64
	PointsForNumber    float64
	PointsForSymbol    float64
}

func DefaultPasswordScoring() PasswordScoring {
	return PasswordScoring{
		PointsPerUnique:    1,
		PointsPerRepeat:    0.5,
		PointsForLowercase: 10,
		PointsForUppercase: 10,
		PointsForNumber:    10,
		PointsForSymbol:    10,
	}
}

// Score rates password strength with the default scoring weights.
func (p PasswordPolicy) Score(password string) float64 {
	return ScorePassword(password, DefaultPasswordScoring())
}

func ScorePassword(password string, scoring PasswordScoring) float64 {
	analysis := AnalyzePassword(password)
	points := float64(analysis.UniqueChars) * scoring.PointsPerUnique
	points += float64(analysis.Length-analysis.UniqueChars) * scoring.PointsPerRepeat
	if analysis.Lowercase > 0 {
		points += scoring.PointsForLowercase
	}
	if analysis.Uppercase > 0 {
		points += scoring.PointsForUppercase
	}
	if analysis.Numbers > 0 {
		points += scoring.PointsForNumber
	}
	if analysis.Symbols > 0 {
		points += scoring.PointsForSymbol
	}
	return points
}

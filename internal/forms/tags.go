package forms

import (
	"regexp"
	"strings"

	"github.com/and161185/leadgate/internal/model"
)

var (
	reSOC2    = regexp.MustCompile(`\bsoc\s*2\b|soc2`)
	reGDPR    = regexp.MustCompile(`\bgdpr\b`)
	reFintech = regexp.MustCompile(`\bfintech\b`)
)

// InferTags labels a contact message by the compliance topics it mentions.
func InferTags(message string) []string {
	m := strings.ToLower(message)
	tags := []string{}
	if reSOC2.MatchString(m) {
		tags = append(tags, "soc2")
	}
	if reGDPR.MatchString(m) {
		tags = append(tags, "gdpr")
	}
	if reFintech.MatchString(m) {
		tags = append(tags, "fintech")
	}
	return tags
}

// MagnetTags returns the topic tags of a lead magnet.
func MagnetTags(id string) []string {
	if m, ok := model.LookupMagnet(id); ok && m.Tag != "" {
		return []string{m.Tag}
	}
	return []string{}
}

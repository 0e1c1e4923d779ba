package boost

import "strings"

// Decision is the outcome for one trending post.
type Decision int

const (
	Boost Decision = iota
	SkipAlreadyBoosted
	SkipFiltered
	SkipUnresolved
)

func (d Decision) String() string {
	switch d {
	case Boost:
		return "boost"
	case SkipAlreadyBoosted:
		return "skip_already_boosted"
	case SkipFiltered:
		return "skip_filtered"
	case SkipUnresolved:
		return "skip_unresolved"
	default:
		return "unknown"
	}
}

// Label is the short word used in progress lines: both skip reasons for a
// resolved post collapse into "ignore".
func (d Decision) Label() string {
	switch d {
	case Boost:
		return "boost"
	case SkipUnresolved:
		return "not found"
	default:
		return "ignore"
	}
}

// Decide classifies a resolved post. A nil post is unresolved.
// Already-boosted wins over filtered; both are checked before boosting.
func Decide(post *LocalPost, homeHost string, filtered FilterSet) Decision {
	if post == nil {
		return SkipUnresolved
	}
	if post.Reblogged {
		return SkipAlreadyBoosted
	}
	if filtered.Contains(OriginServer(post.AccountAcct, homeHost)) {
		return SkipFiltered
	}
	return Boost
}

// OriginServer returns the server part of an account handle: the last
// '@'-separated segment. Handles without a domain belong to homeHost.
func OriginServer(acct, homeHost string) string {
	acct = strings.TrimPrefix(strings.TrimSpace(acct), "@")
	i := strings.LastIndex(acct, "@")
	if i < 0 {
		return normalizeHost(homeHost)
	}
	return normalizeHost(acct[i+1:])
}

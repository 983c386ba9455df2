package enums

// ChallengeState is the derived state of a purchase order's delivery challenge.
type ChallengeState string

const (
	ChallengeStateNone     ChallengeState = "none"
	ChallengeStateIssued   ChallengeState = "issued"
	ChallengeStateVerified ChallengeState = "verified"
	ChallengeStateExpired  ChallengeState = "expired"
	ChallengeStateLocked   ChallengeState = "locked"
)

// String implements fmt.Stringer.
func (s ChallengeState) String() string {
	return string(s)
}

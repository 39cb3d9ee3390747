package core

// Family selects one of the two IP address families that the policy engine
// arbitrates independently.
type Family int

const (
	FamilyV4 Family = iota
	FamilyV6
)

func (f Family) String() string {
	if f == FamilyV4 {
		return "IPv4"
	}
	return "IPv6"
}

// Families lists both families in arbitration order.
func Families() []Family {
	return []Family{FamilyV4, FamilyV6}
}

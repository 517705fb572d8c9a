package breakdown

// AssociateRank is the sort rank of every non-management member.
const AssociateRank = 999

// RankKey identifies an employment category.
type RankKey struct {
	Department     int
	Classification int
}

// RankTable maps employment categories to their management sort rank.
// Categories not in the table are associates.
type RankTable map[RankKey]int

// Rank returns the sort rank of a category, AssociateRank when unmatched.
func (t RankTable) Rank(department, classification int) int {
	if r, ok := t[RankKey{department, classification}]; ok {
		return r
	}
	return AssociateRank
}

// IsManagement reports whether a rank belongs to the management section.
func IsManagement(rank int) bool { return rank != AssociateRank }

// DefaultRankTable is the store management hierarchy of the plan sponsor.
// Department 1 is store operations; the classifications are pay grades.
func DefaultRankTable() RankTable {
	return RankTable{
		{Department: 1, Classification: 1}:  10, // store manager
		{Department: 1, Classification: 2}:  20, // assistant store manager
		{Department: 1, Classification: 4}:  30, // front end manager
		{Department: 2, Classification: 10}: 40, // grocery manager
		{Department: 3, Classification: 10}: 50, // meat manager
		{Department: 4, Classification: 10}: 60, // produce manager
		{Department: 5, Classification: 10}: 70, // deli manager
		{Department: 6, Classification: 10}: 80, // bakery manager
		{Department: 7, Classification: 10}: 90, // beer and wine manager
	}
}

package domain

// RankEntry is derived from closed rounds on demand and never persisted.
type RankEntry struct {
	Position int      `json:"position"`
	MemberID MemberID `json:"member_id"`
	Name     string   `json:"name"`
	Score    int      `json:"score"`
	JoinSeq  int      `json:"join_seq"`
}

package types

// Post represents a tweet returned by the recent-search endpoint
type Post struct {
	ID           int64  `json:"id"`
	Text         string `json:"text"`
	AuthorHandle string `json:"author_handle"`
	URL          string `json:"url"`
	LikeCount    int    `json:"like_count"`
	RetweetCount int    `json:"retweet_count"`
	ReplyCount   int    `json:"reply_count"`
	QuoteCount   int    `json:"quote_count"`
}

// PopularityScore is a heuristic for ranking posts by engagement.
// Retweets and quotes weigh more than likes and replies.
func (p Post) PopularityScore() int {
	return p.LikeCount*3 + p.RetweetCount*5 + p.ReplyCount*2 + p.QuoteCount*4
}

// ReplyDecision is the outcome of classifying a single post
type ReplyDecision struct {
	ShouldReply bool    `json:"should_reply"`
	Reason      string  `json:"reason"`
	Confidence  float64 `json:"confidence"`
}

package redis

const (
	publishedQuestionsKey = "pairquiz:questions:published"
	pendingPairsKey       = "pairquiz:pairs:pending"
	expiringPairsKey      = "pairquiz:pairs:expiring"
)

func pairKey(pairID string) string {
	return "pairquiz:pair:" + pairID
}

func liveUserKey(userID string) string {
	return "pairquiz:user:" + userID + ":live"
}

func userLockKey(userID string) string {
	return "pairquiz:user:" + userID + ":lock"
}

func pairUpdatesChannel(pairID string) string {
	return "pairquiz:pair:" + pairID + ":updates"
}

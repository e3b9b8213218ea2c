package query

// ConversationEntry is one prior turn as the caller recorded it.
type ConversationEntry struct {
	Query       string `json:"query"`
	Spec        *Spec  `json:"spec,omitempty"`
	SQL         string `json:"sql,omitempty"`
	ResultCount int    `json:"resultCount"`
}

// Conversation is owned by the caller; the pipeline only reads it.
type Conversation []ConversationEntry

// Last returns the most recent entry, if any.
func (c Conversation) Last() (ConversationEntry, bool) {
	if len(c) == 0 {
		return ConversationEntry{}, false
	}
	return c[len(c)-1], true
}

// Recent returns at most n trailing entries.
func (c Conversation) Recent(n int) Conversation {
	if n <= 0 || len(c) == 0 {
		return nil
	}
	if len(c) <= n {
		return c
	}
	return c[len(c)-n:]
}

// Caller identifies who issued a query; used by the legacy endpoint.
type Caller struct {
	SessionID string `json:"sessionId"`
	IsOwner   bool   `json:"isOwner"`
}

// TemporalContext anchors relative dates for SQL generation.
type TemporalContext struct {
	CurrentDate      string            `json:"currentDate"`
	CurrentYear      int               `json:"currentYear"`
	CurrentMonth     int               `json:"currentMonth"`
	CurrentDayOfWeek int               `json:"currentDayOfWeek"`
	DayName          string            `json:"dayName"`
	Timezone         string            `json:"timezone"`
	RecentDays       map[string]string `json:"recentDays"`
}

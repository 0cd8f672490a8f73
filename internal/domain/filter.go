package domain

// FilterSource is the `on` discriminator of a filter condition.
type FilterSource string

const (
	FilterOnSubscriber     FilterSource = "subscriber"
	FilterOnPayload        FilterSource = "payload"
	FilterOnWebhook        FilterSource = "webhook"
	FilterOnIsOnline       FilterSource = "isOnline"
	FilterOnIsOnlineInLast FilterSource = "isOnlineInLast"
)

// NeedsSubscriber reports whether evaluating the source requires the
// subscriber entity.
func (s FilterSource) NeedsSubscriber() bool {
	switch s {
	case FilterOnSubscriber, FilterOnIsOnline, FilterOnIsOnlineInLast:
		return true
	}
	return false
}

// Operator is the comparison applied by a filter condition.
type Operator string

const (
	OpEqual        Operator = "EQUAL"
	OpNotEqual     Operator = "NOT_EQUAL"
	OpLarger       Operator = "LARGER"
	OpSmaller      Operator = "SMALLER"
	OpLargerEqual  Operator = "LARGER_EQUAL"
	OpSmallerEqual Operator = "SMALLER_EQUAL"
	OpIn           Operator = "IN"
	OpNotIn        Operator = "NOT_IN"
	OpBetween      Operator = "BETWEEN"
	OpNotBetween   Operator = "NOT_BETWEEN"
	OpLike         Operator = "LIKE"
	OpNotLike      Operator = "NOT_LIKE"
	OpIsDefined    Operator = "IS_DEFINED"
)

// TimeOperation is the unit used by isOnlineInLast conditions.
type TimeOperation string

const (
	TimeMinutes TimeOperation = "minutes"
	TimeHours   TimeOperation = "hours"
	TimeDays    TimeOperation = "days"
)

// FilterPart is a single condition inside a filter group.
type FilterPart struct {
	On            FilterSource  `json:"on"`
	Field         string        `json:"field,omitempty"`
	Value         string        `json:"value"`
	Operator      Operator      `json:"operator,omitempty"`
	TimeOperation TimeOperation `json:"timeOperation,omitempty"`
}

// StepFilter is a group of conditions that must all hold.
type StepFilter struct {
	Type     string       `json:"type,omitempty"`
	Children []FilterPart `json:"children"`
}

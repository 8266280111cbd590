package pipeline

import (
	"go.uber.org/zap"

	"github.com/sells-group/coverage-cli/internal/model"
)

// transitions lists the legal next states of a query. Filtering loops back
// to Fetching for the next page; Fetching and Parsing may complete when a
// later page fails or comes back empty.
var transitions = map[model.QueryStatus][]model.QueryStatus{
	model.QueryPending:   {model.QueryFetching, model.QueryCompleted, model.QueryFailed},
	model.QueryFetching:  {model.QueryParsing, model.QueryCompleted, model.QueryFailed},
	model.QueryParsing:   {model.QueryFiltering, model.QueryCompleted, model.QueryFailed},
	model.QueryFiltering: {model.QueryFetching, model.QueryCompleted},
}

// CanTransition reports whether a query may move from one state to another.
func CanTransition(from, to model.QueryStatus) bool {
	if from.Terminal() {
		return false
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionFunc observes query state changes.
type TransitionFunc func(source, query string, from, to model.QueryStatus)

type queryState struct {
	source string
	query  string
	status model.QueryStatus
	log    *zap.Logger
	notify TransitionFunc
}

func newQueryState(source, query string, log *zap.Logger, notify TransitionFunc) *queryState {
	return &queryState{
		source: source,
		query:  query,
		status: model.QueryPending,
		log:    log,
		notify: notify,
	}
}

func (s *queryState) to(next model.QueryStatus) {
	if !CanTransition(s.status, next) {
		s.log.DPanic("pipeline: illegal query transition",
			zap.String("from", string(s.status)),
			zap.String("to", string(next)),
		)
	}
	prev := s.status
	s.status = next
	if s.notify != nil {
		s.notify(s.source, s.query, prev, next)
	}
}

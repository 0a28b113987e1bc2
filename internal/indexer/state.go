package indexer

// State is the per contract position in a run.
type State string

const (
	StatePlanning      State = "PLANNING"
	StateFetching      State = "FETCHING"
	StateDecoding      State = "DECODING"
	StatePersisting    State = "PERSISTING"
	StateCheckpointing State = "CHECKPOINTING"
	StateDone          State = "DONE"
	StateSkipped       State = "SKIPPED"
	StateFailed        State = "FAILED"
)

// Terminal reports whether no further transition can happen in this run.
func (s State) Terminal() bool {
	return s == StateDone || s == StateSkipped || s == StateFailed
}

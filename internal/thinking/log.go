package thinking

// ThoughtLog is the ordered sequence of thoughts in a session plus the branch
// index derived from it.
type ThoughtLog struct {
	thoughts    []Thought
	numbers     map[int]struct{}
	branches    map[string][]int
	branchOrder []string
}

// NewThoughtLog returns an empty log.
func NewThoughtLog() *ThoughtLog {
	return &ThoughtLog{
		numbers:  make(map[int]struct{}),
		branches: make(map[string][]int),
	}
}

// append records t at the end of the log and indexes it under its branch.
// Callers validate t first.
func (l *ThoughtLog) append(t Thought) {
	idx := len(l.thoughts)
	l.thoughts = append(l.thoughts, t)
	l.numbers[t.ThoughtNumber] = struct{}{}
	if t.IsBranch() {
		id := *t.BranchID
		if _, ok := l.branches[id]; !ok {
			l.branchOrder = append(l.branchOrder, id)
		}
		l.branches[id] = append(l.branches[id], idx)
	}
}

// Count returns the number of logged thoughts.
func (l *ThoughtLog) Count() int { return len(l.thoughts) }

// BranchIDs returns branch ids in the order they were first declared.
func (l *ThoughtLog) BranchIDs() []string {
	return append([]string{}, l.branchOrder...)
}

// Branch returns the thoughts that declared branch id, in log order.
func (l *ThoughtLog) Branch(id string) []Thought {
	idxs := l.branches[id]
	out := make([]Thought, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, l.thoughts[i])
	}
	return out
}

// BranchNumbers maps each branch id to the thought numbers that declared it.
func (l *ThoughtLog) BranchNumbers() map[string][]int {
	out := make(map[string][]int, len(l.branches))
	for id, idxs := range l.branches {
		nums := make([]int, 0, len(idxs))
		for _, i := range idxs {
			nums = append(nums, l.thoughts[i].ThoughtNumber)
		}
		out[id] = nums
	}
	return out
}

// ThoughtNumbers returns the set of logged thought numbers. Duplicate numbers
// collapse into one entry.
func (l *ThoughtLog) ThoughtNumbers() map[int]struct{} {
	out := make(map[int]struct{}, len(l.numbers))
	for n := range l.numbers {
		out[n] = struct{}{}
	}
	return out
}

// Thoughts returns the logged thoughts in order.
func (l *ThoughtLog) Thoughts() []Thought {
	return append([]Thought(nil), l.thoughts...)
}

// Last returns the most recent thought.
func (l *ThoughtLog) Last() (Thought, bool) {
	if len(l.thoughts) == 0 {
		return Thought{}, false
	}
	return l.thoughts[len(l.thoughts)-1], true
}

package sat

import "sort"

// ClauseDbParams tunes the clause database.
type ClauseDbParams struct {
	// multiplicative decay of clause activities, applied at each conflict
	ActivityDecay float64
	// activities are rescaled when the increment exceeds this threshold
	RescaleLimit float64
}

// DefaultClauseDbParams mirrors the usual minisat-derived constants.
func DefaultClauseDbParams() ClauseDbParams {
	return ClauseDbParams{ActivityDecay: 0.999, RescaleLimit: 1e100}
}

// ClauseDb stores all clauses of the propagator. Slots freed by removed
// clauses are reused by later additions, keeping identifiers compact.
type ClauseDb struct {
	params ClauseDbParams

	clauses   []*Clause // nil marks a free slot
	free      []ClauseId
	numFixed  int
	numLearnt int

	activityIncrement float64
}

// NewClauseDb creates an empty database.
func NewClauseDb(params ClauseDbParams) *ClauseDb {
	return &ClauseDb{params: params, activityIncrement: 1}
}

// Clone returns an independent deep copy of the database.
func (db *ClauseDb) Clone() *ClauseDb {
	out := &ClauseDb{
		params:            db.params,
		clauses:           make([]*Clause, len(db.clauses)),
		free:              append([]ClauseId(nil), db.free...),
		numFixed:          db.numFixed,
		numLearnt:         db.numLearnt,
		activityIncrement: db.activityIncrement,
	}
	for i, c := range db.clauses {
		if c != nil {
			out.clauses[i] = c.Clone()
		}
	}
	return out
}

// Add inserts the clause and returns its identifier.
func (db *ClauseDb) Add(c *Clause) ClauseId {
	if c.Learnt {
		db.numLearnt++
	} else {
		db.numFixed++
	}
	if n := len(db.free); n > 0 {
		id := db.free[n-1]
		db.free = db.free[:n-1]
		db.clauses[id] = c
		return id
	}
	db.clauses = append(db.clauses, c)
	return ClauseId(len(db.clauses) - 1)
}

// Get returns the clause with the given identifier.
func (db *ClauseDb) Get(id ClauseId) *Clause { return db.clauses[id] }

// Remove deletes the clause, freeing its slot for reuse.
func (db *ClauseDb) Remove(id ClauseId) {
	c := db.clauses[id]
	if c.Learnt {
		db.numLearnt--
	} else {
		db.numFixed--
	}
	db.clauses[id] = nil
	db.free = append(db.free, id)
}

// NumClauses returns the total number of live clauses.
func (db *ClauseDb) NumClauses() int { return db.numFixed + db.numLearnt }

// NumLearnt returns the number of live learnt clauses.
func (db *ClauseDb) NumLearnt() int { return db.numLearnt }

// BumpActivity increases the activity of a clause, rescaling all activities
// if the values grow too large.
func (db *ClauseDb) BumpActivity(id ClauseId) {
	c := db.clauses[id]
	c.Activity += db.activityIncrement
	if c.Activity > db.params.RescaleLimit {
		for _, cl := range db.clauses {
			if cl != nil {
				cl.Activity /= db.params.RescaleLimit
			}
		}
		db.activityIncrement /= db.params.RescaleLimit
	}
}

// Decay ages all activities by inflating the shared increment.
func (db *ClauseDb) Decay() {
	db.activityIncrement /= db.params.ActivityDecay
}

// ReduceDb removes about half of the learnt clauses, keeping locked clauses
// and glue clauses (LBD <= 2), preferring to drop the least active ones.
// onRemove is called before each removal so that watches can be cleaned up.
func (db *ClauseDb) ReduceDb(locked func(ClauseId) bool, onRemove func(ClauseId, *Clause)) int {
	var candidates []ClauseId
	for i, c := range db.clauses {
		id := ClauseId(i)
		if c == nil || !c.Learnt || c.LBD <= 2 || locked(id) {
			continue
		}
		candidates = append(candidates, id)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return db.clauses[candidates[i]].Activity < db.clauses[candidates[j]].Activity
	})
	removed := 0
	for _, id := range candidates[:len(candidates)/2] {
		onRemove(id, db.clauses[id])
		db.Remove(id)
		removed++
	}
	return removed
}

// All calls f on every live clause.
func (db *ClauseDb) All(f func(ClauseId, *Clause)) {
	for i, c := range db.clauses {
		if c != nil {
			f(ClauseId(i), c)
		}
	}
}

package mind

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/keshon/velvet/datastore"
)

// Store is the two-tier conversational state: a short-term turn log and a
// long-term distilled memory, each persisted as its own JSON document with
// its own flush timer. Access is cooperative — one inbound message is fully
// handled before the next touches the same scope — so reads and writes go
// straight through the underlying stores.
type Store struct {
	history  *datastore.DataStore // scopeID -> []Turn
	memory   *datastore.DataStore // scopeID -> LongTermMemory
	perUser  bool
	maxTurns int
}

// NewStore wraps the two documents. perUser selects one scope per identity
// instead of the single shared scope. Stored values are normalized
// immediately: entries that fail to parse are dropped here, once, rather
// than guarded against on every access.
func NewStore(history, memory *datastore.DataStore, perUser bool, maxTurns int) *Store {
	s := &Store{
		history:  history,
		memory:   memory,
		perUser:  perUser,
		maxTurns: maxTurns,
	}
	s.normalize()
	return s
}

// ScopeID maps a sender identity to its conversation scope.
func (s *Store) ScopeID(identityID string) string {
	if s.perUser {
		return identityID
	}
	return SharedScopeID
}

// Turns returns the short-term log for a scope, oldest first.
func (s *Store) Turns(scopeID string) []Turn {
	raw, ok := s.history.Get(scopeID)
	if !ok {
		return nil
	}
	var turns []Turn
	if err := json.Unmarshal(raw, &turns); err != nil {
		log.Warn().Err(err).Str("scope", scopeID).Msg("unreadable turn log, treating as empty")
		return nil
	}
	return turns
}

// SetTurns replaces the short-term log for a scope.
func (s *Store) SetTurns(scopeID string, turns []Turn) {
	if turns == nil {
		turns = []Turn{}
	}
	b, err := json.Marshal(turns)
	if err != nil {
		log.Error().Err(err).Str("scope", scopeID).Msg("marshal turns failed")
		return
	}
	s.history.Set(scopeID, b)
}

// AppendTurn appends one turn and trims the log to the configured maximum,
// oldest entries first.
func (s *Store) AppendTurn(scopeID string, t Turn) {
	turns := append(s.Turns(scopeID), t)
	if s.maxTurns > 0 && len(turns) > s.maxTurns {
		turns = turns[len(turns)-s.maxTurns:]
	}
	s.SetTurns(scopeID, turns)
}

// Memory returns the long-term memory for a scope with all fields defaulted.
func (s *Store) Memory(scopeID string) LongTermMemory {
	var mem LongTermMemory
	if raw, ok := s.memory.Get(scopeID); ok {
		if err := json.Unmarshal(raw, &mem); err != nil {
			log.Warn().Err(err).Str("scope", scopeID).Msg("unreadable memory, treating as empty")
			mem = LongTermMemory{}
		}
	}
	if mem.Identities == nil {
		mem.Identities = make(map[string]*IdentityRecord)
	}
	return mem
}

// SetMemory replaces the long-term memory for a scope.
func (s *Store) SetMemory(scopeID string, mem LongTermMemory) {
	b, err := json.Marshal(mem)
	if err != nil {
		log.Error().Err(err).Str("scope", scopeID).Msg("marshal memory failed")
		return
	}
	s.memory.Set(scopeID, b)
}

// RegisterIdentity records the sender's current label, pushing any previous
// one into the deduplicated prior-label history.
func (s *Store) RegisterIdentity(scopeID, identityID, label string) {
	mem := s.Memory(scopeID)
	rec := mem.Identities[identityID]
	if rec == nil {
		mem.Identities[identityID] = &IdentityRecord{CurrentLabel: label}
		s.SetMemory(scopeID, mem)
		return
	}
	if rec.CurrentLabel == label {
		return
	}
	prior := rec.CurrentLabel
	seen := false
	for _, p := range rec.PriorLabels {
		if p == prior {
			seen = true
			break
		}
	}
	if !seen && prior != "" {
		rec.PriorLabels = append(rec.PriorLabels, prior)
	}
	rec.CurrentLabel = label
	s.SetMemory(scopeID, mem)
}

// normalize rewrites every stored entry through the typed structs so the
// rest of the code never meets a half-shaped document. Earlier deployments
// persisted a flat turn list under other keys; anything that does not parse
// as this generation's shape is dropped with a log line.
func (s *Store) normalize() {
	for _, key := range s.history.Keys() {
		raw, _ := s.history.Get(key)
		var turns []Turn
		if err := json.Unmarshal(raw, &turns); err != nil {
			log.Warn().Err(err).Str("scope", key).Msg("dropping unreadable turn log")
			s.history.Delete(key)
			continue
		}
		if s.maxTurns > 0 && len(turns) > s.maxTurns {
			turns = turns[len(turns)-s.maxTurns:]
		}
		s.SetTurns(key, turns)
	}
	for _, key := range s.memory.Keys() {
		raw, _ := s.memory.Get(key)
		var mem LongTermMemory
		if err := json.Unmarshal(raw, &mem); err != nil {
			log.Warn().Err(err).Str("scope", key).Msg("dropping unreadable memory")
			s.memory.Delete(key)
			continue
		}
		if len(mem.Summaries) > MaxSummaries {
			mem.Summaries = mem.Summaries[len(mem.Summaries)-MaxSummaries:]
		}
		if len(mem.Facts) > MaxFacts {
			mem.Facts = mem.Facts[len(mem.Facts)-MaxFacts:]
		}
		s.SetMemory(key, mem)
	}
}

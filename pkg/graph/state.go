package graph

import "github.com/klarahealth/agentcore/pkg/messages"

// PatientProfile is the optional patient context injected from the
// originating turn request (§3 TurnState.patient_profile).
type PatientProfile struct {
	ID   string
	Name string
}

// TurnState is the value threaded through the graph across every
// agent/tools iteration. Messages only ever grows (§3 Lifecycle
// invariant iv, §8 "Append-only messages").
type TurnState struct {
	Messages       []messages.Message
	PatientProfile *PatientProfile
	StepsTaken     int
	// NextAgents is transient bookkeeping carried from the data model
	// (§3) for roles a caller intends to fan out to; the current engine
	// resolves delegation synchronously inside the tools node instead of
	// threading it through state, so the engine never populates this field.
	NextAgents  []string
	FinalReport *string
}

// AppendMessage appends m to the state's message history. It never
// replaces or truncates prior messages.
func (s *TurnState) AppendMessage(m messages.Message) {
	s.Messages = append(s.Messages, m)
}

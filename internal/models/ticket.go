package models

// TicketRequest is the body of a resolve request.
type TicketRequest struct {
	TicketText string `json:"ticket_text"`
}

// Resolution is the strict-JSON answer produced by the LLM for a ticket.
type Resolution struct {
	Answer         string   `json:"answer"`
	References     []string `json:"references"`
	ActionRequired string   `json:"action_required"`
}

// Actions the prompt allows the model to choose from.
const (
	ActionEscalateToAbuseTeam  = "escalate_to_abuse_team"
	ActionRequestUserInfo      = "request_user_info"
	ActionUpdateWhois          = "update_whois"
	ActionResetPassword        = "reset_password"
	ActionCloseNoAction        = "close_no_action"
	ActionContactBilling       = "contact_billing"
	ActionForwardToEngineering = "forward_to_engineering"
)

// ValidActions lists every action_required value the prompt offers, in prompt order.
var ValidActions = []string{
	ActionEscalateToAbuseTeam,
	ActionRequestUserInfo,
	ActionUpdateWhois,
	ActionResetPassword,
	ActionCloseNoAction,
	ActionContactBilling,
	ActionForwardToEngineering,
}

// IsValidAction reports whether action is one of ValidActions.
func IsValidAction(action string) bool {
	for _, a := range ValidActions {
		if a == action {
			return true
		}
	}
	return false
}

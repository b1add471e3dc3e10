package amqp

import (
	"encoding/json"
	"time"

	"spese-cli/internal/core"
)

// Sources of a submitted expense
const (
	SourceUpload = "upload"
	SourceOutbox = "outbox"
	SourceManual = "manual"
)

// ExpenseSubmittedMessage announces an expense the backend accepted
type ExpenseSubmittedMessage struct {
	ExpenseID   int64     `json:"expense_id"`
	Description string    `json:"description"`
	Amount      string    `json:"amount"`
	Category    string    `json:"category"`
	Subcategory string    `json:"subcategory"`
	Date        string    `json:"date"`
	SessionID   string    `json:"session_id,omitempty"`
	Source      string    `json:"source"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewExpenseSubmittedMessage(e core.Expense, sessionID, source string) *ExpenseSubmittedMessage {
	return &ExpenseSubmittedMessage{
		ExpenseID:   e.ID,
		Description: e.Description,
		Amount:      core.FormatAmount(e.Amount),
		Category:    e.Category,
		Subcategory: e.Subcategory,
		Date:        e.Date.String(),
		SessionID:   sessionID,
		Source:      source,
		Timestamp:   time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ExpenseSubmittedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseSubmittedMessageFromJSON creates a message from JSON bytes
func ExpenseSubmittedMessageFromJSON(data []byte) (*ExpenseSubmittedMessage, error) {
	var msg ExpenseSubmittedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

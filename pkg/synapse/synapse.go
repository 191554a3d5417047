package synapse

import (
	"encoding/json"
	"time"
)

type Command struct {
	Id        uint     `json:"id"`
	Sender    string   `json:"sender"`
	Type      string   `json:"type"`
	Initiator string   `json:"initiator"`
	Subject   string   `json:"subject"`
	Message   *Message `json:"message"`
}

// Summary of one finished run
type Message struct {
	Source  string    `json:"source"`
	Model   string    `json:"model"`
	Classes []string  `json:"classes"`
	Time    time.Time `json:"time"`
}

func (c *Command) ToPayload() ([]byte, error) {
	return json.Marshal(c)
}

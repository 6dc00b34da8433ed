package model

// Contact is a named notification recipient for a client.
type Contact struct {
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email" yaml:"email"`
}

// ClientRecord is one entry of the known-client registry.
type ClientRecord struct {
	Name     string    `json:"name" yaml:"name"`
	Contacts []Contact `json:"contacts" yaml:"contacts"`
}

// Outcome is the result of one delivery attempt to a single contact.
type Outcome struct {
	Client    string `json:"client"`
	Recipient string `json:"recipient"`
	Email     string `json:"email"`
	Success   bool   `json:"success"`
	Detail    string `json:"detail"`
	Attempts  int    `json:"attempts"`
}

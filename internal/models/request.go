package models

// Category is the classifier's routing label.
type Category string

const (
	CategoryHealth  Category = "health"
	CategoryGeneral Category = "general"
)

type QueryRequest struct {
	Text         string `json:"text"`
	FileLocation string `json:"file_location,omitempty"`
}

type QueryResponse struct {
	Original string `json:"original"`
	Response string `json:"response"`
}

type CipherRequest struct {
	Text string `json:"text"`
}

type CipherResponse struct {
	Original string `json:"original"`
	Ciphered string `json:"ciphered"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

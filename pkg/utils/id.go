package utils

import (
	"github.com/google/uuid"
)

// GenerateRequestID generates a unique id sent as X-Request-ID on outbound
// requests.
func GenerateRequestID() string {
	return "req_" + uuid.NewString()
}

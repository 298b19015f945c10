package sos

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateEmergencyCode returns a short code a responder can read out over
// the phone, e.g. SOS-LX3K9Q2B-4F1A9C2E.
func GenerateEmergencyCode(now time.Time) string {
	stamp := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	random := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "SOS-" + stamp + "-" + random
}

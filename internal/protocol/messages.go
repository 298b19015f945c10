package protocol

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// MessageType is the type of a frame sent by a real-time client.
type MessageType string

const (
	// Client to Server
	MsgTypeJoin               MessageType = "join"
	MsgTypeKeepalive          MessageType = "keepalive"
	MsgTypeAcknowledgeAnomaly MessageType = "acknowledgeAnomaly"
	MsgTypeConfirmSafety      MessageType = "confirmSafety"
	MsgTypeEmergencyResponse  MessageType = "emergencyResponse"

	// Server to Client
	MsgTypeAck MessageType = "ack"
)

// BaseMessage is the common structure for all client frames
type BaseMessage struct {
	Type MessageType `json:"type"`
}

// JoinMessage subscribes the connection to a tourist's room
type JoinMessage struct {
	Type      MessageType `json:"type"`
	TouristID string      `json:"touristId"`
}

// KeepaliveMessage keeps an idle connection registered
type KeepaliveMessage struct {
	Type MessageType `json:"type"`
}

// AcknowledgeAnomalyMessage is sent by a tourist answering an anomaly prompt
type AcknowledgeAnomalyMessage struct {
	Type      MessageType `json:"type"`
	TouristID string      `json:"touristId"`
	AnomalyID string      `json:"anomalyId"`
	Response  string      `json:"response,omitempty"`
}

// ConfirmSafetyMessage is sent by a tourist who is fine
type ConfirmSafetyMessage struct {
	Type      MessageType `json:"type"`
	TouristID string      `json:"touristId"`
	Message   string      `json:"message,omitempty"`
}

// EmergencyResponseMessage is sent by a responder to the tourist in distress
type EmergencyResponseMessage struct {
	Type      MessageType `json:"type"`
	TouristID string      `json:"touristId"`
	SOSID     string      `json:"sosId,omitempty"`
	Responder string      `json:"responder,omitempty"`
	Message   string      `json:"message,omitempty"`
	ETA       string      `json:"eta,omitempty"`
}

// AckMessage is sent by the server in response to client frames
type AckMessage struct {
	Type   MessageType `json:"type"`
	Status string      `json:"status"`
	Error  string      `json:"error,omitempty"`
}

// AckStatus constants
const (
	AckStatusJoined = "joined"
	AckStatusAlive  = "alive"
	AckStatusOK     = "ok"
	AckStatusError  = "error"
)

// ParseMessage parses a client frame into the appropriate message type
func ParseMessage(data []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	switch base.Type {
	case MsgTypeJoin:
		var msg JoinMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid join message: %w", err)
		}
		if msg.TouristID == "" {
			return nil, fmt.Errorf("join message missing touristId")
		}
		return &msg, nil

	case MsgTypeKeepalive:
		return &KeepaliveMessage{Type: MsgTypeKeepalive}, nil

	case MsgTypeAcknowledgeAnomaly:
		var msg AcknowledgeAnomalyMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid acknowledgeAnomaly message: %w", err)
		}
		if msg.TouristID == "" || msg.AnomalyID == "" {
			return nil, fmt.Errorf("acknowledgeAnomaly message missing touristId or anomalyId")
		}
		return &msg, nil

	case MsgTypeConfirmSafety:
		var msg ConfirmSafetyMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid confirmSafety message: %w", err)
		}
		if msg.TouristID == "" {
			return nil, fmt.Errorf("confirmSafety message missing touristId")
		}
		if msg.Message == "" {
			msg.Message = "User confirmed they are safe"
		}
		return &msg, nil

	case MsgTypeEmergencyResponse:
		var msg EmergencyResponseMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid emergencyResponse message: %w", err)
		}
		if msg.TouristID == "" || msg.SOSID == "" {
			return nil, fmt.Errorf("emergencyResponse message missing touristId or sosId")
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unknown message type: %s", base.Type)
	}
}

// EncodeMessage encodes a server frame to JSON
func EncodeMessage(msg interface{}) ([]byte, error) {
	return json.Marshal(msg)
}

// Package model holds the payloads published for address space changes.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/addressspace"
)

// Message describes one change of a node.
type Message struct {
	ItemTopic        string      `json:"ItemTopic"`
	ItemId           string      `json:"ItemId"`
	ItemName         string      `json:"ItemName"`
	ItemPath         string      `json:"ItemPath"`
	ItemValue        interface{} `json:"ItemValue,omitempty"`
	ItemDataType     string      `json:"ItemDataType,omitempty"`
	ItemStatusCode   uint32      `json:"ItemStatusCode"`
	ChangeMask       string      `json:"ChangeMask"`
	ChangedTimestamp string      `json:"ChangedTimestamp"`
}

// Topic returns the topic of n under prefix: the prefix followed by the browse path.
func Topic(prefix string, n *addressspace.Node) string {
	path := n.BrowsePath()
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return path
	}
	return prefix + "/" + path
}

// NewMessage builds the message reported for n after a change described by mask.
func NewMessage(prefix string, n *addressspace.Node, mask addressspace.ChangeMask) Message {
	msg := Message{
		ItemTopic:        Topic(prefix, n),
		ItemName:         n.BrowseName().Name,
		ItemPath:         n.BrowsePath(),
		ChangeMask:       mask.String(),
		ChangedTimestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if n.NodeID() != nil {
		msg.ItemId = fmt.Sprint(n.NodeID())
	}
	if n.IsVariable() && !mask.Has(addressspace.ChangeMaskDeleted) {
		msg.ItemValue, _ = n.Value()
		msg.ItemDataType = fmt.Sprint(n.DataType())
		msg.ItemStatusCode = uint32(n.StatusCode())
		if ts := n.Timestamp(); !ts.IsZero() {
			msg.ChangedTimestamp = ts.UTC().Format(time.RFC3339)
		}
	}
	return msg
}

// Payload encodes the message as JSON.
func (m Message) Payload() (json.RawMessage, error) {
	return json.Marshal(m)
}

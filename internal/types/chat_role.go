// SPDX-License-Identifier: MIT

package types

import (
	"encoding/json"
	"fmt"
)

// ChatRole identifies the author of a chat message.
type ChatRole string

// Chat role constants.
const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
	RoleSystem    ChatRole = "system"
)

// String implements fmt.Stringer.
func (r ChatRole) String() string {
	return string(r)
}

// IsValid checks whether the role is one of the defined constants.
func (r ChatRole) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// MarshalJSON implements json.Marshaler.
func (r ChatRole) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(r))
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *ChatRole) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	role := ChatRole(str)
	if !role.IsValid() {
		return fmt.Errorf("invalid chat role: %q", str)
	}

	*r = role
	return nil
}

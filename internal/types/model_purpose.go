// SPDX-License-Identifier: MIT

package types

// ModelPurpose identifies what a catalog model is used for.
type ModelPurpose string

// Model purpose constants.
const (
	PurposeChat      ModelPurpose = "chat"
	PurposeVision    ModelPurpose = "vision"
	PurposeEmbedding ModelPurpose = "embedding"
)

// String implements fmt.Stringer.
func (p ModelPurpose) String() string {
	return string(p)
}

// IsValid checks whether the purpose is one of the defined constants.
func (p ModelPurpose) IsValid() bool {
	switch p {
	case PurposeChat, PurposeVision, PurposeEmbedding:
		return true
	default:
		return false
	}
}

// SPDX-License-Identifier: MIT

package runtime

import (
	"context"
	"encoding/base64"
)

// DefaultVisionPrompt is used when the caller does not supply one.
const DefaultVisionPrompt = "Describe this screenshot concisely: the visible application, what is on screen, and any readable text."

// DescribeImage asks a vision model to describe a PNG image. The image
// travels as a base64 attachment on a single user message.
func (c *Client) DescribeImage(ctx context.Context, model, prompt string, imagePNG []byte) (string, error) {
	if prompt == "" {
		prompt = DefaultVisionPrompt
	}
	msg := Message{
		Role:    "user",
		Content: prompt,
		Images:  []string{base64.StdEncoding.EncodeToString(imagePNG)},
	}
	return c.chat(ctx, "vision", model, []Message{msg})
}

// Package suggest asks a language model for alternative official names
// of a place. It is invoked only when geocoding has exhausted its query
// variants.
package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Client defines the name-variant suggestion operation.
type Client interface {
	// NameVariants returns up to three alternative names for a place,
	// best guess first. An empty slice means the model had none.
	NameVariants(ctx context.Context, place, city, country string) ([]string, error)
}

// sdkClient implements Client using the official anthropic-sdk-go.
type sdkClient struct {
	client sdk.Client
	model  string
}

// NewClient creates a suggestion client backed by the SDK.
func NewClient(apiKey, model string) Client {
	return &sdkClient{
		client: sdk.NewClient(
			option.WithAPIKey(apiKey),
		),
		model: model,
	}
}

var jsonArrayRe = regexp.MustCompile(`(?s)\[.*?\]`)

// NameVariants implements Client.
func (c *sdkClient) NameVariants(ctx context.Context, place, city, country string) ([]string, error) {
	prompt := fmt.Sprintf(
		`Provide up to 3 alternative official or commonly used names for %q in %s, %s. `+
			`Output a JSON array of strings only. Example: ["Alt Name 1", "Alt Name 2", "Alt Name 3"]. `+
			`If you are not sure, return an empty array [].`,
		place, city, country,
	)

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(c.model),
		MaxTokens:   128,
		Temperature: sdk.Float(0.1),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "suggest: create message")
	}

	var text strings.Builder
	for _, b := range msg.Content {
		text.WriteString(b.Text)
	}

	variants, err := ParseVariants(text.String())
	if err != nil {
		zap.L().Warn("suggest: unparsable model output",
			zap.String("place", place),
			zap.Error(err),
		)
		return nil, nil
	}
	return variants, nil
}

// ParseVariants extracts the JSON string array from model output,
// tolerating surrounding prose or code fences.
func ParseVariants(raw string) ([]string, error) {
	match := jsonArrayRe.FindString(raw)
	if match == "" {
		return nil, eris.New("suggest: no JSON array in output")
	}

	var parsed []string
	if err := json.Unmarshal([]byte(match), &parsed); err != nil {
		return nil, eris.Wrap(err, "suggest: parse variants")
	}

	var out []string
	for _, v := range parsed {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

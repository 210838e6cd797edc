// Copyright 2026 DealGate
// SPDX-License-Identifier: BUSL-1.1

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const bedrockDefaultModel = "anthropic.claude-3-5-sonnet-20241022-v2:0"

// BedrockProvider invokes Anthropic models through AWS Bedrock. IAM
// credentials come from the default AWS credential chain, so no API key
// is handled in-process.
type BedrockProvider struct {
	client *bedrockruntime.Client
	region string
	model  string
}

// NewBedrockProvider loads the default AWS config for the region.
func NewBedrockProvider(ctx context.Context, region, model string) (*BedrockProvider, error) {
	if region == "" {
		return nil, fmt.Errorf("bedrock region is required")
	}
	if model == "" {
		model = bedrockDefaultModel
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &BedrockProvider{
		client: bedrockruntime.NewFromConfig(awsCfg),
		region: region,
		model:  model,
	}, nil
}

func (p *BedrockProvider) Name() string { return "bedrock" }

// Complete invokes the model with the Bedrock Anthropic body format.
func (p *BedrockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := req.Temperature
	if temperature < 0 {
		temperature = defaultTemperature
	}

	body := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        maxTokens,
		"temperature":       temperature,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
	}
	if req.SystemPrompt != "" {
		body["system"] = req.SystemPrompt
	}
	if len(req.StopSequences) > 0 {
		body["stop_sequences"] = req.StopSequences
	}

	requestJSON, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		Body:        requestJSON,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: bedrock invoke: %v", ErrProviderUnavailable, err)
	}

	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
		Usage      struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse bedrock response: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &CompletionResponse{
		Content: content.String(),
		Model:   model,
		Usage: UsageStats{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
		Latency:      time.Since(start),
		FinishReason: resp.StopReason,
	}, nil
}

// HealthCheck verifies a client exists. Invoking a model to probe health
// would bill tokens.
func (p *BedrockProvider) HealthCheck(_ context.Context) *HealthStatus {
	if p.client == nil {
		return &HealthStatus{Healthy: false, Detail: "bedrock client not initialized"}
	}
	return &HealthStatus{Healthy: true, Detail: "region " + p.region}
}

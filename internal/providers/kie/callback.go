package kie

import (
	"encoding/json"
	"fmt"
	"strings"

	"tasvir/internal/domain"
	"tasvir/internal/generation"
)

// ParseCallback decodes a webhook body. The provider is loose about field
// names across products, so both camelCase and snake_case result lists are
// read. A non-200 code without a success flag is a creation failure.
func ParseCallback(body []byte) (generation.StatusPayload, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return generation.StatusPayload{}, domain.NewValidationError("body", "malformed json")
	}
	var data recordData
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return generation.StatusPayload{}, domain.NewValidationError("data", fmt.Sprintf("malformed: %v", err))
		}
	}

	payload := generation.StatusPayload{
		ProviderTaskID: strings.TrimSpace(data.TaskID),
		ResultURLs:     data.urls(),
		ErrorMessage:   strings.TrimSpace(data.ErrorMessage),
	}
	switch {
	case data.SuccessFlag != nil:
		payload.SuccessFlag = int(*data.SuccessFlag)
	case env.Code != 0 && env.Code != codeOK:
		payload.SuccessFlag = generation.FlagCreateFailed
		if payload.ErrorMessage == "" {
			payload.ErrorMessage = strings.TrimSpace(env.Msg)
		}
	case len(payload.ResultURLs) > 0:
		payload.SuccessFlag = generation.FlagSuccess
	}
	return payload, nil
}

// Package paramstore reads chat client settings from AWS SSM Parameter Store.
package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

const (
	endpointParam = "/endpoint"
	tokenParam    = "/csrf-token"
	projectParam  = "/project"
)

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameters(ctx context.Context, in *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// Settings are the values a deployment may publish under a prefix. Any of
// them may be empty when the parameter does not exist.
type Settings struct {
	BaseURL     string
	CSRFToken   string
	ProjectName string
}

// tokenPayload is the JSON shape stored for the CSRF token parameter. A plain
// string value is accepted as well.
type tokenPayload struct {
	Token string `json:"token"`
}

type Client struct {
	api ssmAPI
}

func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api}, nil
}

// LoadSettings fetches every chat parameter under prefix in one call.
// Missing parameters leave their field empty.
func (c *Client) LoadSettings(ctx context.Context, prefix string) (Settings, error) {
	if c.api == nil {
		return Settings{}, errors.New("paramstore: client not initialized")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return Settings{}, errors.New("paramstore: prefix is required")
	}

	names := []string{prefix + endpointParam, prefix + tokenParam, prefix + projectParam}
	out, err := c.api.GetParameters(ctx, &ssm.GetParametersInput{
		Names:          names,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return Settings{}, fmt.Errorf("paramstore: get parameters under %q: %w", prefix, err)
	}
	if out == nil {
		return Settings{}, errors.New("paramstore: empty response")
	}

	values := valuesByName(out.Parameters)
	token, err := decodeToken(values[prefix+tokenParam])
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		BaseURL:     strings.TrimSpace(values[prefix+endpointParam]),
		CSRFToken:   token,
		ProjectName: strings.TrimSpace(values[prefix+projectParam]),
	}, nil
}

func valuesByName(params []types.Parameter) map[string]string {
	m := make(map[string]string, len(params))
	for _, p := range params {
		if p.Name == nil || p.Value == nil {
			continue
		}
		m[*p.Name] = *p.Value
	}
	return m
}

func decodeToken(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "{") {
		return raw, nil
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("paramstore: unmarshal csrf token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", errors.New("paramstore: csrf token is empty")
	}
	return tp.Token, nil
}

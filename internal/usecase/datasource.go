package usecase

import (
	"context"
	"errors"
	"strings"

	"chat-client/internal/domain"
)

type DataSourceRegistrar interface {
	AddDataSource(ctx context.Context, project string) (domain.DataSourceReply, error)
}

// RegisterDataSource asks the backend to index a project's schema and
// returns the backend's confirmation message.
func RegisterDataSource(ctx context.Context, api DataSourceRegistrar, project string) (string, error) {
	if api == nil {
		return "", errors.New("usecase: data source registrar must not be nil")
	}
	reply, err := api.AddDataSource(ctx, strings.TrimSpace(project))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", newError(ErrorTimeout, "add_data_source_deadline", err)
		}
		return "", newError(ErrorTransport, "add_data_source_failed", err)
	}
	if present(reply.Error) {
		return "", newError(ErrorServer, "add_data_source_rejected", errors.New(scalarText(reply.Error)))
	}
	if !reply.Success {
		return "", newError(ErrorEmptyReply, "add_data_source_unconfirmed", nil)
	}
	return reply.Message, nil
}

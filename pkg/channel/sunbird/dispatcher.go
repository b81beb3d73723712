//go:generate go run go.uber.org/mock/mockgen -source=dispatcher.go -destination=mocks/mock_dispatcher.go -package=mocks
package sunbird

import (
	"context"

	"sunbird-adapter/pkg/transport"
)

// Dispatcher posts a wire payload to endpoint and returns the transport acknowledgement.
type Dispatcher interface {
	Dispatch(ctx context.Context, endpoint string, payload any) (transport.Acknowledgement, error)
}

package device

import "context"

type Service interface {
	StartAsync(ctx context.Context)
	Stop()
	Serial() string
	ServiceName() string
}

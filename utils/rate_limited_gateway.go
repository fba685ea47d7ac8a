package utils

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedGateway paces sends through the wrapped gateway.
type RateLimitedGateway struct {
	next    Gateway
	limiter *rate.Limiter
}

// NewRateLimitedGateway returns next unchanged when perSecond is not positive.
func NewRateLimitedGateway(next Gateway, perSecond float64) Gateway {
	if perSecond <= 0 {
		return next
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedGateway{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (g *RateLimitedGateway) Send(ctx context.Context, msg OutboundMessage) (SendResult, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return SendResult{}, fmt.Errorf("send rate limit wait: %w", err)
	}
	return g.next.Send(ctx, msg)
}

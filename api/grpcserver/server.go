// Package grpcserver adapts the venue to the wire-level OrderService.
// It owns the string-to-fixed-point boundary and the mapping from
// rejection reasons to gRPC status codes.
package grpcserver

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"lyra/api/wire"
	"lyra/domain/fixed"
	"lyra/domain/orderbook"
	"lyra/service"
)

type Server struct {
	venue *service.Venue
	log   *zap.Logger
}

var _ wire.OrderServiceServer = (*Server)(nil)

func New(venue *service.Venue, log *zap.Logger) *Server {
	return &Server{venue: venue, log: log}
}

func (s *Server) SubmitOrder(ctx context.Context, req *wire.SubmitOrderRequest) (*wire.SubmitOrderResponse, error) {
	side, err := parseSide(req.Side)
	if err != nil {
		return nil, err
	}
	typ, err := parseType(req.Type)
	if err != nil {
		return nil, err
	}

	qty, err := fixed.Parse(req.Qty)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "qty: %v", err)
	}
	var price fixed.Value
	if req.Price != "" {
		price, err = fixed.Parse(req.Price)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "price: %v", err)
		}
	}

	res, err := s.venue.SubmitOrder(ctx, req.Symbol, service.SubmitRequest{
		Account: req.Account,
		Side:    side,
		Type:    typ,
		Price:   price,
		Qty:     qty,
	})
	if err != nil {
		s.log.Debug("order rejected",
			zap.String("symbol", req.Symbol),
			zap.String("account", req.Account),
			zap.String("reason", service.Reason(err)))
		return nil, rpcError(err)
	}

	return &wire.SubmitOrderResponse{
		OrderId:   res.OrderID,
		FilledQty: res.FilledQty.String(),
		Remaining: res.Remaining.String(),
		Resting:   res.Resting,
	}, nil
}

func (s *Server) CancelOrder(ctx context.Context, req *wire.CancelOrderRequest) (*wire.CancelOrderResponse, error) {
	if err := s.venue.CancelOrder(ctx, req.OrderId); err != nil {
		return nil, rpcError(err)
	}
	return &wire.CancelOrderResponse{OrderId: req.OrderId}, nil
}

func (s *Server) Depth(ctx context.Context, req *wire.DepthRequest) (*wire.DepthResponse, error) {
	snap, err := s.venue.Depth(ctx, req.Symbol, int(req.Limit))
	if err != nil {
		return nil, rpcError(err)
	}
	return &wire.DepthResponse{
		Symbol: snap.Symbol,
		Bids:   toWireLevels(snap.Bids),
		Asks:   toWireLevels(snap.Asks),
	}, nil
}

func toWireLevels(levels []service.BookLevel) []*wire.DepthLevel {
	out := make([]*wire.DepthLevel, 0, len(levels))
	for _, lvl := range levels {
		out = append(out, &wire.DepthLevel{
			Price:  lvl.Price.String(),
			Qty:    lvl.Qty.String(),
			Orders: uint32(lvl.Orders),
		})
	}
	return out
}

func parseSide(s string) (orderbook.Side, error) {
	switch s {
	case "buy":
		return orderbook.Buy, nil
	case "sell":
		return orderbook.Sell, nil
	default:
		return 0, status.Errorf(codes.InvalidArgument, "side: %q", s)
	}
}

func parseType(s string) (orderbook.OrderType, error) {
	switch s {
	case "limit", "":
		return orderbook.Limit, nil
	case "market":
		return orderbook.Market, nil
	default:
		return 0, status.Errorf(codes.InvalidArgument, "type: %q", s)
	}
}

// rpcError carries the enumerable rejection reason in the status
// message so clients can branch on it without string matching the
// human-readable text.
func rpcError(err error) error {
	return status.Error(codeFor(err), service.Reason(err)+": "+err.Error())
}

func codeFor(err error) codes.Code {
	switch service.Reason(err) {
	case "invalid_tick", "invalid_quantity", "overflow":
		return codes.InvalidArgument
	case "risk_rejected", "unfilled_market_order", "unknown_account":
		return codes.FailedPrecondition
	case "engine_busy":
		return codes.ResourceExhausted
	case "duplicate_order":
		return codes.AlreadyExists
	case "not_found", "unknown_instrument":
		return codes.NotFound
	default:
		return codes.Internal
	}
}
